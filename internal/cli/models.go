package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/wipsher/wipsher/internal/whisper"
)

func newModelsCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List speech models and their download status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, err := app.modelManager()
			if err != nil {
				return err
			}
			recommended, _ := app.detect(cmd.Context())
			return writeModelTable(cmd.OutOrStdout(), manager, recommended)
		},
	}
}

func writeModelTable(out io.Writer, manager *whisper.Manager, recommended string) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tSTATUS\tPATH")
	for _, model := range whisper.Models() {
		name := model.Name
		if name == recommended {
			name += " *"
		}
		status := "available"
		if manager.IsDownloaded(model.Name) {
			status = "downloaded"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, model.SizeLabel, status, filepath.Join(manager.Dir, model.FileName))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(out, "* recommended for this host")
	return nil
}
