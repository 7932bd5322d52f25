package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wipsher/wipsher/internal/job"
	"github.com/wipsher/wipsher/internal/whisper"
	"go.uber.org/zap"
)

func newDownloadCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:     "download [model]",
		Aliases: []string{"setup"},
		Short:   "Download and verify speech model assets",
		Long:    "Download and verify a whisper model. Without an argument the --model flag or config value is used; \"auto\" picks the model recommended for this host.",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := app.config().Model.Name
			if len(args) == 1 {
				name = args[0]
			}
			name = strings.TrimSpace(name)
			if name == "" || strings.EqualFold(name, whisper.AutoModel) {
				name, _ = app.detect(cmd.Context())
				app.log().Info("downloading recommended model", zap.String("model", name))
			}

			manager, err := app.modelManager()
			if err != nil {
				return err
			}

			runner := &job.Runner{Logger: app.log(), StallTimeout: app.config().StallTimeout()}
			display := startJobProgress(app.progressEnabled(), "Downloading "+name)
			resolved, downloaded, err := runner.RunDownload(cmd.Context(), manager, name, display.update)
			display.finish()
			if err != nil {
				return err
			}

			if !downloaded {
				fmt.Fprintf(cmd.OutOrStdout(), "Model %s already present at %s\n", resolved.Name, resolved.Path)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Model %s installed at %s\n", resolved.Name, resolved.Path)
			return nil
		},
	}
}
