package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wipsher/wipsher/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version number",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "wipsher v%s\n", version.Resolve())
			if details := version.Details(); details != "" {
				fmt.Fprintln(cmd.OutOrStdout(), details)
			}
			return nil
		},
	}
}
