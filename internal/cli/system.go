package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/wipsher/wipsher/internal/hardware"
	"github.com/wipsher/wipsher/internal/platform"
	"github.com/wipsher/wipsher/internal/whisper"
)

func newSystemCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "system",
		Short: "Show CPU, memory and GPU specs and the recommended model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recommended, specs := app.detect(cmd.Context())
			writeSystem(cmd.OutOrStdout(), specs, recommended)
			app.writeEngineLine(cmd.OutOrStdout())
			return nil
		},
	}
}

func writeSystem(out io.Writer, specs hardware.Specs, recommended string) {
	fmt.Fprintf(out, "Platform: %s\n", platform.CurrentRuntime().Target())
	fmt.Fprintf(out, "CPU cores: %d\n", specs.PhysicalCores)
	fmt.Fprintf(out, "RAM: %.2f GB total, %.2f GB available\n", specs.RAMTotalGB, specs.RAMAvailableGB)
	if specs.HasGPU() {
		fmt.Fprintf(out, "GPU: %s\n", specs.GPU)
		fmt.Fprintf(out, "VRAM: %.2f GB\n", specs.VRAMGB)
	} else {
		fmt.Fprintln(out, "GPU: not available")
		fmt.Fprintln(out, "VRAM: n/a")
	}
	fmt.Fprintf(out, "Recommended model: %s\n", recommended)
}

func (a *appState) writeEngineLine(out io.Writer) {
	engine, err := a.engine()
	if err != nil {
		fmt.Fprintln(out, "Whisper engine: not found")
		return
	}
	if bundled, ok := engine.(*whisper.BundledEngine); ok {
		fmt.Fprintf(out, "Whisper engine: %s\n", bundled.Executable)
		return
	}
	fmt.Fprintln(out, "Whisper engine: ready")
}
