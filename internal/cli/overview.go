package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// runOverview is the default flow without input files.
func (a *appState) runOverview(ctx context.Context, out io.Writer) error {
	manager, err := a.modelManager()
	if err != nil {
		return err
	}

	recommended, specs := a.detect(ctx)
	writeSystem(out, specs, recommended)
	a.writeEngineLine(out)

	inv := manager.Inventory()
	fmt.Fprintf(out, "Model directory: %s\n", manager.Dir)
	fmt.Fprintf(out, "Downloaded models: %s\n", joinOrNone(inv.Downloaded))
	fmt.Fprintf(out, "Available to download: %s\n", joinOrNone(inv.Available))
	fmt.Fprintln(out)

	if len(inv.Downloaded) == 0 {
		fmt.Fprintf(out, "No models downloaded yet. Run 'wipsher download %s' to get the recommended model.\n", recommended)
		return nil
	}
	fmt.Fprintln(out, "Run 'wipsher transcribe <file>...' to transcribe audio or video files.")
	return nil
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}
