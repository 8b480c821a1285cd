// Command notepipe runs the resumable note-processing pipeline.
package main

import (
	"context"
	_ "embed"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// embeddedConfig is the default configuration, used unless --config names a file.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

func main() {
	// The first SIGINT or SIGTERM cancels the run. Stages stop submitting chunks and the
	// checkpoint keeps whatever was settled.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	os.Exit(execute(ctx, stop, newRootCmd(embeddedConfig)))
}

// execute runs cmd and returns the process exit status. stop is called before returning so
// the signal handlers are released before the process exits.
func execute(ctx context.Context, stop context.CancelFunc, cmd *cobra.Command) int {
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		return exitCode(err)
	}
	return 0
}
