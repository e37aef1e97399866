// Command expensesctl inspects and maintains the expenses store from the
// command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"expenses/internal/cli"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("ctl")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &App{In: os.Stdin, Out: os.Stdout, Logger: logger}
	defer app.Close()

	if err := NewRootCommand(app).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		app.Close()
		os.Exit(1)
	}
}
