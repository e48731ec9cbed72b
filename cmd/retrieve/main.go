// Command retrieve builds the talent database reports from the Elsevier
// APIs.
//
//	retrieve talent <config-name>
//	retrieve names <config-name>
//	retrieve lookup < queries.txt
//	retrieve schedule "@daily" <config-name>
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
