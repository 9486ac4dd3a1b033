package main

import (
	"context"
	"errors"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		// Per-item failures were already printed by the host.
		if errors.Is(err, errReported) {
			os.Exit(1)
		}

		exitOnError(err)
	}
}
