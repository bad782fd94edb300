// tlex forwards TCP connections through authenticated TLS, SSH or plain
// tunnels.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tlex/cmd"
	ncerr "tlex/internal/errors"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "tlex: %v\n", err)
		cancel()
		// Configuration and bind failures exit 2 so supervisors can tell
		// them from a tunnel that died at runtime.
		if ncerr.IsSetup(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
