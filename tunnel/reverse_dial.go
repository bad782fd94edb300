package tunnel

// reverse_dial.go: SSH dialling and server message draining for the
// reverse tunnel.

import (
	"context"
	"io"
	"sync"

	"golang.org/x/crypto/ssh"
)

// dialSSH establishes an authenticated SSH connection to the gateway.
func (rt *ReverseTunnel) dialSSH(ctx context.Context) (*ssh.Client, error) {
	cfg := rt.config.SSHConfig
	if cfg.Banner == nil {
		// Public tunnel services announce the public URL in the banner.
		cfg.Banner = func(message string) { rt.logger.Info("%s", message) }
	}

	client, _, err := dialClient(ctx, cfg, rt.logger)
	if err != nil {
		return nil, err
	}

	go rt.drainServerMessages(client)
	return client, nil
}

// drainServerMessages opens an SSH session and copies its output to the
// logger.  Services such as serveo.net report the generated URL there.
// A tlex gateway refuses session channels, which ends this quietly.
func (rt *ReverseTunnel) drainServerMessages(client *ssh.Client) {
	sess, err := client.NewSession()
	if err != nil {
		rt.logger.Debug("reverse tunnel: no session for server messages: %v", err)
		return
	}
	defer sess.Close()

	stdout, err := sess.StdoutPipe()
	if err != nil {
		return
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		return
	}

	_ = sess.Shell()

	var wg sync.WaitGroup
	printStream := func(r io.Reader) {
		defer wg.Done()
		buf := make([]byte, 4096)
		for {
			n, readErr := r.Read(buf)
			if n > 0 {
				rt.logger.Info("%s", string(buf[:n]))
			}
			if readErr != nil {
				return
			}
		}
	}

	wg.Add(2)
	go printStream(stdout)
	go printStream(stderr)
	wg.Wait()
}
