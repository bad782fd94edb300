package tunnel

// reverse_health.go: keepalive and reconnection for the reverse tunnel.

import (
	"fmt"
	"time"

	"tlex/internal/retry"
)

// keepaliveLoop pings the gateway and closes the listener once the
// connection has died, leaving reconnection to acceptLoop.
func (rt *ReverseTunnel) keepaliveLoop() {
	defer rt.wg.Done()

	rt.mu.Lock()
	own := rt.client
	rt.mu.Unlock()

	ticker := time.NewTicker(rt.config.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rt.ctx.Done():
			return
		case <-ticker.C:
			rt.mu.Lock()
			client := rt.client
			rt.mu.Unlock()

			// A reconnect starts its own loop.
			if client == nil || client != own {
				return
			}

			_, _, err := client.SendRequest("keepalive@openssh.com", true, nil)
			if err != nil {
				rt.logger.Warn("SSH keepalive failed: %v", err)
				rt.metrics.RecordError(fmt.Sprintf("keepalive: %v", err))
				rt.mu.Lock()
				if rt.listener != nil {
					rt.listener.Close()
					rt.listener = nil
				}
				rt.mu.Unlock()
				return
			}
			rt.metrics.RecordHealthCheck()
			rt.logger.Debug("SSH keepalive OK")
		}
	}
}

// reconnect drops the current connection and re-establishes it on the
// configured backoff schedule.  Only acceptLoop calls it.
func (rt *ReverseTunnel) reconnect() error {
	rt.logger.Info("reverse tunnel: reconnecting...")
	rt.metrics.TunnelReconnect()

	rt.mu.Lock()
	if rt.listener != nil {
		rt.listener.Close()
		rt.listener = nil
	}
	if rt.client != nil {
		rt.client.Close()
		rt.client = nil
	}
	rt.mu.Unlock()

	b := *rt.config.Backoff
	b.OnRetry = func(attempt int, err error, wait time.Duration) {
		rt.logger.Warn("reconnect attempt %d: %v (next in %v)", attempt, err, wait.Truncate(time.Millisecond))
		rt.metrics.RecordError(fmt.Sprintf("reconnect attempt %d: %v", attempt, err))
	}

	err := b.Do(rt.ctx, func(_ int) error {
		if rt.ctx.Err() != nil {
			return retry.Permanent(rt.ctx.Err())
		}
		return rt.establish()
	})
	if err != nil {
		return err
	}

	rt.logger.Info("reverse tunnel: reconnected, forwarding %s", rt.remoteAddr())

	if rt.config.KeepAliveInterval > 0 {
		rt.wg.Add(1)
		go rt.keepaliveLoop()
	}
	return nil
}
