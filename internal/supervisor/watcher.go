package supervisor

import (
	"context"
	"log"
	"time"

	"github.com/np-nandanpatil/adi/internal/backend"
	"github.com/np-nandanpatil/adi/internal/model"
)

// StartOnlineWatcher probes the transport on an interval and drives the
// connection state and transport enable/disable from the host's reachability,
// independent of any in-flight operation.
func StartOnlineWatcher(ctx context.Context, sup *Supervisor, transport backend.Transport, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		wasOnline := transport.Online()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, interval/2)
				err := transport.Reset(probeCtx)
				cancel()
				online := err == nil
				if online == wasOnline {
					continue
				}
				wasOnline = online
				if online {
					if eerr := transport.Enable(ctx); eerr != nil {
						log.Printf("online watcher: transport enable failed: %v", eerr)
						wasOnline = false
						continue
					}
					log.Printf("online watcher: connection restored")
					sup.SetState(model.StatusIdle, "")
				} else {
					transport.Disable(ctx)
					log.Printf("online watcher: connection lost: %v", err)
					sup.SetState(model.StatusDisconnected, "offline")
				}
			}
		}
	}()
}
