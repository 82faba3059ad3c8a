// Package live manages the single active real-time subscription to the
// latest sensor reading for the signed-in user.
package live

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/np-nandanpatil/adi/internal/backend"
	"github.com/np-nandanpatil/adi/internal/model"
	"github.com/np-nandanpatil/adi/internal/supervisor"
)

// Update is one push from the backend. Empty means "no reading yet", which
// is data for the display sink ("--" placeholders), not an error.
type Update struct {
	Reading model.SensorReading
	Empty   bool
}

// Handle is a cancellable stream of latest-reading updates. The updates
// channel is never closed; Done signals termination and Err reports why.
type Handle struct {
	owner   model.PublicUserID
	updates chan Update
	done    chan struct{}

	closeOnce sync.Once
	firstPush sync.Once

	mu  sync.Mutex
	err error
}

func (h *Handle) Updates() <-chan Update { return h.updates }

func (h *Handle) Done() <-chan struct{} { return h.done }

// Err reports the terminal subscription error, if any, once Done is closed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Handle) setErr(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}

func (h *Handle) close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// push keeps latest-value semantics: a slow consumer sees the newest update,
// not a backlog.
func (h *Handle) push(u Update) {
	for {
		select {
		case <-h.done:
			return
		case h.updates <- u:
			return
		default:
			select {
			case <-h.updates:
			default:
			}
		}
	}
}

type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

type Manager struct {
	source      backend.LiveSource
	sup         *supervisor.Supervisor
	maxAttempts int
	baseDelay   time.Duration

	sleep func(context.Context, time.Duration) error

	mu     sync.Mutex
	active *Handle
}

func NewManager(source backend.LiveSource, sup *supervisor.Supervisor, opts Options) *Manager {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	return &Manager{
		source:      source,
		sup:         sup,
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		sleep:       ctxSleep,
	}
}

// Subscribe opens the live stream for ownerID. At most one subscription is
// active per manager: an existing one is torn down first, never orphaned.
func (m *Manager) Subscribe(ctx context.Context, ownerID model.PublicUserID) *Handle {
	m.mu.Lock()
	prior := m.active
	handle := &Handle{
		owner:   ownerID,
		updates: make(chan Update, 1),
		done:    make(chan struct{}),
	}
	m.active = handle
	m.mu.Unlock()

	if prior != nil {
		prior.close()
	}

	go m.run(ctx, handle)
	return handle
}

// Unsubscribe tears the handle down. Idempotent, and a no-op for nil or for
// a handle already superseded by a newer Subscribe.
func (m *Manager) Unsubscribe(h *Handle) {
	if h == nil {
		return
	}
	h.close()
	m.mu.Lock()
	if m.active == h {
		m.active = nil
	}
	m.mu.Unlock()
}

// UnsubscribeActive tears down whatever subscription is live. Wired to the
// signed-out session event and to server shutdown.
func (m *Manager) UnsubscribeActive() {
	m.mu.Lock()
	h := m.active
	m.active = nil
	m.mu.Unlock()
	if h != nil {
		h.close()
	}
}

func (m *Manager) run(ctx context.Context, h *Handle) {
	defer h.close()

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay := m.baseDelay * (1 << (attempt - 1))
			m.sup.SetState(model.StatusDisconnected, "reconnecting")
			log.Printf("live subscription: retry %d/%d in %s", attempt, m.maxAttempts-1, delay)
			if err := m.sleepUntil(ctx, h, delay); err != nil {
				return
			}
		}

		m.sup.SetState(model.StatusConnecting, "establishing connection")
		errCh := make(chan error, 1)
		sub, err := m.source.SubscribeLatestReading(ctx, h.owner,
			func(reading model.SensorReading, ok bool) {
				h.firstPush.Do(func() {
					m.sup.SetState(model.StatusConnected, "connected")
				})
				if !ok {
					h.push(Update{Empty: true})
					return
				}
				h.push(Update{Reading: reading})
			},
			func(deliveryErr error) {
				select {
				case errCh <- deliveryErr:
				default:
				}
			},
		)
		if err == nil {
			select {
			case <-ctx.Done():
				sub.Cancel()
				return
			case <-h.done:
				sub.Cancel()
				return
			case err = <-errCh:
				sub.Cancel()
			}
		}

		if backend.IsPermissionDenied(err) {
			m.sup.SetState(model.StatusError, "access denied")
			h.setErr(err)
			return
		}
		if attempt+1 >= m.maxAttempts {
			m.sup.SetState(model.StatusDisconnected, "connection failed")
			h.setErr(err)
			return
		}
		log.Printf("live subscription error: %v", err)
	}
}

func (m *Manager) sleepUntil(ctx context.Context, h *Handle, d time.Duration) error {
	sleepCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-h.done:
			cancel()
		case <-sleepCtx.Done():
		}
	}()
	return m.sleep(sleepCtx, d)
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
