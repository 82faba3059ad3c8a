// Package supervisor wraps every backend call with offline detection,
// bounded retry and the process-wide connection status indicator.
package supervisor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/np-nandanpatil/adi/internal/backend"
	"github.com/np-nandanpatil/adi/internal/model"
)

type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	DisplayTTL  time.Duration
}

type Supervisor struct {
	transport   backend.Transport
	maxAttempts int
	baseDelay   time.Duration
	displayTTL  time.Duration

	sleep func(context.Context, time.Duration) error

	mu    sync.Mutex
	state model.ConnectionState
	gen   uint64
}

func New(transport backend.Transport, opts Options) *Supervisor {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.DisplayTTL <= 0 {
		opts.DisplayTTL = 3 * time.Second
	}
	return &Supervisor{
		transport:   transport,
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		displayTTL:  opts.DisplayTTL,
		sleep:       ctxSleep,
		state:       model.ConnectionState{Status: model.StatusIdle},
	}
}

func (s *Supervisor) State() model.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState replaces the connection state and returns the generation token of
// the write. Later writes invalidate earlier tokens, so a stale async
// completion cannot clobber a newer state.
func (s *Supervisor) SetState(status model.ConnectionStatus, message string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.state = model.ConnectionState{Status: status, Message: message}
	return s.gen
}

func (s *Supervisor) setStateIfCurrent(gen uint64, status model.ConnectionStatus, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.gen++
	s.state = model.ConnectionState{Status: status, Message: message}
}

// ExecuteWithRetry runs one backend operation, retrying transient failures
// (Unavailable, ResourceExhausted) up to the attempt bound with exponential
// backoff and a transport reset before each retry. PermissionDenied is never
// retried. A bounded loop, not recursion: attempts are strictly sequential.
func (s *Supervisor) ExecuteWithRetry(ctx context.Context, label string, op func(context.Context) error) error {
	if s.transport != nil && !s.transport.Online() {
		s.SetState(model.StatusDisconnected, "offline")
		return backend.ErrOffline
	}

	var err error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := s.baseDelay * (1 << (attempt - 1))
			s.SetState(model.StatusDisconnected, "reconnecting")
			if serr := s.sleep(ctx, delay); serr != nil {
				return serr
			}
			if s.transport != nil {
				if rerr := s.transport.Reset(ctx); rerr != nil {
					log.Printf("%s: transport reset failed: %v", label, rerr)
				}
			}
		}

		s.SetState(model.StatusConnecting, "connecting")
		err = op(ctx)
		if err == nil {
			gen := s.SetState(model.StatusConnected, "connected")
			time.AfterFunc(s.displayTTL, func() {
				s.setStateIfCurrent(gen, model.StatusIdle, "")
			})
			return nil
		}

		if backend.IsPermissionDenied(err) {
			s.SetState(model.StatusError, "access denied")
			return err
		}
		if !backend.Retryable(err) {
			s.SetState(model.StatusError, err.Error())
			return err
		}
		log.Printf("%s: attempt %d/%d failed: %v", label, attempt+1, s.maxAttempts, err)
	}

	s.SetState(model.StatusDisconnected, "connection failed")
	return err
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
