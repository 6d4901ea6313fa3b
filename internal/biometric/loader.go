package biometric

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"facefeed/internal/middleware"
	"facefeed/internal/observability"

	"github.com/cenkalti/backoff/v5"
)

// State is the readiness of the biometric provider.
type State string

const (
	StatePending State = "pending"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Readiness is the outcome of the last initialization.
type Readiness struct {
	State     State     `json:"state"`
	Attempts  int       `json:"attempts"`
	Err       error     `json:"-"`
	CheckedAt time.Time `json:"checkedAt,omitzero"`
}

// Ready reports whether face verification can be served.
func (r Readiness) Ready() bool { return r.State == StateReady }

const (
	DefaultMaxElapsed      = 9 * time.Second
	DefaultInitialInterval = 250 * time.Millisecond
)

// Loader probes the provider until it answers or the retry budget runs out.
type Loader struct {
	client          Client
	maxElapsed      time.Duration
	initialInterval time.Duration

	mu        sync.RWMutex
	readiness Readiness
}

type LoaderOption func(*Loader)

// WithMaxElapsed bounds the total time spent retrying.
func WithMaxElapsed(d time.Duration) LoaderOption {
	return func(l *Loader) { l.maxElapsed = d }
}

// WithInitialInterval sets the first retry delay.
func WithInitialInterval(d time.Duration) LoaderOption {
	return func(l *Loader) { l.initialInterval = d }
}

// NewLoader returns a Loader in the pending state. A nil client fails
// initialization with ErrNotConfigured.
func NewLoader(client Client, opts ...LoaderOption) *Loader {
	l := &Loader{
		client:          client,
		maxElapsed:      DefaultMaxElapsed,
		initialInterval: DefaultInitialInterval,
		readiness:       Readiness{State: StatePending},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Initialize pings the provider with exponential backoff and records the result.
func (l *Loader) Initialize(ctx context.Context) Readiness {
	if l.client == nil {
		return l.finish(Readiness{State: StateFailed, Err: ErrNotConfigured})
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.initialInterval
	b.MaxInterval = max(l.maxElapsed/3, l.initialInterval)

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := l.client.Ping(ctx)
		if errors.Is(err, ErrUnauthorized) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(l.maxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			middleware.Logger.WarnContext(ctx, "biometric provider not ready, retrying",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", next),
			)
		}),
	)

	r := Readiness{State: StateReady, Attempts: attempts}
	if err != nil {
		r.State = StateFailed
		r.Err = err
	}
	return l.finish(r)
}

func (l *Loader) finish(r Readiness) Readiness {
	r.CheckedAt = time.Now().UTC()
	observability.BiometricReadinessAttempts.Observe(float64(r.Attempts))

	l.mu.Lock()
	l.readiness = r
	l.mu.Unlock()

	if r.Ready() {
		middleware.Logger.Info("biometric provider ready", slog.Int("attempts", r.Attempts))
	} else {
		middleware.Logger.Error("biometric provider unavailable",
			slog.Int("attempts", r.Attempts),
			slog.String("error", r.Err.Error()),
		)
	}
	return r
}

// Status returns the last recorded readiness.
func (l *Loader) Status() Readiness {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.readiness
}

func (l *Loader) Ready() bool { return l.Status().Ready() }
