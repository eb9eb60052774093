package recovery

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openwallet-foundation/agent-recovery/internal/metrics"
)

// Tenant is a resolved request principal.
type Tenant struct {
	ProfileID string
	// RecoveryEnabled is the tenant's recovery feature flag.
	RecoveryEnabled bool
}

// TenantResolver extracts the tenant from an incoming request. Returning
// false skips recovery for the request (fail open).
type TenantResolver interface {
	ResolveTenant(r *http.Request) (Tenant, bool)
}

// Recoverer is the slice of Manager the coordinator needs.
type Recoverer interface {
	RecoverInProgress(ctx context.Context, profileID string) (int, error)
	PendingCounts(ctx context.Context, profileID string) (pending, recoverable int, err error)
}

// Lease is an optional storage-backed advisory lock that keeps concurrent
// replicas from sweeping the same tenant at the same time. It is never
// required for correctness: downstream handlers stay idempotent.
type Lease interface {
	Acquire(ctx context.Context, profileID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, profileID string) error
}

// CoordinatorOptions tune the request-path recovery middleware.
type CoordinatorOptions struct {
	// SkipPathPrefixes lists request paths that must never trigger a
	// recovery check (liveness and readiness probes).
	SkipPathPrefixes []string
	// AttemptTimeout bounds one recovery pass.
	AttemptTimeout time.Duration
	// Lease, when non-nil, is taken before a recovery pass.
	Lease Lease
	// LeaseTTL bounds how long an acquired lease is held by a crashed
	// replica. Defaults to twice the attempt timeout.
	LeaseTTL time.Duration
}

// Coordinator decides, per incoming request, whether the tenant needs a
// recovery pass, and runs at most one such pass per tenant per process.
// Recovery is a side effect of the request, never a gate: the wrapped
// handler always runs, and nothing from recovery surfaces as a
// user-visible error.
type Coordinator struct {
	tracker  *Tracker
	manager  Recoverer
	resolver TenantResolver
	opts     CoordinatorOptions
	log      *slog.Logger
}

func NewCoordinator(
	manager Recoverer,
	resolver TenantResolver,
	opts CoordinatorOptions,
	log *slog.Logger,
) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 30 * time.Second
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 2 * opts.AttemptTimeout
	}
	return &Coordinator{
		tracker:  NewTracker(),
		manager:  manager,
		resolver: resolver,
		opts:     opts,
		log:      log,
	}
}

// Tracker exposes the coordination state, mainly for tests and status.
func (c *Coordinator) Tracker() *Tracker { return c.tracker }

// Middleware wraps an HTTP handler with the lazy recovery trigger.
func (c *Coordinator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.maybeRecover(r)
		next.ServeHTTP(w, r)
	})
}

func (c *Coordinator) maybeRecover(r *http.Request) {
	// A panic anywhere in the recovery path must not fail the request.
	defer func() {
		if rec := recover(); rec != nil {
			c.log.Error("panic during recovery check", "panic", rec, "path", r.URL.Path)
		}
	}()

	for _, prefix := range c.opts.SkipPathPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return
		}
	}

	tenant, ok := c.resolver.ResolveTenant(r)
	if !ok || tenant.ProfileID == "" {
		return
	}
	if !tenant.RecoveryEnabled {
		return
	}

	profileID := tenant.ProfileID
	if st := c.tracker.State(profileID); st != TenantUnknown {
		// Another request already handled or is handling recovery.
		return
	}

	pending, recoverable, err := c.manager.PendingCounts(r.Context(), profileID)
	if err != nil {
		c.log.Error("recovery pending check failed", "profile", profileID, "error", err)
		return
	}
	if pending == 0 {
		// Nothing in flight, and no need to ever check again.
		c.tracker.Complete(profileID)
		return
	}
	if recoverable == 0 {
		// Pending but still within backoff; a later request re-checks
		// once something expires.
		return
	}

	if !c.tracker.Begin(profileID) {
		return
	}
	c.runRecovery(r.Context(), profileID)
}

func (c *Coordinator) runRecovery(parent context.Context, profileID string) {
	ctx, cancel := context.WithTimeout(parent, c.opts.AttemptTimeout)
	defer cancel()

	if c.opts.Lease != nil {
		ok, err := c.opts.Lease.Acquire(ctx, profileID, c.opts.LeaseTTL)
		if err != nil {
			c.log.Error("recovery lease acquire failed", "profile", profileID, "error", err)
			c.tracker.Reset(profileID)
			return
		}
		if !ok {
			// Another replica is sweeping this tenant; let a later
			// request re-check.
			c.tracker.Reset(profileID)
			return
		}
		defer func() {
			if err := c.opts.Lease.Release(context.WithoutCancel(ctx), profileID); err != nil {
				c.log.Warn("recovery lease release failed", "profile", profileID, "error", err)
			}
		}()
	}

	count, err := c.manager.RecoverInProgress(ctx, profileID)
	if err != nil {
		// Timeout is treated like any other failure: back to unknown so
		// a future request retries.
		metrics.RecoveryFailures.Inc()
		c.log.Error("recovery pass failed", "profile", profileID, "error", err)
		c.tracker.Reset(profileID)
		return
	}
	c.tracker.Complete(profileID)
	c.log.Info("recovery pass completed", "profile", profileID, "recovered", count)
}
