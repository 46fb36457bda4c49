// Package admission decides how a connecting user enters a live
// session: immediate entry, auto-join, waiting for the host, or the
// manual request/review path.
package admission

import (
	"context"
	"time"

	"github.com/peerloom/liveclass-service/internal/model"
	"github.com/peerloom/liveclass-service/internal/registry"
	"go.uber.org/zap"
)

// StateKind is the admission state of a connecting user.
type StateKind string

const (
	StateChecking           StateKind = "checking-host-active"
	StateWaitingForHost     StateKind = "waiting-for-host"
	StateManualRequestReady StateKind = "manual-request-ready"
	StateAutoJoining        StateKind = "auto-joining"
	StateRequestPending     StateKind = "request-pending"
	StateRequestRejected    StateKind = "request-rejected"
	StateApproved           StateKind = "approved"
)

// Transition is one observable admission state change. EnterAfter is a
// client-facing delay (welcome screens, denial redirects); the watcher
// itself never sleeps on it.
type Transition struct {
	State      StateKind               `json:"state"`
	Request    *model.AdmissionRequest `json:"request,omitempty"`
	EnterAfter time.Duration           `json:"enter_after_ms"`
	Message    string                  `json:"message,omitempty"`
	Terminal   bool                    `json:"terminal"`
}

// Registry is the subset of the session registry the watcher reads
// and writes.
type Registry interface {
	HostActive(ctx context.Context, groupID string) (bool, error)
	GetRequest(ctx context.Context, groupID, userID string) (*model.AdmissionRequest, error)
	AutoApprove(ctx context.Context, groupID, userID, userName string) (*model.AdmissionRequest, error)
}

// Feed is the push half of the hybrid; the registry feed satisfies it.
type Feed interface {
	Subscribe(groupID, userID string) (<-chan registry.Change, func())
}

// Config carries the admission timing knobs.
type Config struct {
	HostPollInterval   time.Duration // marker appearance poll
	StatusPollInterval time.Duration // request review poll
	ReadRetries        int
	ReadRetryBackoff   time.Duration
	WelcomeDelay       time.Duration // manual approval welcome
	AutoJoinDelay      time.Duration // auto-join welcome
	RejectDelay        time.Duration // redirect after live rejection
}

// DefaultConfig mirrors the production timings.
func DefaultConfig() Config {
	return Config{
		HostPollInterval:   2 * time.Second,
		StatusPollInterval: 3 * time.Second,
		ReadRetries:        3,
		ReadRetryBackoff:   500 * time.Millisecond,
		WelcomeDelay:       3500 * time.Millisecond,
		AutoJoinDelay:      2 * time.Second,
		RejectDelay:        2 * time.Second,
	}
}

// Watcher runs the admission state machine for one connecting user.
//
// Push notifications and poll ticks both funnel into a single
// idempotent evaluation; the joined guard makes duplicate triggers
// (a feed event racing a poll) settle on exactly one approval.
type Watcher struct {
	cfg      Config
	reg      Registry
	feed     Feed
	log      *zap.Logger
	groupID  string
	userID   string
	userName string

	joined     bool
	sawPending bool
	autoJoin   bool // armed until a rejection is seen
	lastState  StateKind
}

// NewWatcher creates a watcher for (groupID, userID).
func NewWatcher(cfg Config, reg Registry, feed Feed, log *zap.Logger, groupID, userID, userName string) *Watcher {
	return &Watcher{
		cfg:      cfg,
		reg:      reg,
		feed:     feed,
		log:      log,
		groupID:  groupID,
		userID:   userID,
		userName: userName,
		autoJoin: true,
	}
}

// Run drives the state machine until a terminal transition or ctx
// cancellation, emitting observable transitions on out. The channel is
// closed on return.
func (w *Watcher) Run(ctx context.Context, out chan<- Transition) error {
	defer close(out)

	if !w.emit(ctx, out, Transition{State: StateChecking}) {
		return ctx.Err()
	}

	// Registry reads get a small fixed-backoff retry budget; repeated
	// failure means "host not yet active", never a user-facing error.
	active := w.hostActiveWithRetry(ctx)

	done, err := w.evaluate(ctx, out, active)
	if done || err != nil {
		return err
	}

	changes, cancelFeed := w.feed.Subscribe(w.groupID, "")
	defer cancelFeed()

	hostTick := time.NewTicker(w.cfg.HostPollInterval)
	defer hostTick.Stop()
	statusTick := time.NewTicker(w.cfg.StatusPollInterval)
	defer statusTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-changes:
			if !ok {
				return nil
			}
			// Only this user's rows and the group marker matter.
			if c.Row.UserID != w.userID && c.Row.Status != model.StatusHostActive {
				continue
			}
		case <-hostTick.C:
		case <-statusTick.C:
		}

		active, err := w.reg.HostActive(ctx, w.groupID)
		if err != nil {
			w.log.Debug("host check failed, treating as inactive", zap.Error(err))
			active = false
		}
		done, err := w.evaluate(ctx, out, active)
		if done || err != nil {
			return err
		}
	}
}

// evaluate is the single reducer shared by the initial check, feed
// pushes, and poll ticks. It is idempotent: re-running it with the
// same registry contents emits nothing new.
func (w *Watcher) evaluate(ctx context.Context, out chan<- Transition, hostActive bool) (bool, error) {
	if w.joined {
		return true, nil
	}

	req, err := w.reg.GetRequest(ctx, w.groupID, w.userID)
	if err != nil {
		w.log.Debug("request read failed, retrying on next trigger", zap.Error(err))
		return false, nil
	}

	if !hostActive {
		// Host gating: no non-stale marker, no entry, regardless of
		// any approved row left from an earlier session.
		if req == nil && !w.autoJoin {
			w.emit(ctx, out, Transition{
				State:   StateManualRequestReady,
				Message: "request to join to notify the host",
			})
			return false, nil
		}
		if req != nil && req.Status == model.StatusPending {
			w.sawPending = true
			w.emit(ctx, out, Transition{State: StateRequestPending, Request: req})
			return false, nil
		}
		w.emit(ctx, out, Transition{
			State:   StateWaitingForHost,
			Message: "the host has not started this session yet",
		})
		return false, nil
	}

	if req == nil {
		if !w.autoJoin {
			// Rejection history disarms auto-join; the user must ask.
			w.emit(ctx, out, Transition{
				State:   StateManualRequestReady,
				Message: "request to join to notify the host",
			})
			return false, nil
		}
		if !w.emit(ctx, out, Transition{State: StateAutoJoining}) {
			return true, ctx.Err()
		}
		created, err := w.reg.AutoApprove(ctx, w.groupID, w.userID, w.userName)
		if err != nil {
			w.log.Warn("auto-approve failed, retrying on next trigger", zap.Error(err))
			return false, nil
		}
		w.joined = true
		w.emit(ctx, out, Transition{
			State:      StateApproved,
			Request:    created,
			EnterAfter: w.cfg.AutoJoinDelay,
			Terminal:   true,
		})
		return true, nil
	}

	switch req.Status {
	case model.StatusApproved:
		w.joined = true
		delay := w.cfg.AutoJoinDelay
		if w.sawPending {
			delay = w.cfg.WelcomeDelay
		}
		w.emit(ctx, out, Transition{
			State:      StateApproved,
			Request:    req,
			EnterAfter: delay,
			Terminal:   true,
		})
		return true, nil
	case model.StatusPending:
		w.sawPending = true
		w.emit(ctx, out, Transition{State: StateRequestPending, Request: req})
		return false, nil
	case model.StatusRejected:
		w.autoJoin = false
		if w.sawPending {
			// Rejected while waiting on review: terminal, client
			// redirects away after the delay.
			w.joined = true
			w.emit(ctx, out, Transition{
				State:      StateRequestRejected,
				Request:    req,
				EnterAfter: w.cfg.RejectDelay,
				Message:    "access denied - you were not approved to join",
				Terminal:   true,
			})
			return true, nil
		}
		// A rejection from a previous attempt: offer a retry.
		w.emit(ctx, out, Transition{
			State:   StateRequestRejected,
			Request: req,
			Message: "your previous request was denied, try again or contact the host",
		})
		return false, nil
	}
	return false, nil
}

// emit sends a transition unless it repeats the last emitted state.
// Returns false when ctx is cancelled.
func (w *Watcher) emit(ctx context.Context, out chan<- Transition, t Transition) bool {
	if t.State == w.lastState && !t.Terminal {
		return true
	}
	w.lastState = t.State
	select {
	case out <- t:
		return true
	case <-ctx.Done():
		return false
	}
}

func (w *Watcher) hostActiveWithRetry(ctx context.Context) bool {
	for attempt := 0; attempt < w.cfg.ReadRetries; attempt++ {
		active, err := w.reg.HostActive(ctx, w.groupID)
		if err == nil {
			// An answered read is authoritative; only failures retry.
			return active
		}
		w.log.Debug("host check attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
		if attempt < w.cfg.ReadRetries-1 {
			select {
			case <-time.After(w.cfg.ReadRetryBackoff):
			case <-ctx.Done():
				return false
			}
		}
	}
	return false
}
