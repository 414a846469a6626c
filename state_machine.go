package gatekeeper

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ActorRef identifies who triggered a transition.
type ActorRef struct {
	ID   uuid.UUID
	Type string
}

// TransitionOption customizes a single grant/revoke call.
type TransitionOption func(*transitionOptions)

// WithTransitionReason sets the human-readable reason recorded in the audit
// metadata for this transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.reason = reason
	}
}

// WithRequestMeta attaches client attribution (ip, user agent) to the audit
// record paired with the transition.
func WithRequestMeta(meta RequestMeta) TransitionOption {
	return func(opts *transitionOptions) {
		opts.meta = meta
	}
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*accessStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *accessStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineLogger overrides the logger.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *accessStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithTransitionTimeout bounds the transactional scope of each transition.
func WithTransitionTimeout(d time.Duration) StateMachineOption {
	return func(sm *accessStateMachine) {
		if d > 0 {
			sm.timeout = d
		}
	}
}

// AccessStateMachine owns the access-status field: every status mutation in
// the system flows through Grant or Revoke, and each successful call commits
// exactly one audit record in the same transaction.
type AccessStateMachine interface {
	Grant(ctx context.Context, actor ActorRef, target *Account, opts ...TransitionOption) (*Account, error)
	Revoke(ctx context.Context, actor ActorRef, target *Account, opts ...TransitionOption) (*Account, error)
	CurrentStatus(target *Account) AccessStatus
}

// NewAccessStateMachine returns the default implementation backed by the
// provided repository manager.
func NewAccessStateMachine(repo RepositoryManager, opts ...StateMachineOption) AccessStateMachine {
	sm := &accessStateMachine{
		repo: repo,
		transitions: map[AccessStatus]map[AccessStatus]struct{}{
			AccessPending: {
				AccessGranted: {},
			},
			AccessGranted: {
				AccessRevoked: {},
			},
			AccessRevoked: {
				AccessGranted: {},
			},
		},
		now:     time.Now,
		timeout: 10 * time.Second,
		logger:  defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type accessStateMachine struct {
	repo        RepositoryManager
	transitions map[AccessStatus]map[AccessStatus]struct{}
	now         func() time.Time
	timeout     time.Duration
	logger      Logger
}

type transitionOptions struct {
	reason string
	meta   RequestMeta
}

func (sm *accessStateMachine) Grant(ctx context.Context, actor ActorRef, target *Account, opts ...TransitionOption) (*Account, error) {
	if err := sm.checkTarget(target, AccessGranted); err != nil {
		return nil, err
	}

	return sm.transition(ctx, actor, target, AccessGranted, AuditActionGranted, buildTransitionOptions(opts...))
}

func (sm *accessStateMachine) Revoke(ctx context.Context, actor ActorRef, target *Account, opts ...TransitionOption) (*Account, error) {
	if err := sm.checkTarget(target, AccessRevoked); err != nil {
		return nil, err
	}

	if target.ID == actor.ID {
		return nil, ErrSelfActionDenied.WithMetadata(map[string]any{
			"account_id": target.ID.String(),
		})
	}

	return sm.transition(ctx, actor, target, AccessRevoked, AuditActionRevoked, buildTransitionOptions(opts...))
}

func (sm *accessStateMachine) CurrentStatus(target *Account) AccessStatus {
	if target == nil {
		return ""
	}
	target.EnsureStatus()
	return target.AccessStatus
}

// checkTarget enforces the preconditions shared by both transitions: the
// target exists, is not an admin, and is not already in the requested state.
func (sm *accessStateMachine) checkTarget(target *Account, to AccessStatus) error {
	if target == nil {
		return ErrInvalidTransition.WithMetadata(map[string]any{
			"to":     to,
			"reason": "target is nil",
		})
	}

	target.EnsureStatus()

	if target.IsAdmin() {
		return ErrForbiddenTarget.WithMetadata(map[string]any{
			"account_id": target.ID.String(),
		})
	}

	if target.AccessStatus == to {
		return ErrNoOpTransition.WithMetadata(map[string]any{
			"account_id": target.ID.String(),
			"status":     to,
		})
	}

	if !sm.canTransition(target.AccessStatus, to) {
		return ErrInvalidTransition.WithMetadata(map[string]any{
			"from": target.AccessStatus,
			"to":   to,
		})
	}

	return nil
}

// transition commits the guarded status update and its audit record in one
// transactional scope. If either write fails, neither is visible: a status
// change without its audit pairing must never commit.
func (sm *accessStateMachine) transition(ctx context.Context, actor ActorRef, target *Account, to AccessStatus, action AuditAction, options *transitionOptions) (*Account, error) {
	from := target.AccessStatus
	now := sm.now()

	ctx, cancel := context.WithTimeout(ctx, sm.timeout)
	defer cancel()

	var updated *Account

	err := sm.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		updated, err = sm.repo.Accounts().UpdateAccessStatusTx(ctx, tx, target.ID, from, AccessStamp{
			Status: to,
			At:     now,
			By:     actor.ID,
		})
		if err != nil {
			return err
		}

		record := &AuditRecord{
			AccountID:   target.ID,
			Action:      action,
			PerformedBy: &actor.ID,
			Metadata: map[string]any{
				"previous_status": from,
				"new_status":      to,
			},
			CreatedAt: now,
		}
		options.meta.Apply(record)
		if options.reason != "" {
			record.AddMetadata("reason", options.reason)
		}

		if _, err := sm.repo.AuditTrail().AppendTx(ctx, tx, record); err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		sm.logger.Error("access transition failed", "account_id", target.ID.String(), "to", to, "error", err)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "access transition failed")
	}

	*target = *updated
	return target, nil
}

func (sm *accessStateMachine) canTransition(from, to AccessStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func buildTransitionOptions(opts ...TransitionOption) *transitionOptions {
	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}
