package account

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/rollcall-app/rollcall/internal/shared"
)

// Service composes the resolver, lifecycle state machine and authorization
// gate into the operations exposed to the web layer.
type Service struct {
	store     Store
	resolver  *Resolver
	lifecycle *Lifecycle
	audit     *shared.AuditLogger
	approvals *shared.ApprovalRecorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs a Service. audit, approvals and logger may be nil.
func NewService(store Store, audit *shared.AuditLogger, approvals *shared.ApprovalRecorder, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		resolver:  NewResolver(store),
		lifecycle: NewLifecycle(store),
		audit:     audit,
		approvals: approvals,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// SignIn decides what happens for an identity assertion. Only
// OutcomeAccepted touches last_login; rejected attempts leave the account
// untouched. Creation races on the email uniqueness constraint are
// recovered here and never surface to the caller.
func (s *Service) SignIn(ctx context.Context, identity ExternalIdentity) (Decision, error) {
	res, err := s.resolver.Resolve(ctx, identity)
	if err != nil {
		return Decision{}, err
	}

	if res.Found {
		return s.decideForExisting(ctx, identity, res.Account)
	}

	draft := *res.Proposed
	created, err := s.store.InsertIfAbsent(ctx, draft)
	if errors.Is(err, ErrConflict) {
		// Lost the first-sign-in race. Re-resolve and proceed as found.
		existing, ferr := s.store.FindByEmail(ctx, draft.Email)
		if ferr != nil {
			return Decision{}, ferr
		}
		return s.decideForExisting(ctx, identity, existing)
	}
	if err != nil {
		return Decision{}, err
	}

	if s.logger != nil {
		s.logger.Info("account created on first sign-in",
			slog.String("email", created.Email),
			slog.String("role", string(created.Role)))
	}
	return Decision{Outcome: OutcomeCreated, Account: created}, nil
}

func (s *Service) decideForExisting(ctx context.Context, identity ExternalIdentity, acct *Account) (Decision, error) {
	// Blocked wins over everything, including a correct password.
	switch acct.Status {
	case StatusBlocked:
		return Decision{Outcome: OutcomeRejectedBlocked, Account: acct}, nil
	case StatusPending:
		return Decision{Outcome: OutcomeRejectedPending, Account: acct}, nil
	}

	if identity.Provider == ProviderCredentials {
		if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(identity.Password)); err != nil {
			return Decision{}, ErrInvalidCredentials
		}
	}

	at := s.now().UTC()
	if err := s.store.RecordLogin(ctx, acct.ID, at); err != nil {
		return Decision{}, err
	}
	if at.After(acct.LastLogin) {
		acct.LastLogin = at
	}
	return Decision{Outcome: OutcomeAccepted, Account: acct}, nil
}

// Approve activates a pending account on behalf of caller.
func (s *Service) Approve(ctx context.Context, caller *Account, targetID int64) (*Account, error) {
	if err := Authorize(caller.Role, ActionApprove); err != nil {
		return nil, err
	}
	acct, err := s.lifecycle.Approve(ctx, targetID)
	if err != nil {
		return nil, err
	}
	s.record(ctx, caller, acct, "approve", shared.ApprovalApprove)
	return acct, nil
}

// Block moves an account to blocked on behalf of caller.
func (s *Service) Block(ctx context.Context, caller *Account, targetID int64) (*Account, error) {
	if err := Authorize(caller.Role, ActionBlock); err != nil {
		return nil, err
	}
	acct, err := s.lifecycle.Block(ctx, targetID)
	if err != nil {
		return nil, err
	}
	s.record(ctx, caller, acct, "block", shared.ApprovalReject)
	return acct, nil
}

// ChangeRole updates another account's role. Admin only.
func (s *Service) ChangeRole(ctx context.Context, caller *Account, targetID int64, role Role) (*Account, error) {
	if err := Authorize(caller.Role, ActionChangeRole); err != nil {
		return nil, err
	}
	if _, err := ParseRole(string(role)); err != nil {
		return nil, errors.Join(ErrInvalidIdentity, err)
	}
	acct, err := s.store.UpdateRole(ctx, targetID, role)
	if err != nil {
		return nil, err
	}
	s.record(ctx, caller, acct, "change_role", "")
	return acct, nil
}

// Get fetches one account by id.
func (s *Service) Get(ctx context.Context, id int64) (*Account, error) {
	return s.store.FindByID(ctx, id)
}

// List returns all accounts for the admin surface.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.store.List(ctx)
}

// Counts returns accounts grouped by status for the dashboard.
func (s *Service) Counts(ctx context.Context) (map[Status]int64, error) {
	return s.store.CountByStatus(ctx)
}

func (s *Service) record(ctx context.Context, caller, target *Account, action string, approval shared.ApprovalAction) {
	entityID := strconv.FormatInt(target.ID, 10)
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  caller.ID,
			Action:   action,
			Entity:   "account",
			EntityID: entityID,
			Meta:     map[string]any{"status": string(target.Status), "role": string(target.Role)},
		}); err != nil && s.logger != nil {
			s.logger.Warn("audit account action", slog.Any("error", err))
		}
	}
	if s.approvals != nil && approval != "" {
		if err := s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  "accounts",
			RefID:   entityID,
			ActorID: caller.ID,
			Action:  approval,
		}); err != nil && s.logger != nil {
			s.logger.Warn("record approval", slog.Any("error", err))
		}
	}
}
