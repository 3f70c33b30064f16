package session

import (
	"context"
	"fmt"
	"time"

	"warden/cmd/identity"
	"warden/cmd/internal/audit"
	"warden/cmd/internal/auth/search"
	"warden/cmd/security/token"
)

// Service issues, renews and ends cookie sessions.
type Service struct {
	cfg   Config
	gw    identity.Gateway
	find  *search.Finder
	audit *audit.Emitter
}

// Option configures a Service.
type Option func(*Service)

// WithEmitter sets the audit emitter. Without it events are dropped.
func WithEmitter(em *audit.Emitter) Option {
	return func(s *Service) { s.audit = em }
}

// NewService constructs a Service over gw. It panics on a nil gateway.
func NewService(cfg Config, gw identity.Gateway, opts ...Option) *Service {
	s := &Service{cfg: cfg.withDefaults(), gw: gw, find: search.NewFinder(gw)}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

// Issue creates an Active cookie for parent's account and persists it.
// The returned cookie carries the plain Key; use ValueOf for the client value.
func (s *Service) Issue(ctx context.Context, now time.Time, parent *identity.StandardIdentity) (*identity.CookieIdentity, error) {
	const op = "session.Issue"

	if parent == nil {
		return nil, identity.IdentityNotFound(op)
	}
	accountID, ok := parent.Account()
	if !ok {
		return nil, identity.AccountNotFound(op)
	}

	c := identity.NewCookie(parent, now)
	if err := s.assignSeries(ctx, c); err != nil {
		return nil, err
	}
	if _, err := c.RotateKey(s.cfg.KeyBytes); err != nil {
		return nil, err
	}
	c.SetStatus(identity.StatusActive, now)
	c.ExtendUntil(now.Add(s.cfg.CookieLifespan))
	c.Touch(now)

	if err := s.gw.Store(ctx, c); err != nil {
		return nil, err
	}

	s.audit.Emit(ctx, audit.New(audit.LevelInfo, audit.ActionCookieIssued).
		WithIdentifier(c.Series).
		WithAccount(accountID, c.ID))
	return c, nil
}

// assignSeries draws series values until one is unused.
// The Exists pre-check races with concurrent issuers; Store's unique constraint decides.
func (s *Service) assignSeries(ctx context.Context, c *identity.CookieIdentity) error {
	for range s.cfg.MaxSeriesAttempts {
		series, err := token.NewHex(s.cfg.SeriesBytes)
		if err != nil {
			return err
		}
		c.Series = series
		taken, err := s.gw.Exists(ctx, c)
		if err != nil {
			return err
		}
		if !taken {
			return nil
		}
	}
	c.Series = ""
	return fmt.Errorf("session.Issue: %w after %d attempts", ErrSeriesExhausted, s.cfg.MaxSeriesAttempts)
}

// Renew authenticates with a cookie value and rotates its key.
//
// Outcomes, in order:
//   - unknown series for the account: DenialOfServiceAttempt, nothing stored;
//   - cookie no longer Active: IdentityNotFound;
//   - past ExpiresOn: status Expired is stored, IdentityExpired;
//   - key mismatch: status Blocked is stored, CompromisedCookie;
//   - otherwise a new key is stored with LastUsed and ExpiresOn advanced.
//
// The key is checked before any rotation happens.
func (s *Service) Renew(ctx context.Context, now time.Time, v Value) (*identity.CookieIdentity, error) {
	const op = "session.Renew"

	c, err := s.lookup(ctx, op, v)
	if err != nil {
		return nil, err
	}
	accountID, _ := c.Account()

	if c.Expired(now) {
		if err := s.markExpired(ctx, now, c); err != nil {
			return nil, err
		}
		return nil, identity.IdentityExpired(op)
	}

	if !c.MatchKey(v.Key) {
		if err := s.block(ctx, now, c, v.Key); err != nil {
			return nil, err
		}
		return nil, identity.CompromisedCookie(op)
	}

	if _, err := c.RotateKey(s.cfg.KeyBytes); err != nil {
		return nil, err
	}
	c.Touch(now)
	c.ExtendUntil(now.Add(s.cfg.CookieLifespan))
	if err := s.gw.Store(ctx, c); err != nil {
		return nil, err
	}

	s.audit.Emit(ctx, audit.New(audit.LevelInfo, audit.ActionCookieRenewed).
		WithIdentifier(c.Series).
		WithAccount(accountID, c.ID))
	return c, nil
}

// Logout verifies the cookie key and discards the series.
// A key mismatch is handled exactly like Renew: Blocked and CompromisedCookie.
func (s *Service) Logout(ctx context.Context, now time.Time, v Value) error {
	const op = "session.Logout"

	c, err := s.find.ByCookie(ctx, v.AccountID, v.Series)
	if err != nil {
		return err
	}
	if !c.Status().Alive() {
		return identity.IdentityNotFound(op)
	}
	if !c.MatchKey(v.Key) {
		if err := s.block(ctx, now, c, v.Key); err != nil {
			return err
		}
		return identity.CompromisedCookie(op)
	}
	if err := c.Transition(identity.StatusDiscarded, now); err != nil {
		return err
	}
	if err := s.gw.Store(ctx, c); err != nil {
		return err
	}

	s.audit.Emit(ctx, audit.New(audit.LevelInfo, audit.ActionLogout).
		WithIdentifier(c.Series).
		WithAccount(v.AccountID, c.ID))
	return nil
}

// DiscardAll discards every New or Active cookie of the account and returns how many changed.
func (s *Service) DiscardAll(ctx context.Context, now time.Time, accountID int64) (int, error) {
	n, err := s.discardExcept(ctx, now, accountID, 0)
	if err != nil {
		return n, err
	}
	s.audit.Emit(ctx, audit.New(audit.LevelInfo, audit.ActionLogoutAll).
		WithAccount(accountID, 0).
		WithReason(fmt.Sprintf("discarded=%d", n)))
	return n, nil
}

func (s *Service) discardExcept(ctx context.Context, now time.Time, accountID, keepID int64) (int, error) {
	cookies, err := s.find.Cookies(ctx, accountID, identity.StatusNew, identity.StatusActive)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range cookies {
		if c.ID == keepID {
			continue
		}
		if err := c.Transition(identity.StatusDiscarded, now); err != nil {
			return n, err
		}
		if err := s.gw.Store(ctx, c); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *Service) lookup(ctx context.Context, op string, v Value) (*identity.CookieIdentity, error) {
	c, err := s.find.ByCookie(ctx, v.AccountID, v.Series)
	if identity.IsNotFound(err) {
		s.audit.Emit(ctx, audit.New(audit.LevelCritical, audit.ActionCookieUnknown).
			WithIdentifier(v.Series).
			WithKey(v.Key).
			WithReason(identity.ReasonDenialOfService).
			WithAccount(v.AccountID, 0))
		return nil, identity.DenialOfServiceAttempt(op)
	}
	if err != nil {
		return nil, err
	}
	if c.Status() != identity.StatusActive {
		s.audit.Emit(ctx, audit.New(audit.LevelWarning, audit.ActionLookupFailed).
			WithIdentifier(c.Series).
			WithReason("status_"+c.Status().String()).
			WithAccount(v.AccountID, c.ID))
		return nil, identity.IdentityNotFound(op)
	}
	return c, nil
}

func (s *Service) markExpired(ctx context.Context, now time.Time, c *identity.CookieIdentity) error {
	if err := c.Transition(identity.StatusExpired, now); err != nil {
		return err
	}
	if err := s.gw.Store(ctx, c); err != nil {
		return err
	}
	accountID, _ := c.Account()
	s.audit.Emit(ctx, audit.New(audit.LevelInfo, audit.ActionCookieExpired).
		WithIdentifier(c.Series).
		WithAccount(accountID, c.ID))
	return nil
}

// block marks c Blocked and, when configured, discards the account's other live cookies.
func (s *Service) block(ctx context.Context, now time.Time, c *identity.CookieIdentity, presentedKey string) error {
	if err := c.Transition(identity.StatusBlocked, now); err != nil {
		return err
	}
	if err := s.gw.Store(ctx, c); err != nil {
		return err
	}
	accountID, _ := c.Account()
	s.audit.Emit(ctx, audit.New(audit.LevelCritical, audit.ActionCookieCompromised).
		WithIdentifier(c.Series).
		WithKey(presentedKey).
		WithReason(identity.ReasonCompromisedCookie).
		WithAccount(accountID, c.ID))

	if !s.cfg.CascadeOnCompromise {
		return nil
	}
	_, err := s.discardExcept(ctx, now, accountID, c.ID)
	return err
}
