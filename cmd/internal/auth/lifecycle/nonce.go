package lifecycle

import (
	"context"
	"time"

	"warden/cmd/identity"
	"warden/cmd/internal/audit"
)

// IssueNonce creates an Active single-use nonce for accountID and returns it
// with its key. The key is not stored; only its digest is.
// lifetime <= 0 uses Config.NonceLifetime.
func (s *Service) IssueNonce(ctx context.Context, now time.Time, accountID int64, lifetime time.Duration) (*identity.NonceIdentity, string, error) {
	const op = "lifecycle.IssueNonce"

	if accountID <= 0 {
		return nil, "", identity.AccountNotFound(op)
	}
	if lifetime <= 0 {
		lifetime = s.cfg.NonceLifetime
	}

	n := identity.NewNonce(accountID, now)
	if _, err := n.GenerateIdentifier(s.cfg.NonceBytes); err != nil {
		return nil, "", err
	}
	key, err := n.RotateKey(s.cfg.NonceKeyBytes)
	if err != nil {
		return nil, "", err
	}
	if err := n.Transition(identity.StatusActive, now); err != nil {
		return nil, "", err
	}
	n.ExtendUntil(now.Add(lifetime))
	if err := s.gw.Store(ctx, n); err != nil {
		return nil, "", err
	}

	s.audit.Emit(ctx, audit.New(audit.LevelInfo, audit.ActionNonceIssued).
		WithIdentifier(n.Identifier).
		WithAccount(accountID, n.ID))
	return n, key, nil
}

// ConsumeNonce checks key against the active nonce identifier and discards it.
//
//   - unknown or already consumed: IdentityNotFound;
//   - past ExpiresOn: Expired is stored, IdentityExpired;
//   - key mismatch: Blocked is stored, PasswordMismatch.
func (s *Service) ConsumeNonce(ctx context.Context, now time.Time, identifier, key string) (*identity.NonceIdentity, error) {
	const op = "lifecycle.ConsumeNonce"

	n, err := s.find.ByNonce(ctx, identifier)
	if err != nil {
		if identity.IsNotFound(err) {
			s.audit.Emit(ctx, audit.New(audit.LevelWarning, audit.ActionLookupFailed).
				WithIdentifier(identifier).
				WithKey(key).
				WithReason("nonce"))
		}
		return nil, err
	}
	accountID, _ := n.Account()

	if n.Expired(now) {
		if err := n.Transition(identity.StatusExpired, now); err != nil {
			return nil, err
		}
		if err := s.gw.Store(ctx, n); err != nil {
			return nil, err
		}
		s.audit.Emit(ctx, audit.New(audit.LevelInfo, audit.ActionIdentityExpired).
			WithIdentifier(n.Identifier).
			WithAccount(accountID, n.ID))
		return nil, identity.IdentityExpired(op)
	}

	if !n.MatchKey(key) {
		if err := n.Transition(identity.StatusBlocked, now); err != nil {
			return nil, err
		}
		if err := s.gw.Store(ctx, n); err != nil {
			return nil, err
		}
		s.audit.Emit(ctx, audit.New(audit.LevelWarning, audit.ActionCredentialMismatch).
			WithIdentifier(n.Identifier).
			WithKey(key).
			WithReason("nonce").
			WithAccount(accountID, n.ID))
		return nil, identity.PasswordMismatch(op)
	}

	if err := n.Transition(identity.StatusDiscarded, now); err != nil {
		return nil, err
	}
	n.Touch(now)
	if err := s.gw.Store(ctx, n); err != nil {
		return nil, err
	}

	s.audit.Emit(ctx, audit.New(audit.LevelInfo, audit.ActionNonceConsumed).
		WithIdentifier(n.Identifier).
		WithAccount(accountID, n.ID))
	return n, nil
}

// LoginWithNonce consumes the nonce and issues a cookie for the account's
// standard identity, which must be Active.
func (s *Service) LoginWithNonce(ctx context.Context, now time.Time, identifier, key string) (*identity.CookieIdentity, error) {
	const op = "lifecycle.LoginWithNonce"

	n, err := s.ConsumeNonce(ctx, now, identifier, key)
	if err != nil {
		return nil, err
	}
	accountID, ok := n.Account()
	if !ok {
		return nil, identity.AccountNotFound(op)
	}
	std, err := s.find.ByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := s.requireActive(ctx, now, op, std); err != nil {
		return nil, err
	}
	std.Touch(now)
	if err := s.gw.Store(ctx, std); err != nil {
		return nil, err
	}
	cookie, err := s.sessions.Issue(ctx, now, std)
	if err != nil {
		return nil, err
	}
	s.audit.Emit(ctx, audit.New(audit.LevelInfo, audit.ActionLoginSuccess).
		WithIdentifier(std.Identifier).
		WithReason("nonce").
		WithAccount(accountID, std.ID))
	return cookie, nil
}
