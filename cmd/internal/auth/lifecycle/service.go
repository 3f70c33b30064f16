package lifecycle

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"warden/cmd/identity"
	"warden/cmd/internal/audit"
	"warden/cmd/internal/auth/search"
	"warden/cmd/internal/auth/session"
)

// Hasher is the credential verification engine used by the service.
// password.Config satisfies it.
type Hasher interface {
	identity.PasswordHasher
	// Verify reports whether secret matches encoded, in constant time.
	Verify(encoded, secret string) (bool, error)
	// NeedsRehash reports whether encoded was computed with outdated parameters.
	NeedsRehash(encoded string) bool
	// VerifyFiller spends the cost of one verification and always fails.
	VerifyFiller(secret string)
}

// PayloadIdentifier is the token payload key carrying a pending identifier change.
const PayloadIdentifier = "identifier"

// Service implements the identity lifecycle.
type Service struct {
	cfg      Config
	gw       identity.Gateway
	find     *search.Finder
	hasher   Hasher
	sessions *session.Service
	audit    *audit.Emitter
	log      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithEmitter sets the audit emitter. Without it events are dropped.
func WithEmitter(em *audit.Emitter) Option {
	return func(s *Service) { s.audit = em }
}

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService wires a Service. It panics on a nil gateway, hasher or session service.
func NewService(cfg Config, gw identity.Gateway, hasher Hasher, sessions *session.Service, opts ...Option) *Service {
	if hasher == nil {
		panic("lifecycle: nil hasher")
	}
	if sessions == nil {
		panic("lifecycle: nil session service")
	}
	s := &Service{
		cfg:      cfg.withDefaults(),
		gw:       gw,
		find:     search.NewFinder(gw),
		hasher:   hasher,
		sessions: sessions,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Finder exposes the lookup service the lifecycle uses.
func (s *Service) Finder() *search.Finder { return s.find }

// RegisterInput describes a new standard identity.
type RegisterInput struct {
	AccountID  int64
	Identifier string
	Password   string
	// ExpiresOn optionally sets a hard deadline on the identity.
	ExpiresOn *time.Time
}

// Register creates a New standard identity and returns it with its verify token.
func (s *Service) Register(ctx context.Context, now time.Time, in RegisterInput) (*identity.StandardIdentity, string, error) {
	const op = "lifecycle.Register"

	if in.AccountID <= 0 {
		return nil, "", identity.AccountNotFound(op)
	}
	std := identity.NewStandard(in.Identifier, now)
	if std.Identifier == "" {
		return nil, "", identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: "identifier required"}
	}
	std.BindAccount(in.AccountID)
	if in.ExpiresOn != nil {
		std.ExtendUntil(*in.ExpiresOn)
	}

	taken, err := s.gw.Exists(ctx, std)
	if err != nil {
		return nil, "", err
	}
	if taken {
		return nil, "", identity.ConflictError{Op: op, Field: "identifier"}
	}

	std.SetPassword(in.Password)
	if err := std.RehashPassword(s.hasher); err != nil {
		return nil, "", err
	}
	tok, err := std.GenerateToken(identity.ActionVerify, s.cfg.VerifyTokenLifetime, now, nil)
	if err != nil {
		return nil, "", err
	}
	if err := s.gw.Store(ctx, std); err != nil {
		return nil, "", err
	}

	s.audit.Emit(ctx, audit.New(audit.LevelInfo, audit.ActionRegistered).
		WithIdentifier(std.Identifier).
		WithAccount(in.AccountID, std.ID))
	s.emitTokenIssued(ctx, std.Identity, std.Identifier, tok)
	return std, tok, nil
}

// Login resolves identifier and delegates to LoginWithPassword.
// On an unknown identifier a filler verification runs before failing.
func (s *Service) Login(ctx context.Context, now time.Time, identifier, password string) (*identity.CookieIdentity, error) {
	std, err := s.find.ByIdentifier(ctx, identifier)
	if err != nil {
		if identity.IsNotFound(err) {
			s.hasher.VerifyFiller(password)
			s.audit.Emit(ctx, audit.New(audit.LevelWarning, audit.ActionLookupFailed).
				WithIdentifier(identity.NormalizeIdentifier(identifier)))
		}
		return nil, err
	}
	return s.LoginWithPassword(ctx, now, std, password)
}

// LoginWithPassword checks password against std and issues a cookie session.
//
// Exactly one hash verification runs on every path, before any status is
// inspected, so the outcome for a blocked, unverified or missing identity
// costs the same as a wrong password.
//
//   - wrong password, whatever the status: PasswordMismatch, nothing stored;
//   - past ExpiresOn: Expired is stored, IdentityExpired;
//   - New: IdentityNotVerified;
//   - any other non-Active status: IdentityNotFound;
//   - success: outdated hashes are upgraded, LastUsed is bumped, a cookie is issued.
func (s *Service) LoginWithPassword(ctx context.Context, now time.Time, std *identity.StandardIdentity, password string) (*identity.CookieIdentity, error) {
	const op = "lifecycle.LoginWithPassword"

	if std == nil || !std.Stored() {
		s.hasher.VerifyFiller(password)
		return nil, identity.IdentityNotFound(op)
	}
	accountID, _ := std.Account()

	ok, err := s.checkPassword(std, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.audit.Emit(ctx, audit.New(audit.LevelWarning, audit.ActionCredentialMismatch).
			WithIdentifier(std.Identifier).
			WithReason("status_"+std.Status().String()).
			WithAccount(accountID, std.ID))
		return nil, identity.PasswordMismatch(op)
	}
	if err := s.requireActive(ctx, now, op, std); err != nil {
		return nil, err
	}

	if s.hasher.NeedsRehash(std.Hash) {
		s.upgradeHash(ctx, std, password)
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
		WithAccount(accountID, std.ID))
	return cookie, nil
}

// LoginWithCookie renews a persistent-login cookie. See session.Service.Renew.
func (s *Service) LoginWithCookie(ctx context.Context, now time.Time, v session.Value) (*identity.CookieIdentity, error) {
	return s.sessions.Renew(ctx, now, v)
}

// Logout ends one cookie session. See session.Service.Logout.
func (s *Service) Logout(ctx context.Context, now time.Time, v session.Value) error {
	return s.sessions.Logout(ctx, now, v)
}

// checkPassword verifies password against the stored hash. An identity
// without a hash still pays for one verification and never matches.
func (s *Service) checkPassword(std *identity.StandardIdentity, password string) (bool, error) {
	if strings.TrimSpace(std.Hash) == "" {
		s.hasher.VerifyFiller(password)
		return false, nil
	}
	return s.hasher.Verify(std.Hash, password)
}

// upgradeHash rehashes with current parameters. A password that no longer
// passes policy keeps its old hash; the login itself still succeeds.
func (s *Service) upgradeHash(ctx context.Context, std *identity.StandardIdentity, password string) {
	std.SetPassword(password)
	if err := std.RehashPassword(s.hasher); err != nil {
		std.ClearPassword()
		s.log.Warn("identity.password.rehash.skip", "identity_id", std.ID, "err", err)
		return
	}
	accountID, _ := std.Account()
	s.audit.Emit(ctx, audit.New(audit.LevelInfo, audit.ActionPasswordRehashed).
		WithIdentifier(std.Identifier).
		WithAccount(accountID, std.ID))
}

// requireActive enforces the status and expiry preconditions shared by
// password login, reset requests and password changes.
func (s *Service) requireActive(ctx context.Context, now time.Time, op string, std *identity.StandardIdentity) error {
	if std == nil || !std.Stored() {
		return identity.IdentityNotFound(op)
	}
	accountID, _ := std.Account()

	if expired, err := s.expire(ctx, now, std); expired || err != nil {
		if err != nil {
			return err
		}
		return identity.IdentityExpired(op)
	}

	switch std.Status() {
	case identity.StatusActive:
		return nil
	case identity.StatusNew:
		s.audit.Emit(ctx, audit.New(audit.LevelInfo, audit.ActionNotVerified).
			WithIdentifier(std.Identifier).
			WithAccount(accountID, std.ID))
		return identity.IdentityNotVerified(op)
	case identity.StatusExpired:
		return identity.IdentityExpired(op)
	default:
		s.audit.Emit(ctx, audit.New(audit.LevelWarning, audit.ActionLookupFailed).
			WithIdentifier(std.Identifier).
			WithReason("status_"+std.Status().String()).
			WithAccount(accountID, std.ID))
		return identity.IdentityNotFound(op)
	}
}

// expire flips a New or Active identity past its ExpiresOn to Expired and
// persists it. It reports whether the identity was expired.
func (s *Service) expire(ctx context.Context, now time.Time, std *identity.StandardIdentity) (bool, error) {
	if !std.Expired(now) || !std.Status().Alive() {
		return false, nil
	}
	if err := std.Transition(identity.StatusExpired, now); err != nil {
		return false, err
	}
	if err := s.gw.Store(ctx, std); err != nil {
		return false, err
	}
	accountID, _ := std.Account()
	s.audit.Emit(ctx, audit.New(audit.LevelInfo, audit.ActionIdentityExpired).
		WithIdentifier(std.Identifier).
		WithAccount(accountID, std.ID))
	return true, nil
}

// IssueToken assigns a fresh token for action to e and persists it.
// lifetime <= 0 uses the configured lifetime for action.
func (s *Service) IssueToken(ctx context.Context, now time.Time, e identity.Entity, action identity.TokenAction, lifetime time.Duration, payload map[string]string) (string, error) {
	const op = "lifecycle.IssueToken"

	base := e.Base()
	if !base.Stored() {
		return "", identity.IdentityNotFound(op)
	}
	if lifetime <= 0 {
		lifetime = s.cfg.lifetime(action)
	}
	tok, err := base.GenerateToken(action, lifetime, now, payload)
	if err != nil {
		return "", err
	}
	if err := s.gw.Store(ctx, e); err != nil {
		return "", err
	}
	s.emitTokenIssued(ctx, *base, lookupName(e), tok)
	return tok, nil
}

func (s *Service) emitTokenIssued(ctx context.Context, base identity.Identity, name, tok string) {
	accountID, _ := base.Account()
	t, _ := base.Token()
	s.audit.Emit(ctx, audit.New(audit.LevelInfo, audit.ActionTokenIssued).
		WithIdentifier(name).
		WithToken(tok).
		WithReason(t.Action.String()).
		WithAccount(accountID, base.ID))
}

// Verify activates the New identity holding a verify token and clears the token.
//
//   - past ExpiresOn: Expired is stored, IdentityExpired;
//   - already Expired: IdentityExpired;
//   - Blocked or Discarded: IdentityNotFound.
func (s *Service) Verify(ctx context.Context, now time.Time, tokenValue string) (*identity.StandardIdentity, error) {
	const op = "lifecycle.Verify"

	std, err := s.byToken(ctx, now, tokenValue, identity.ActionVerify)
	if err != nil {
		return nil, err
	}
	if expired, err := s.expire(ctx, now, std); expired || err != nil {
		if err != nil {
			return nil, err
		}
		return nil, identity.IdentityExpired(op)
	}
	switch std.Status() {
	case identity.StatusNew, identity.StatusActive:
	case identity.StatusExpired:
		return nil, identity.IdentityExpired(op)
	default:
		accountID, _ := std.Account()
		s.audit.Emit(ctx, audit.New(audit.LevelWarning, audit.ActionLookupFailed).
			WithIdentifier(std.Identifier).
			WithToken(tokenValue).
			WithReason("status_"+std.Status().String()).
			WithAccount(accountID, std.ID))
		return nil, identity.IdentityNotFound(op)
	}
	if err := std.Transition(identity.StatusActive, now); err != nil {
		return nil, err
	}
	std.ClearToken()
	if err := s.gw.Store(ctx, std); err != nil {
		return nil, err
	}

	accountID, _ := std.Account()
	s.audit.Emit(ctx, audit.New(audit.LevelInfo, audit.ActionTokenVerified).
		WithIdentifier(std.Identifier).
		WithToken(tokenValue).
		WithReason(identity.ActionVerify.String()).
		WithAccount(accountID, std.ID))
	return std, nil
}

// RequestReset issues a reset token for identifier.
// A New identity cannot reset: IdentityNotVerified.
func (s *Service) RequestReset(ctx context.Context, now time.Time, identifier string) (string, error) {
	const op = "lifecycle.RequestReset"

	std, err := s.find.ByIdentifier(ctx, identifier)
	if err != nil {
		if identity.IsNotFound(err) {
			s.audit.Emit(ctx, audit.New(audit.LevelWarning, audit.ActionLookupFailed).
				WithIdentifier(identity.NormalizeIdentifier(identifier)).
				WithReason("reset"))
		}
		return "", err
	}
	if err := s.requireActive(ctx, now, op, std); err != nil {
		return "", err
	}
	return s.IssueToken(ctx, now, std, identity.ActionReset, 0, nil)
}

// ResetPassword sets a new password using a reset token, clears the token
// and discards every cookie session of the account.
func (s *Service) ResetPassword(ctx context.Context, now time.Time, tokenValue, newPassword string) error {
	const op = "lifecycle.ResetPassword"

	std, err := s.byToken(ctx, now, tokenValue, identity.ActionReset)
	if err != nil {
		return err
	}
	if err := s.requireActive(ctx, now, op, std); err != nil {
		return err
	}
	std.ClearToken()
	return s.replacePassword(ctx, now, std, newPassword, tokenValue)
}

// ChangePassword replaces the password after checking the current one, then
// discards every cookie session of the account.
func (s *Service) ChangePassword(ctx context.Context, now time.Time, std *identity.StandardIdentity, current, next string) error {
	const op = "lifecycle.ChangePassword"

	if err := s.requireActive(ctx, now, op, std); err != nil {
		return err
	}
	ok, err := s.hasher.Verify(std.Hash, current)
	if err != nil {
		return err
	}
	if !ok {
		accountID, _ := std.Account()
		s.audit.Emit(ctx, audit.New(audit.LevelWarning, audit.ActionCredentialMismatch).
			WithIdentifier(std.Identifier).
			WithReason("change_password").
			WithAccount(accountID, std.ID))
		return identity.PasswordMismatch(op)
	}
	return s.replacePassword(ctx, now, std, next, "")
}

func (s *Service) replacePassword(ctx context.Context, now time.Time, std *identity.StandardIdentity, next, tokenValue string) error {
	std.SetPassword(next)
	if err := std.RehashPassword(s.hasher); err != nil {
		std.ClearPassword()
		return err
	}
	if err := s.gw.Store(ctx, std); err != nil {
		return err
	}

	accountID, _ := std.Account()
	n, err := s.sessions.DiscardAll(ctx, now, accountID)
	if err != nil {
		return err
	}

	s.audit.Emit(ctx, audit.New(audit.LevelInfo, audit.ActionPasswordChanged).
		WithIdentifier(std.Identifier).
		WithToken(tokenValue).
		WithAccount(accountID, std.ID))
	s.log.Info("identity.password.changed", "identity_id", std.ID, "sessions_discarded", n)
	return nil
}

// RequestIdentifierChange issues an update token carrying the new identifier.
func (s *Service) RequestIdentifierChange(ctx context.Context, now time.Time, std *identity.StandardIdentity, newIdentifier string) (string, error) {
	const op = "lifecycle.RequestIdentifierChange"

	if err := s.requireActive(ctx, now, op, std); err != nil {
		return "", err
	}
	next, err := s.freeIdentifier(ctx, op, std, newIdentifier)
	if err != nil {
		return "", err
	}
	return s.IssueToken(ctx, now, std, identity.ActionUpdate, 0, map[string]string{PayloadIdentifier: next})
}

// ConfirmIdentifierChange applies the identifier carried by an update token.
func (s *Service) ConfirmIdentifierChange(ctx context.Context, now time.Time, tokenValue string) (*identity.StandardIdentity, error) {
	const op = "lifecycle.ConfirmIdentifierChange"

	std, err := s.byToken(ctx, now, tokenValue, identity.ActionUpdate)
	if err != nil {
		return nil, err
	}
	if err := s.requireActive(ctx, now, op, std); err != nil {
		return nil, err
	}
	tok, _ := std.Token()
	next, err := s.freeIdentifier(ctx, op, std, tok.Payload[PayloadIdentifier])
	if err != nil {
		if identity.IsInvalidInput(err) {
			return nil, identity.OpError{Op: op, Kind: identity.ErrMalformed, Msg: "token payload has no usable identifier"}
		}
		return nil, err
	}

	previous := std.Identifier
	std.SetIdentifier(next)
	std.ClearToken()
	if err := s.gw.Store(ctx, std); err != nil {
		return nil, err
	}

	accountID, _ := std.Account()
	s.audit.Emit(ctx, audit.New(audit.LevelInfo, audit.ActionIdentifierChanged).
		WithIdentifier(std.Identifier).
		WithToken(tokenValue).
		WithReason("from="+previous).
		WithAccount(accountID, std.ID))
	return std, nil
}

// freeIdentifier normalizes v and checks it is different from std's and unused.
func (s *Service) freeIdentifier(ctx context.Context, op string, std *identity.StandardIdentity, v string) (string, error) {
	next := identity.NormalizeIdentifier(v)
	if next == "" || next == std.Identifier {
		return "", identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: "new identifier required"}
	}
	taken, err := s.gw.Exists(ctx, identity.NewStandard(next, time.Time{}))
	if err != nil {
		return "", err
	}
	if taken {
		return "", identity.ConflictError{Op: op, Field: "identifier"}
	}
	return next, nil
}

func (s *Service) byToken(ctx context.Context, now time.Time, tokenValue string, action identity.TokenAction) (*identity.StandardIdentity, error) {
	std, err := s.find.ByToken(ctx, now, tokenValue, action)
	if err != nil {
		if identity.IsNotFound(err) || identity.IsMalformed(err) {
			s.audit.Emit(ctx, audit.New(audit.LevelWarning, audit.ActionLookupFailed).
				WithToken(strings.TrimSpace(tokenValue)).
				WithReason(action.String()))
		}
		return nil, err
	}
	return std, nil
}

func lookupName(e identity.Entity) string {
	switch v := e.(type) {
	case *identity.StandardIdentity:
		return v.Identifier
	case *identity.CookieIdentity:
		return v.Series
	case *identity.NonceIdentity:
		return v.Identifier
	}
	return ""
}
