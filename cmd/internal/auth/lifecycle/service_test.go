package lifecycle

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/cmd/identity"
	"warden/cmd/internal/audit"
	"warden/cmd/internal/auth/session"
	"warden/cmd/security/password"
)

var now = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

const (
	email  = "Alice@Example.com"
	secret = "correct horse battery"
)

// spyHasher wraps a fast password.Config and counts calls.
type spyHasher struct {
	password.Config
	fillers  atomic.Int32
	verifies atomic.Int32
	rehash   bool
}

func (h *spyHasher) Verify(encoded, pw string) (bool, error) {
	h.verifies.Add(1)
	return h.Config.Verify(encoded, pw)
}

func (h *spyHasher) VerifyFiller(pw string) {
	h.fillers.Add(1)
	h.Config.VerifyFiller(pw)
}

func (h *spyHasher) NeedsRehash(encoded string) bool {
	return h.rehash || h.Config.NeedsRehash(encoded)
}

type captureSink struct{ events []audit.Event }

func (c *captureSink) Emit(_ context.Context, e audit.Event) error {
	c.events = append(c.events, e)
	return nil
}

func (c *captureSink) has(action string) bool {
	for _, e := range c.events {
		if e.Action == action {
			return true
		}
	}
	return false
}

type fixture struct {
	gw       *identity.InMemoryStore
	hasher   *spyHasher
	sink     *captureSink
	sessions *session.Service
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gw := identity.NewInMemoryStore()
	h := &spyHasher{Config: password.New(
		password.Argon2idParams{MemoryKiB: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		password.Policy{MinLength: 8, MaxLength: 256},
	)}
	sink := &captureSink{}
	em := audit.NewEmitter(sink, nil)
	sessions := session.NewService(session.DefaultConfig(), gw, session.WithEmitter(em))
	svc := NewService(DefaultConfig(), gw, h, sessions, WithEmitter(em))
	return &fixture{gw: gw, hasher: h, sink: sink, sessions: sessions, svc: svc}
}

// active registers and verifies an identity for account 1.
func (f *fixture) active(t *testing.T) *identity.StandardIdentity {
	t.Helper()
	ctx := context.Background()

	_, tok, err := f.svc.Register(ctx, now, RegisterInput{AccountID: 1, Identifier: email, Password: secret})
	require.NoError(t, err)
	std, err := f.svc.Verify(ctx, now, tok)
	require.NoError(t, err)
	return std
}

func (f *fixture) reload(t *testing.T, id int64) *identity.StandardIdentity {
	t.Helper()
	std := &identity.StandardIdentity{Identity: identity.Identity{Type: identity.TypeStandard}}
	require.NoError(t, f.gw.FetchByID(context.Background(), std, id))
	require.NotZero(t, std.ID)
	return std
}

func TestRegister_CreatesNewIdentityWithVerifyToken(t *testing.T) {
	f := newFixture(t)

	std, tok, err := f.svc.Register(context.Background(), now, RegisterInput{AccountID: 1, Identifier: email, Password: secret})
	require.NoError(t, err)

	assert.NotZero(t, std.ID)
	assert.Equal(t, "alice@example.com", std.Identifier)
	assert.Equal(t, identity.StatusNew, std.Status())
	assert.NotContains(t, std.Hash, secret)
	assert.Len(t, tok, identity.TokenLen)
	assert.True(t, std.TokenValid(identity.ActionVerify, now))
	assert.True(t, f.sink.has(audit.ActionRegistered))
	assert.True(t, f.sink.has(audit.ActionTokenIssued))
}

func TestRegister_DuplicateIdentifierConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Register(ctx, now, RegisterInput{AccountID: 1, Identifier: email, Password: secret})
	require.NoError(t, err)

	_, _, err = f.svc.Register(ctx, now, RegisterInput{AccountID: 2, Identifier: "  ALICE@example.COM ", Password: secret})
	require.Error(t, err)
	assert.True(t, identity.IsConflict(err))
	assert.Equal(t, 1, f.gw.Len())
}

func TestRegister_RejectsPolicyViolation(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.Register(context.Background(), now, RegisterInput{AccountID: 1, Identifier: email, Password: "short"})
	require.ErrorIs(t, err, password.ErrPasswordTooShort)
	assert.Zero(t, f.gw.Len())
}

func TestVerify_ActivatesAndClearsToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, tok, err := f.svc.Register(ctx, now, RegisterInput{AccountID: 1, Identifier: email, Password: secret})
	require.NoError(t, err)

	std, err := f.svc.Verify(ctx, now.Add(time.Hour), tok)
	require.NoError(t, err)
	assert.Equal(t, identity.StatusActive, std.Status())

	stored := f.reload(t, std.ID)
	_, has := stored.Token()
	assert.False(t, has)
	assert.Equal(t, identity.StatusActive, stored.Status())

	_, err = f.svc.Verify(ctx, now.Add(time.Hour), tok)
	assert.True(t, identity.IsTokenNotFound(err))
}

func TestVerify_ExpiredTokenIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, tok, err := f.svc.Register(ctx, now, RegisterInput{AccountID: 1, Identifier: email, Password: secret})
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, now.Add(DefaultConfig().VerifyTokenLifetime+time.Second), tok)
	assert.True(t, identity.IsTokenNotFound(err))
}

func TestVerify_PastDeadlineMarksExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	deadline := now.Add(time.Hour)

	std, tok, err := f.svc.Register(ctx, now, RegisterInput{AccountID: 1, Identifier: email, Password: secret, ExpiresOn: &deadline})
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, now.Add(3*time.Hour), tok)
	require.Error(t, err)
	assert.True(t, identity.IsExpired(err))
	assert.True(t, f.sink.has(audit.ActionIdentityExpired))

	stored := f.reload(t, std.ID)
	assert.Equal(t, identity.StatusExpired, stored.Status())

	_, err = f.svc.Verify(ctx, now.Add(4*time.Hour), tok)
	assert.True(t, identity.IsExpired(err))
}

func TestVerify_BlockedIdentityIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	std, tok, err := f.svc.Register(ctx, now, RegisterInput{AccountID: 1, Identifier: email, Password: secret})
	require.NoError(t, err)
	require.NoError(t, std.Transition(identity.StatusBlocked, now))
	require.NoError(t, f.gw.Store(ctx, std))

	_, err = f.svc.Verify(ctx, now, tok)
	require.Error(t, err)
	assert.True(t, identity.IsNotFound(err))
	assert.False(t, identity.IsTokenNotFound(err))
	assert.NotErrorIs(t, err, identity.ErrInvalidTransition)
	assert.Equal(t, identity.StatusBlocked, f.reload(t, std.ID).Status())
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	std := f.active(t)

	later := now.Add(time.Minute)
	cookie, err := f.svc.Login(context.Background(), later, email, secret)
	require.NoError(t, err)

	assert.Equal(t, identity.StatusActive, cookie.Status())
	require.NotNil(t, cookie.ParentID)
	assert.Equal(t, std.ID, *cookie.ParentID)
	assert.NotEmpty(t, cookie.Key)

	stored := f.reload(t, std.ID)
	require.NotNil(t, stored.LastUsed)
	assert.True(t, stored.LastUsed.Equal(later))
	assert.True(t, f.sink.has(audit.ActionLoginSuccess))
}

func TestLogin_WrongPasswordChangesNothing(t *testing.T) {
	f := newFixture(t)
	std := f.active(t)

	_, err := f.svc.Login(context.Background(), now, email, "not the password")
	require.Error(t, err)
	assert.True(t, identity.IsCredentialMismatch(err))

	stored := f.reload(t, std.ID)
	assert.Equal(t, identity.StatusActive, stored.Status())
	assert.Nil(t, stored.LastUsed)
	assert.True(t, f.sink.has(audit.ActionCredentialMismatch))

	cookies, err := f.svc.Finder().Cookies(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, cookies)
}

func TestLogin_UnknownIdentifierRunsFiller(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Login(context.Background(), now, "nobody@example.com", secret)
	require.Error(t, err)
	assert.True(t, identity.IsNotFound(err))
	assert.Equal(t, int32(1), f.hasher.fillers.Load())
	assert.True(t, f.sink.has(audit.ActionLookupFailed))
}

func TestLogin_NewIdentityIsNotVerified(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.Register(context.Background(), now, RegisterInput{AccountID: 1, Identifier: email, Password: secret})
	require.NoError(t, err)

	_, err = f.svc.Login(context.Background(), now, email, "not the password")
	require.Error(t, err)
	assert.True(t, identity.IsCredentialMismatch(err))

	_, err = f.svc.Login(context.Background(), now, email, secret)
	require.Error(t, err)
	assert.True(t, identity.IsNotVerified(err))
	assert.Equal(t, int32(2), f.hasher.verifies.Load())
}

func TestLoginWithPassword_HashWorkIndependentOfStatus(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T, f *fixture) *identity.StandardIdentity
		password string
		check    func(error) bool
	}{
		{
			name:     "unknown",
			setup:    func(*testing.T, *fixture) *identity.StandardIdentity { return nil },
			password: secret,
			check:    identity.IsNotFound,
		},
		{
			name:     "unstored",
			setup:    func(*testing.T, *fixture) *identity.StandardIdentity { return &identity.StandardIdentity{} },
			password: secret,
			check:    identity.IsNotFound,
		},
		{
			name:     "active wrong password",
			setup:    func(t *testing.T, f *fixture) *identity.StandardIdentity { return f.active(t) },
			password: "not the password",
			check:    identity.IsCredentialMismatch,
		},
		{
			name: "new",
			setup: func(t *testing.T, f *fixture) *identity.StandardIdentity {
				std, _, err := f.svc.Register(context.Background(), now, RegisterInput{AccountID: 1, Identifier: email, Password: secret})
				require.NoError(t, err)
				return std
			},
			password: secret,
			check:    identity.IsNotVerified,
		},
		{
			name: "blocked wrong password",
			setup: func(t *testing.T, f *fixture) *identity.StandardIdentity {
				std := f.active(t)
				require.NoError(t, std.Transition(identity.StatusBlocked, now))
				require.NoError(t, f.gw.Store(context.Background(), std))
				return std
			},
			password: "not the password",
			check:    identity.IsCredentialMismatch,
		},
		{
			name: "discarded",
			setup: func(t *testing.T, f *fixture) *identity.StandardIdentity {
				std := f.active(t)
				require.NoError(t, std.Transition(identity.StatusDiscarded, now))
				require.NoError(t, f.gw.Store(context.Background(), std))
				return std
			},
			password: secret,
			check:    identity.IsNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			std := tt.setup(t, f)
			f.hasher.verifies.Store(0)
			f.hasher.fillers.Store(0)

			_, err := f.svc.LoginWithPassword(context.Background(), now, std, tt.password)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
			assert.Equal(t, int32(1), f.hasher.verifies.Load()+f.hasher.fillers.Load())
		})
	}
}

func TestLogin_ExpiredIdentityIsMarkedExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	deadline := now.Add(24 * time.Hour)

	_, tok, err := f.svc.Register(ctx, now, RegisterInput{AccountID: 1, Identifier: email, Password: secret, ExpiresOn: &deadline})
	require.NoError(t, err)
	std, err := f.svc.Verify(ctx, now, tok)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, deadline.Add(time.Second), email, secret)
	require.Error(t, err)
	assert.True(t, identity.IsExpired(err))

	stored := f.reload(t, std.ID)
	assert.Equal(t, identity.StatusExpired, stored.Status())
	assert.True(t, stored.StatusChangedOn().Equal(deadline.Add(time.Second)))

	_, err = f.svc.Login(ctx, deadline.Add(time.Minute), email, secret)
	assert.True(t, identity.IsExpired(err))
}

func TestLogin_BlockedIdentityIsNotFound(t *testing.T) {
	f := newFixture(t)
	std := f.active(t)

	require.NoError(t, std.Transition(identity.StatusBlocked, now))
	require.NoError(t, f.gw.Store(context.Background(), std))

	_, err := f.svc.Login(context.Background(), now, email, secret)
	require.Error(t, err)
	assert.True(t, identity.IsNotFound(err))
}

func TestLogin_RehashesOutdatedHash(t *testing.T) {
	f := newFixture(t)
	std := f.active(t)
	before := std.Hash

	f.hasher.rehash = true
	_, err := f.svc.Login(context.Background(), now, email, secret)
	require.NoError(t, err)

	stored := f.reload(t, std.ID)
	assert.NotEqual(t, before, stored.Hash)
	ok, err := f.hasher.Config.Verify(stored.Hash, secret)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, f.sink.has(audit.ActionPasswordRehashed))
}

func TestResetFlow_ChangesPasswordAndDiscardsCookies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	std := f.active(t)

	c1, err := f.svc.Login(ctx, now, email, secret)
	require.NoError(t, err)
	c2, err := f.svc.Login(ctx, now, email, secret)
	require.NoError(t, err)

	tok, err := f.svc.RequestReset(ctx, now, email)
	require.NoError(t, err)

	const next = "a brand new secret"
	require.NoError(t, f.svc.ResetPassword(ctx, now.Add(time.Minute), tok, next))

	stored := f.reload(t, std.ID)
	_, has := stored.Token()
	assert.False(t, has)

	for _, id := range []int64{c1.ID, c2.ID} {
		c, err := f.svc.Finder().CookieByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, identity.StatusDiscarded, c.Status())
	}

	_, err = f.svc.Login(ctx, now, email, secret)
	assert.True(t, identity.IsCredentialMismatch(err))
	_, err = f.svc.Login(ctx, now, email, next)
	assert.NoError(t, err)

	err = f.svc.ResetPassword(ctx, now, tok, "another secret!!")
	assert.True(t, identity.IsTokenNotFound(err))
}

func TestRequestReset_NewIdentityIsNotVerified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Register(ctx, now, RegisterInput{AccountID: 1, Identifier: email, Password: secret})
	require.NoError(t, err)

	_, err = f.svc.RequestReset(ctx, now, email)
	require.Error(t, err)
	assert.True(t, identity.IsNotVerified(err))
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	std := f.active(t)

	c, err := f.svc.Login(ctx, now, email, secret)
	require.NoError(t, err)

	err = f.svc.ChangePassword(ctx, now, std, "wrong current", "a brand new secret")
	assert.True(t, identity.IsCredentialMismatch(err))

	require.NoError(t, f.svc.ChangePassword(ctx, now, std, secret, "a brand new secret"))

	got, err := f.svc.Finder().CookieByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, identity.StatusDiscarded, got.Status())
	assert.True(t, f.sink.has(audit.ActionPasswordChanged))
}

func TestIdentifierChangeFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	std := f.active(t)

	tok, err := f.svc.RequestIdentifierChange(ctx, now, std, "Alice.New@Example.com")
	require.NoError(t, err)

	stored := f.reload(t, std.ID)
	pending, ok := stored.Token()
	require.True(t, ok)
	assert.Equal(t, identity.ActionUpdate, pending.Action)
	assert.Equal(t, "alice.new@example.com", pending.Payload[PayloadIdentifier])

	got, err := f.svc.ConfirmIdentifierChange(ctx, now, tok)
	require.NoError(t, err)
	assert.Equal(t, "alice.new@example.com", got.Identifier)

	_, err = f.svc.Finder().ByIdentifier(ctx, email)
	assert.True(t, identity.IsNotFound(err))
	_, err = f.svc.Login(ctx, now, "alice.new@example.com", secret)
	assert.NoError(t, err)
}

func TestIdentifierChange_TakenIdentifierConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	std := f.active(t)

	_, _, err := f.svc.Register(ctx, now, RegisterInput{AccountID: 2, Identifier: "bob@example.com", Password: secret})
	require.NoError(t, err)

	_, err = f.svc.RequestIdentifierChange(ctx, now, std, "bob@example.com")
	assert.True(t, identity.IsConflict(err))

	_, err = f.svc.RequestIdentifierChange(ctx, now, std, email)
	assert.True(t, identity.IsInvalidInput(err))
}

func TestConfirmIdentifierChange_MissingPayloadIsMalformed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	std := f.active(t)

	tok, err := f.svc.IssueToken(ctx, now, std, identity.ActionUpdate, 0, nil)
	require.NoError(t, err)

	_, err = f.svc.ConfirmIdentifierChange(ctx, now, tok)
	require.Error(t, err)
	assert.True(t, identity.IsMalformed(err))
}

func TestIssueToken_UsesConfiguredLifetime(t *testing.T) {
	f := newFixture(t)
	std := f.active(t)

	_, err := f.svc.IssueToken(context.Background(), now, std, identity.ActionReset, 0, nil)
	require.NoError(t, err)

	got, ok := f.reload(t, std.ID).Token()
	require.True(t, ok)
	assert.True(t, got.ExpiresOn.Equal(now.Add(DefaultConfig().ResetTokenLifetime)))
}

func TestIssueToken_RequiresStoredEntity(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.IssueToken(context.Background(), now, identity.NewStandard(email, now), identity.ActionReset, 0, nil)
	assert.True(t, identity.IsNotFound(err))
}

func TestLoginWithCookie_AndLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.active(t)

	c, err := f.svc.Login(ctx, now, email, secret)
	require.NoError(t, err)

	renewed, err := f.svc.LoginWithCookie(ctx, now.Add(time.Hour), session.ValueOf(c))
	require.NoError(t, err)
	assert.Equal(t, c.Series, renewed.Series)
	assert.NotEqual(t, c.Key, renewed.Key)

	require.NoError(t, f.svc.Logout(ctx, now.Add(time.Hour), session.ValueOf(renewed)))

	_, err = f.svc.LoginWithCookie(ctx, now.Add(2*time.Hour), session.ValueOf(renewed))
	assert.True(t, identity.IsNotFound(err))
}

func TestNewService_PanicsOnMissingCollaborators(t *testing.T) {
	gw := identity.NewInMemoryStore()
	sessions := session.NewService(session.DefaultConfig(), gw)

	assert.Panics(t, func() { NewService(DefaultConfig(), gw, nil, sessions) })
	assert.Panics(t, func() { NewService(DefaultConfig(), gw, &spyHasher{Config: password.DefaultConfig()}, nil) })
}
