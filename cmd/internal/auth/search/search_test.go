package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/cmd/identity"
)

var now = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T) (*identity.InMemoryStore, *identity.StandardIdentity) {
	t.Helper()

	st := identity.NewInMemoryStore()
	s := identity.NewStandard("user@example.com", now)
	s.BindAccount(1)
	s.Hash = "hash"
	s.SetStatus(identity.StatusActive, now)
	require.NoError(t, st.Store(context.Background(), s))
	return st, s
}

func TestByIdentifier(t *testing.T) {
	st, s := seed(t)
	f := NewFinder(st)
	ctx := context.Background()

	got, err := f.ByIdentifier(ctx, "  USER@example.com ")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	_, err = f.ByIdentifier(ctx, "nobody@example.com")
	assert.True(t, identity.IsNotFound(err))

	_, err = f.ByIdentifier(ctx, "   ")
	assert.True(t, identity.IsNotFound(err))
}

func TestByAccount(t *testing.T) {
	st, s := seed(t)
	f := NewFinder(st)

	got, err := f.ByAccount(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	_, err = f.ByAccount(context.Background(), 2)
	var nf identity.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, identity.ResourceAccount, nf.Resource)
}

func TestByToken(t *testing.T) {
	st, s := seed(t)
	ctx := context.Background()
	v, err := s.GenerateToken(identity.ActionReset, time.Hour, now, nil)
	require.NoError(t, err)
	require.NoError(t, st.Store(ctx, s))

	f := NewFinder(st)

	got, err := f.ByToken(ctx, now, v, identity.ActionReset)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	_, err = f.ByToken(ctx, now.Add(2*time.Hour), v, identity.ActionReset)
	assert.True(t, identity.IsTokenNotFound(err))

	_, err = f.ByToken(ctx, now, v, identity.ActionVerify)
	assert.True(t, identity.IsTokenNotFound(err))

	_, err = f.ByToken(ctx, now, "short", identity.ActionReset)
	assert.True(t, identity.IsMalformed(err))
}

func TestByTokenOf_CookieHolder(t *testing.T) {
	st, s := seed(t)
	ctx := context.Background()

	c := identity.NewCookie(s, now)
	c.Series = "series-tok"
	_, err := c.RotateKey(0)
	require.NoError(t, err)
	v, err := c.GenerateToken(identity.ActionUpdate, time.Hour, now, nil)
	require.NoError(t, err)
	require.NoError(t, st.Store(ctx, c))

	f := NewFinder(st)

	got, err := f.ByTokenOf(ctx, now, identity.TypeCookie, v, identity.ActionUpdate)
	require.NoError(t, err)
	cookie, ok := got.(*identity.CookieIdentity)
	require.True(t, ok)
	assert.Equal(t, c.ID, cookie.ID)
	assert.Equal(t, "series-tok", cookie.Series)

	_, err = f.ByToken(ctx, now, v, identity.ActionUpdate)
	assert.True(t, identity.IsTokenNotFound(err), "a cookie token is not a standard token")

	_, err = f.ByTokenOf(ctx, now, identity.Type(99), v, identity.ActionUpdate)
	assert.True(t, identity.IsMalformed(err))
}

func TestByCookie_AndCookieByID(t *testing.T) {
	st, s := seed(t)
	ctx := context.Background()

	c := identity.NewCookie(s, now)
	c.Series = "series-1"
	_, err := c.RotateKey(0)
	require.NoError(t, err)
	require.NoError(t, st.Store(ctx, c))

	f := NewFinder(st)

	got, err := f.ByCookie(ctx, 1, "series-1")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	_, err = f.ByCookie(ctx, 2, "series-1")
	assert.True(t, identity.IsNotFound(err))

	byID, err := f.CookieByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "series-1", byID.Series)

	_, err = f.CookieByID(ctx, s.ID)
	assert.True(t, identity.IsNotFound(err), "a standard identity id is not a cookie")

	_, err = f.CookieByID(ctx, 0)
	assert.True(t, identity.IsNotFound(err))
}

func TestByNonce_ConsumedIsNotFound(t *testing.T) {
	st, _ := seed(t)
	ctx := context.Background()

	n := identity.NewNonce(1, now)
	id, err := n.GenerateIdentifier(16)
	require.NoError(t, err)
	_, err = n.RotateKey(0)
	require.NoError(t, err)
	n.SetStatus(identity.StatusActive, now)
	require.NoError(t, st.Store(ctx, n))

	f := NewFinder(st)
	got, err := f.ByNonce(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, n.ID, got.ID)

	n.SetStatus(identity.StatusDiscarded, now)
	require.NoError(t, st.Store(ctx, n))

	_, err = f.ByNonce(ctx, id)
	assert.True(t, identity.IsNotFound(err))
}

func TestAll_AndCookies(t *testing.T) {
	st, s := seed(t)
	ctx := context.Background()

	for i, series := range []string{"a", "b"} {
		c := identity.NewCookie(s, now)
		c.Series = series
		_, err := c.RotateKey(0)
		require.NoError(t, err)
		if i == 1 {
			c.SetStatus(identity.StatusBlocked, now)
		}
		require.NoError(t, st.Store(ctx, c))
	}

	f := NewFinder(st)
	all, err := f.All(ctx, identity.Criteria{AccountID: 1})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	live, err := f.Cookies(ctx, 1, identity.StatusNew, identity.StatusActive)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "a", live[0].Series)
}

func TestNewFinder_PanicsOnNilGateway(t *testing.T) {
	assert.Panics(t, func() { NewFinder(nil) })
}
