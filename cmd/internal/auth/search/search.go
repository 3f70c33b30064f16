// Package search resolves lookup keys to hydrated identities.
//
// It converts "the gateway found nothing" (the entity ID is still 0 after a
// fetch) into typed not-found errors, so callers never special-case absence.
package search

import (
	"context"
	"strings"
	"time"

	"warden/cmd/identity"
)

// Finder looks identities up through a Gateway.
type Finder struct {
	gw identity.Gateway
}

// NewFinder returns a Finder over gw. It panics on a nil gateway.
func NewFinder(gw identity.Gateway) *Finder {
	if gw == nil {
		panic("search: nil gateway")
	}
	return &Finder{gw: gw}
}

// ByIdentifier returns the standard identity for identifier (normalized first).
func (f *Finder) ByIdentifier(ctx context.Context, identifier string) (*identity.StandardIdentity, error) {
	const op = "search.ByIdentifier"

	s := &identity.StandardIdentity{Identity: identity.Identity{Type: identity.TypeStandard}}
	s.SetIdentifier(identifier)
	if s.Identifier == "" {
		return nil, identity.IdentityNotFound(op)
	}
	if err := f.gw.Fetch(ctx, s); err != nil {
		return nil, err
	}
	if !s.Stored() {
		return nil, identity.IdentityNotFound(op)
	}
	return s, nil
}

// ByAccount returns the account's standard identity (the lowest ID if several).
func (f *Finder) ByAccount(ctx context.Context, accountID int64) (*identity.StandardIdentity, error) {
	const op = "search.ByAccount"

	if accountID <= 0 {
		return nil, identity.AccountNotFound(op)
	}
	all, err := f.gw.FetchAll(ctx, identity.Criteria{
		AccountID: accountID,
		Types:     []identity.Type{identity.TypeStandard},
	})
	if err != nil {
		return nil, err
	}
	for _, e := range all {
		if s, ok := e.(*identity.StandardIdentity); ok {
			return s, nil
		}
	}
	return nil, identity.AccountNotFound(op)
}

// ByToken returns the standard identity holding an unexpired token for action.
// A token of the wrong shape is Malformed; an unknown or expired one is TokenNotFound.
func (f *Finder) ByToken(ctx context.Context, now time.Time, value string, action identity.TokenAction) (*identity.StandardIdentity, error) {
	e, err := f.ByTokenOf(ctx, now, identity.TypeStandard, value, action)
	if err != nil {
		return nil, err
	}
	return e.(*identity.StandardIdentity), nil
}

// ByTokenOf is ByToken for an identity of type t. Tokens are issued on any
// identity kind, so cookie and nonce holders are found here.
func (f *Finder) ByTokenOf(ctx context.Context, now time.Time, t identity.Type, value string, action identity.TokenAction) (identity.Entity, error) {
	const op = "search.ByToken"

	value = strings.ToLower(strings.TrimSpace(value))
	if err := identity.ValidateTokenValue(value); err != nil {
		return nil, err
	}
	e, err := identity.New(t)
	if err != nil {
		return nil, err
	}
	if err := f.gw.FetchByToken(ctx, e, value, action, now); err != nil {
		return nil, err
	}
	if !e.Base().Stored() {
		return nil, identity.TokenNotFound(op)
	}
	return e, nil
}

// ByCookie returns the cookie identity for (accountID, series).
func (f *Finder) ByCookie(ctx context.Context, accountID int64, series string) (*identity.CookieIdentity, error) {
	const op = "search.ByCookie"

	series = strings.TrimSpace(series)
	if accountID <= 0 || series == "" {
		return nil, identity.IdentityNotFound(op)
	}
	c := &identity.CookieIdentity{Identity: identity.Identity{Type: identity.TypeCookie}, Series: series}
	c.BindAccount(accountID)
	if err := f.gw.Fetch(ctx, c); err != nil {
		return nil, err
	}
	if !c.Stored() {
		return nil, identity.IdentityNotFound(op)
	}
	return c, nil
}

// CookieByID returns the cookie identity with id.
func (f *Finder) CookieByID(ctx context.Context, id int64) (*identity.CookieIdentity, error) {
	const op = "search.CookieByID"

	if id <= 0 {
		return nil, identity.IdentityNotFound(op)
	}
	c := &identity.CookieIdentity{Identity: identity.Identity{Type: identity.TypeCookie}}
	if err := f.gw.FetchByID(ctx, c, id); err != nil {
		return nil, err
	}
	if !c.Stored() {
		return nil, identity.IdentityNotFound(op)
	}
	return c, nil
}

// ByNonce returns the active nonce with identifier. A consumed nonce is not found.
func (f *Finder) ByNonce(ctx context.Context, identifier string) (*identity.NonceIdentity, error) {
	const op = "search.ByNonce"

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, identity.IdentityNotFound(op)
	}
	n := &identity.NonceIdentity{Identity: identity.Identity{Type: identity.TypeNonce}, Identifier: identifier}
	if err := f.gw.Fetch(ctx, n); err != nil {
		return nil, err
	}
	if !n.Stored() {
		return nil, identity.IdentityNotFound(op)
	}
	return n, nil
}

// All returns the account's identities matching c, ordered by ID.
func (f *Finder) All(ctx context.Context, c identity.Criteria) ([]identity.Entity, error) {
	return f.gw.FetchAll(ctx, c)
}

// Cookies returns the account's cookie identities in any of statuses (all when empty).
func (f *Finder) Cookies(ctx context.Context, accountID int64, statuses ...identity.Status) ([]*identity.CookieIdentity, error) {
	all, err := f.gw.FetchAll(ctx, identity.Criteria{
		AccountID: accountID,
		Types:     []identity.Type{identity.TypeCookie},
		Statuses:  statuses,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*identity.CookieIdentity, 0, len(all))
	for _, e := range all {
		if c, ok := e.(*identity.CookieIdentity); ok {
			out = append(out, c)
		}
	}
	return out, nil
}
