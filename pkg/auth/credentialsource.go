package auth

import "context"

// CredentialSource adapts a Store into transport.CredentialSource without
// pkg/auth importing pkg/transport; transport declares the interface and
// this side satisfies it.
type CredentialSource struct {
	Store *Store

	// AllowNetworkRefresh gates whether Refresh may hit the token endpoint;
	// a CLI invocation with no network access should leave this false and
	// let the caller surface ErrRefreshUnavailable instead of hanging.
	AllowNetworkRefresh bool
}

func (c CredentialSource) Token(ctx context.Context) (string, error) {
	return c.Store.AuthorizationToken()
}

func (c CredentialSource) ExtraHeaders(ctx context.Context) map[string]string {
	return nil
}

// Refresh attempts a token refresh and reports whether it succeeded. A
// failed or disallowed refresh returns false so transport.Client's retry
// loop falls through to surfacing the original 401.
func (c CredentialSource) Refresh(ctx context.Context) bool {
	if !c.Store.CanRefresh() {
		return false
	}
	return c.Store.Refresh(ctx, RefreshOptions{AllowNetwork: c.AllowNetworkRefresh}) == nil
}
