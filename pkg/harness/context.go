package harness

import "context"

type contextKey string

const providerKeyKey contextKey = "provider-key"

// WithProviderKey returns a context carrying a per-call API key override,
// checked first by chat.EnvCredentials ahead of any registry entry's own
// environment variable. A caller driving a one-off request against a key
// it already holds (a proxied request, a user-supplied key in a chat UI)
// sets this instead of mutating the process environment.
func WithProviderKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, providerKeyKey, key)
}

// ProviderKey extracts the provider API key override from the context, if any.
func ProviderKey(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(providerKeyKey).(string)
	return key, ok && key != ""
}
