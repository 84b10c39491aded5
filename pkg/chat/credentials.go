package chat

import (
	"context"
	"os"
	"strings"

	"forgecore/pkg/apierr"
	"forgecore/pkg/auth"
	anthropicbackend "forgecore/pkg/backend/anthropic"
	"forgecore/pkg/harness"
	"forgecore/pkg/registry"
)

// Credential is a resolved API key or OAuth token for one provider entry.
type Credential struct {
	Key   string
	OAuth bool
}

// CredentialLookup resolves a registry.Entry's credential. A
// context-carried override (harness.WithProviderKey) wins over the entry's
// environment variable.
type CredentialLookup func(ctx context.Context, e registry.Entry) (Credential, error)

// EnvCredentials resolves e.APIKeyVar from the OS environment, honoring any
// harness.WithProviderKey override set on ctx.
func EnvCredentials(ctx context.Context, e registry.Entry) (Credential, error) {
	if k, ok := harness.ProviderKey(ctx); ok && strings.TrimSpace(k) != "" {
		return Credential{Key: strings.TrimSpace(k)}, nil
	}
	key := strings.TrimSpace(os.Getenv(e.APIKeyVar))
	if key == "" {
		return Credential{}, apierr.New(apierr.CredentialMissing,
			"missing environment variable "+e.APIKeyVar+" for provider "+e.ID, nil)
	}
	return Credential{Key: key}, nil
}

// OAuthCredentials wraps a CredentialLookup so that anthropic entries prefer
// a Claude subscription login (~/.claude/.credentials.json, read through
// anthropicbackend.TokenStore with its automatic refresh) over the raw
// ANTHROPIC_API_KEY environment variable. store may be nil, in
// which case every lookup falls through unconditionally.
func OAuthCredentials(store *anthropicbackend.TokenStore, fallback CredentialLookup) CredentialLookup {
	return func(ctx context.Context, e registry.Entry) (Credential, error) {
		if e.ResponseType == registry.ResponseAnthropic && store != nil {
			if tok, err := store.AccessTokenWithContext(ctx); err == nil && tok != "" {
				return Credential{Key: tok, OAuth: true}, nil
			}
		}
		return fallback(ctx, e)
	}
}

// OpenAICredentials wraps a CredentialLookup so that openai_chat/
// openai_responses entries prefer a ChatGPT subscription login
// (~/.forge/auth.json, read through auth.CredentialSource) over the raw
// OPENAI_API_KEY environment variable. source may be nil, in which case
// every lookup falls through unconditionally.
func OpenAICredentials(source *auth.CredentialSource, fallback CredentialLookup) CredentialLookup {
	return func(ctx context.Context, e registry.Entry) (Credential, error) {
		isOpenAI := e.ResponseType == registry.ResponseOpenAIChat || e.ResponseType == registry.ResponseOpenAIResponses
		if isOpenAI && source != nil && source.Store != nil && source.Store.IsChatGPT() {
			if tok, err := source.Token(ctx); err == nil && tok != "" {
				return Credential{Key: tok, OAuth: true}, nil
			}
		}
		return fallback(ctx, e)
	}
}
