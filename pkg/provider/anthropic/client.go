package anthropic

import (
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	anthropicVersion = "2023-06-01"
	// betaFeatures is the anthropic-beta header value for direct API-key auth.
	betaFeatures = "interleaved-thinking-2025-05-14,structured-outputs-2025-11-13"
	// oauthBetaFeatures additionally advertises the OAuth-only Claude Code
	// beta flags required when Authorization: Bearer substitutes for x-api-key.
	oauthBetaFeatures = betaFeatures + ",claude-code-20250219,oauth-2025-04-20"
)

// NewClient builds an anthropic.Client with the required version/beta
// headers. When oauth is true, token is sent as
// Authorization: Bearer instead of x-api-key, and the beta header gains the
// two OAuth-only Claude Code flags.
func NewClient(token string, oauth bool) anthropic.Client {
	beta := betaFeatures
	opts := []option.RequestOption{
		option.WithHeader("anthropic-version", anthropicVersion),
	}
	if oauth {
		beta = oauthBetaFeatures
		opts = append(opts, option.WithHeader("Authorization", "Bearer "+token))
	} else {
		opts = append(opts, option.WithAPIKey(token))
	}
	opts = append(opts, option.WithHeader("anthropic-beta", beta))
	return anthropic.NewClient(opts...)
}
