// Package provider defines the shape every wire-format translator
// (pkg/provider/openaichat, openairesponses, anthropic, google) shares:
// encode a canonical Context into that provider's request, and decode each
// raw stream event back into a CanonicalDelta. The four packages do not
// implement a common Go interface (their raw request/event types differ
// per provider), but every one exposes an Encode and a DecodeEvent function
// shaped around this package's CanonicalDelta.
package provider

import "forgecore/pkg/ctxmodel"

// Usage carries token counts surfaced by a provider at end of turn.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// CanonicalDelta is one decoded increment of an assistant turn, translated
// from a single raw provider stream event.
type CanonicalDelta struct {
	TextDelta        string
	ReasoningDelta   string
	ThoughtSignature string
	ToolCallPart     *ctxmodel.ToolCallPart
	Usage            *Usage
	FinishReason     string
	Done             bool
}
