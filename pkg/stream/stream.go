// Package stream reassembles a sequence of ctxmodel.ToolCallPart
// fragments, as a provider translator decodes them off the wire, into
// complete ctxmodel.ToolCallFull values in first-appearance call_id order.
// It adapts pkg/sse.Collector's per-call-id argument-buffer idea,
// generalized away from the OpenAI Responses event shape so every provider
// translator can share one reassembly algorithm.
package stream

import (
	"encoding/json"
	"fmt"
	"strings"

	"forgecore/pkg/apierr"
	"forgecore/pkg/ctxmodel"
	"forgecore/pkg/toolcall"
)

// Collector accumulates ToolCallPart fragments into ToolCallFull values.
// Not safe for concurrent use; one Collector serves one turn's stream.
type Collector struct {
	order       []string
	names       map[string]string
	args        map[string]*strings.Builder
	thoughtSigs map[string]string
	current     string
	diagnostics []string
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		names:       make(map[string]string),
		args:        make(map[string]*strings.Builder),
		thoughtSigs: make(map[string]string),
	}
}

// Observe feeds the next tool-call fragment. When part.CallID differs from
// the fragment being accumulated, the prior call_id's fragments are flushed
// into a ToolCallFull (returned) before the new call_id starts accumulating.
// A part with an empty Name never overwrites an earlier non-empty name.
func (c *Collector) Observe(part ctxmodel.ToolCallPart) (*ctxmodel.ToolCallFull, error) {
	if part.CallID == "" {
		part.CallID = c.current
	}
	var flushed *ctxmodel.ToolCallFull
	var err error
	if c.current != "" && part.CallID != c.current {
		flushed, err = c.flush(c.current)
	}
	c.register(part)
	return flushed, err
}

func (c *Collector) register(part ctxmodel.ToolCallPart) {
	if _, seen := c.args[part.CallID]; !seen {
		c.order = append(c.order, part.CallID)
		c.args[part.CallID] = &strings.Builder{}
	}
	c.current = part.CallID
	if part.Name != "" && c.names[part.CallID] == "" {
		c.names[part.CallID] = part.Name
	}
	if part.ThoughtSignature != "" && c.thoughtSigs[part.CallID] == "" {
		c.thoughtSigs[part.CallID] = part.ThoughtSignature
	}
	c.args[part.CallID].WriteString(part.ArgumentsPart)
}

// Flush finalizes whichever call_id is currently being accumulated, for use
// at end-of-stream. Returns (nil, nil) if nothing is pending.
func (c *Collector) Flush() (*ctxmodel.ToolCallFull, error) {
	if c.current == "" {
		return nil, nil
	}
	callID := c.current
	c.current = ""
	return c.flush(callID)
}

func (c *Collector) flush(callID string) (*ctxmodel.ToolCallFull, error) {
	raw := c.args[callID].String()
	canonical := raw
	if !json.Valid([]byte(raw)) {
		repaired, ok := toolcall.Repair(raw)
		if !ok {
			return nil, apierr.New(apierr.TranslationFailed,
				fmt.Sprintf("tool call %q: arguments are not valid JSON and repair failed", callID), nil)
		}
		c.diagnostics = append(c.diagnostics, fmt.Sprintf("tool call %q: arguments repaired", callID))
		canonical = repaired
	}
	return &ctxmodel.ToolCallFull{
		Name:             c.names[callID],
		CallID:           callID,
		Arguments:        canonical,
		ThoughtSignature: c.thoughtSigs[callID],
	}, nil
}

// Order returns call_ids in first-appearance order, for callers that need
// to yield completed calls in stream order once the turn is done.
func (c *Collector) Order() []string {
	return append([]string(nil), c.order...)
}

// Diagnostics returns one message per argument-repair event observed so
// far, for the caller to log. A repaired call succeeds but leaves a
// record here.
func (c *Collector) Diagnostics() []string {
	return append([]string(nil), c.diagnostics...)
}
