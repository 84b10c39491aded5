// Package toolcall repairs and parses tool calls delivered either as an
// XML-wrapped JSON blob or as streamed JSON argument fragments: decode
// every concatenated top-level JSON value and keep the last, then fall
// back to a token-walk key-recovery pass for truncated tails.
package toolcall

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"forgecore/pkg/apierr"
	"forgecore/pkg/ctxmodel"
)

const (
	openTag  = "<forge_tool_call>"
	closeTag = "</forge_tool_call>"
)

// NewCallID fabricates a synthetic call id of the form
// "forge_call_id_{uuidv4}", used whenever a provider omits one.
func NewCallID() string {
	return "forge_call_id_" + uuid.NewString()
}

// xmlPayload is the JSON shape wrapped by <forge_tool_call> tags.
type xmlPayload struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ParseXML extracts the content of a <forge_tool_call>...</forge_tool_call>
// tag from raw, parses it as JSON, and falls back to Repair on failure.
// On success the call is assigned a synthetic call_id.
func ParseXML(raw string) (ctxmodel.ToolCallFull, error) {
	start := strings.Index(raw, openTag)
	end := strings.Index(raw, closeTag)
	if start < 0 || end < 0 || end < start {
		return ctxmodel.ToolCallFull{}, apierr.New(apierr.TranslationFailed, "no forge_tool_call tag found", nil)
	}
	body := raw[start+len(openTag) : end]

	var payload xmlPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		repaired, ok := Repair(body)
		if !ok {
			return ctxmodel.ToolCallFull{}, apierr.New(apierr.TranslationFailed, "forge_tool_call body is not repairable JSON", err)
		}
		if err := json.Unmarshal([]byte(repaired), &payload); err != nil {
			return ctxmodel.ToolCallFull{}, apierr.New(apierr.TranslationFailed, "repaired forge_tool_call body still invalid", err)
		}
	}
	if payload.Name == "" {
		return ctxmodel.ToolCallFull{}, apierr.New(apierr.TranslationFailed, "forge_tool_call missing name", nil)
	}

	return ctxmodel.ToolCallFull{
		Name:      payload.Name,
		CallID:    NewCallID(),
		Arguments: string(payload.Arguments),
	}, nil
}

// Repair attempts to turn a possibly-malformed JSON argument blob into
// valid canonical JSON. Two passes:
//  1. Concatenated-value decode: providers sometimes emit multiple JSON
//     values back to back for one call (e.g. "{}{\"command\":\"ls\"}");
//     decode every top-level value in sequence and keep the last one.
//  2. If that still fails, token-walk the text from its first '{' with
//     encoding/json and use sjson to rebuild a minimal valid object from
//     the keys that did parse, dropping any that didn't.
//
// Returns the repaired JSON and true on success, or ("", false) if no
// recoverable JSON value could be produced.
func Repair(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if gjson.Valid(raw) {
		return raw, true
	}

	if repaired, ok := repairByConcatenatedDecode(raw); ok {
		return repaired, true
	}
	return repairByKeyRecovery(raw)
}

func repairByConcatenatedDecode(raw string) (string, bool) {
	dec := json.NewDecoder(strings.NewReader(raw))
	var last any
	found := false
	for {
		var v any
		if err := dec.Decode(&v); err != nil {
			break
		}
		last = v
		found = true
	}
	if !found {
		return "", false
	}
	sanitized := sanitizeJSONValue(last)
	out, err := json.Marshal(sanitized)
	if err != nil {
		return "", false
	}
	return string(out), true
}

// sanitizeJSONValue strips nil map entries that some providers emit for
// "unset" optional arguments, so the repaired JSON never round-trips a
// literal null where a key was simply absent.
func sanitizeJSONValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if val == nil {
				continue
			}
			out[k] = sanitizeJSONValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = sanitizeJSONValue(val)
		}
		return out
	default:
		return v
	}
}

// repairByKeyRecovery token-walks the first top-level JSON object in raw,
// keeping every "key": value pair that decodes cleanly and stopping at the
// first token that doesn't; this recovers a usable argument object even
// when the tail of the stream is truncated or garbled.
func repairByKeyRecovery(raw string) (string, bool) {
	firstBrace := strings.Index(raw, "{")
	if firstBrace < 0 {
		return "", false
	}
	dec := json.NewDecoder(strings.NewReader(raw[firstBrace:]))

	tok, err := dec.Token()
	if err != nil {
		return "", false
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return "", false
	}

	out := "{}"
	wrote := false
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			break
		}
		key, ok := keyTok.(string)
		if !ok {
			break
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			break
		}
		if value == nil {
			continue
		}
		updated, err := sjson.Set(out, key, value)
		if err != nil {
			continue
		}
		out = updated
		wrote = true
	}
	if !wrote {
		return "", false
	}
	return out, true
}
