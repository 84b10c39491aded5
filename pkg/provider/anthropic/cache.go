package anthropic

import "github.com/anthropics/anthropic-sdk-go"

// blockCacheControl clears or sets the ephemeral cache-control marker on one
// content block, reporting whether the block is a cacheable variant
// (text/tool_use/tool_result; thinking and image blocks are not, mirroring
// forge_app's Content::cached match arms).
func blockCacheControl(block anthropic.ContentBlockParamUnion, on bool) (anthropic.ContentBlockParamUnion, bool) {
	control := anthropic.CacheControlEphemeralParam{}
	if on {
		control = anthropic.NewCacheControlEphemeralParam()
	}
	switch {
	case block.OfText != nil:
		block.OfText.CacheControl = control
		return block, true
	case block.OfToolUse != nil:
		block.OfToolUse.CacheControl = control
		return block, true
	case block.OfToolResult != nil:
		block.OfToolResult.CacheControl = control
		return block, true
	default:
		return block, false
	}
}

// cachedBlocks clears cache control on every block, then, if on, sets it on
// the last cacheable one. Pure function: ported from forge_app's
// dto/anthropic/request.rs Message::cached.
func cachedBlocks(blocks []anthropic.ContentBlockParamUnion, on bool) []anthropic.ContentBlockParamUnion {
	out := make([]anthropic.ContentBlockParamUnion, len(blocks))
	lastCacheable := -1
	for i, b := range blocks {
		cleared, cacheable := blockCacheControl(b, false)
		out[i] = cleared
		if cacheable {
			lastCacheable = i
		}
	}
	if on && lastCacheable >= 0 {
		out[lastCacheable], _ = blockCacheControl(out[lastCacheable], true)
	}
	return out
}

// blockIsCached reports whether a cacheable block currently carries a
// cache-control marker.
func blockIsCached(block anthropic.ContentBlockParamUnion) bool {
	switch {
	case block.OfText != nil:
		return block.OfText.CacheControl.Type != ""
	case block.OfToolUse != nil:
		return block.OfToolUse.CacheControl.Type != ""
	case block.OfToolResult != nil:
		return block.OfToolResult.CacheControl.Type != ""
	default:
		return false
	}
}

// cachedMessage applies cachedBlocks to one message's content.
func cachedMessage(msg anthropic.MessageParam, on bool) anthropic.MessageParam {
	msg.Content = cachedBlocks(msg.Content, on)
	return msg
}

// cachedSystem applies the same last-cacheable-item rule to the top-level
// system block array, where every entry is a TextBlockParam (always
// cacheable).
func cachedSystem(blocks []anthropic.TextBlockParam, on bool) []anthropic.TextBlockParam {
	out := make([]anthropic.TextBlockParam, len(blocks))
	copy(out, blocks)
	for i := range out {
		out[i].CacheControl = anthropic.CacheControlEphemeralParam{}
	}
	if on && len(out) > 0 {
		out[len(out)-1].CacheControl = anthropic.NewCacheControlEphemeralParam()
	}
	return out
}
