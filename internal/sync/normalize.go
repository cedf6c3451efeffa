package sync

import "strings"

// normalizeInbound accepts either of the two legacy command shapes
// §4.8 names and folds them into the canonical `{type, ...}` form; any
// other message (including one whose "type" is not the legacy
// "command") is passed through unchanged. The two legacy shapes spread their "data" object's fields
// onto the top level alongside the derived type, matching
// `{serviceName:"state", action:"bluetooth:X", data}` →
// `{type:"bluetooth:X", ...data}`.
func normalizeInbound(raw map[string]any) map[string]any {
	if serviceName, ok := asString(raw["serviceName"]); ok && serviceName == "state" {
		if action, ok := asString(raw["action"]); ok && strings.HasPrefix(action, "bluetooth:") {
			return spreadLegacy(action, raw["data"])
		}
	}

	if msgType, ok := asString(raw["type"]); ok && msgType == "command" {
		if service, ok := asString(raw["service"]); ok && service == "bluetooth" {
			if action, ok := asString(raw["action"]); ok {
				return spreadLegacy("bluetooth:"+action, raw["data"])
			}
		}
	}

	return raw
}

func spreadLegacy(msgType string, data any) map[string]any {
	out := map[string]any{"type": msgType}
	if m, ok := asMap(data); ok {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}
