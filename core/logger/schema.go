package logger

import "strings"

// normalizeLevel maps level names to the upper-case slog spelling and folds
// "warning" into WARN. Unknown names are only upper-cased.
func normalizeLevel(level string) string {
	switch l := strings.ToUpper(strings.TrimSpace(level)); l {
	case "":
		return "INFO"
	case "WARNING":
		return "WARN"
	default:
		return l
	}
}

var (
	knownStatus = set("ok", "fail", "skip", "retry", "rate_limited", "cancelled")
	// outcomes are a subset of statuses; an unknown outcome is dropped.
	knownOutcome = set("ok", "fail", "cancelled", "rate_limited")
)

func set(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

func normalizeStatus(status string) (string, bool) {
	status = strings.ToLower(strings.TrimSpace(status))
	_, ok := knownStatus[status]
	return status, ok && status != ""
}

func normalizeOutcome(outcome string) (string, bool) {
	outcome = strings.ToLower(strings.TrimSpace(outcome))
	if _, ok := knownOutcome[outcome]; !ok {
		return "", false
	}
	return outcome, true
}

// defaultKeyOrder puts identity first, then routing, then the login and
// anchor fields, then transport and error details.
var defaultKeyOrder = []string{
	"ts", "level", "component", "event", "status",
	"rid", "rid_full", "ts_unix_nano",
	"update_id", "user_id", "chat_id", "chat_type",
	"handler", "op", "cb_key", "outcome", "duration_ms",
	"view", "step", "anchor_id", "prev_anchor_id", "edit",
	"phone", "profile_id", "profiles", "authorized",
	"messages", "kb", "payload", "kind", "command", "text_len", "lang",
	"mode", "listen", "public_url",
	"method", "path", "http_code", "request_id",
	"driver", "db", "host",
	"err", "err_code", "cause", "retryable", "attempt", "attempts", "backoff_ms", "rate_limited",
}
