package logger

import "strings"

// Level names as they appear in the level field.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

func normalizeLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "":
		return LevelInfo
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return strings.ToUpper(level)
	}
}

// knownStatus lists the values of the status and outcome fields.
var knownStatus = map[string]bool{
	"ok":           true,
	"fail":         true,
	"skip":         true,
	"retry":        true,
	"rate_limited": true,
	"cancelled":    true,
}

// normalizeEnum lower-cases v and reports whether it is a known status.
func normalizeEnum(v string) (string, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	return v, knownStatus[v]
}

// defaultKeyOrder puts correlation fields first, then the fields the bot's
// events carry, then errors. Unlisted keys follow alphabetically.
var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"handler",
	"outcome",
	"duration_ms",
	"messages",
	"kb",
	"kind",
	"state",
	"next_state",
	"input",
	"payload",
	"mime",
	"username",
	"lang",
	"width",
	"height",
	"bytes",
	"font",
	"scalable",
	"action",
	"endpoint",
	"recipient",
	"attempt",
	"attempts",
	"mode",
	"listen",
	"public_url",
	"db",
	"host",
	"port",
	"err",
	"err_code",
	"err_kind",
	"cause",
}
