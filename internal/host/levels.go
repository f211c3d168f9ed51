package host

import "log/slog"

// Extra slog levels covering six logging levels end to end (trace, debug,
// info, warn, error, notice/emergency) — slog's built-ins only natively
// cover debug/info/warn/error.
const (
	LevelTrace  slog.Level = -8
	LevelNotice slog.Level = 2
)

// LevelName renders the extra levels by name; falls back to slog's own
// String() for the four built-in levels.
func LevelName(l slog.Level) string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelNotice:
		return "NOTICE"
	default:
		return l.String()
	}
}
