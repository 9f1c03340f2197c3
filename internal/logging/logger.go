package logging

import (
	"log/slog"
	"os"
)

// Setup installs a JSON logger on stdout as the slog default and returns its
// handler so it can be combined with the database handler later.
func Setup(debug bool) slog.Handler {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redactAttr,
	})
	slog.SetDefault(slog.New(handler))
	return handler
}

var sensitiveKeys = map[string]bool{
	"password":      true,
	"token":         true,
	"session_token": true,
	"otp":           true,
	"code":          true,
	"pin":           true,
	"secret":        true,
}

func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if sensitiveKeys[a.Key] {
		return slog.String(a.Key, "[REDACTED]")
	}
	return a
}
