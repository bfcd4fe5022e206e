package logger

import (
	"log/slog"
	"time"
)

// Error returns an "error" attribute, or an empty attribute for nil.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// TenantID returns a "tenant_id" attribute, empty when id is empty.
func TenantID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("tenant_id", id)
}

// UserID returns a "user_id" attribute, empty when id is empty.
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

// SessionID returns a "session_id" attribute, empty when id is empty.
func SessionID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("session_id", id)
}

func EventType(t string) slog.Attr {
	return slog.String("event_type", t)
}

func Verdict(v string) slog.Attr {
	return slog.String("verdict", v)
}

func Reason(r string) slog.Attr {
	return slog.String("reason", r)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Group nests attrs under name.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}
