package logging

import "log/slog"

// Field names shared by every service so log queries work across the stack.
const (
	FieldService   = "service"
	FieldRequestID = "request_id"
	FieldTraceID   = "trace_id"
	FieldEventID   = "event_id"
	FieldTopic     = "topic"
	FieldTransport = "transport"
	FieldProvider  = "provider"
	FieldMessageID = "message_id"
	FieldChannel   = "channel"
	FieldAttempt   = "attempt"
	FieldError     = "error"
	FieldDuration  = "duration_ms"
)

func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

func TraceID(id string) slog.Attr {
	return slog.String(FieldTraceID, id)
}

func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

func Topic(topic string) slog.Attr {
	return slog.String(FieldTopic, topic)
}

func Transport(name string) slog.Attr {
	return slog.String(FieldTransport, name)
}

func Provider(name string) slog.Attr {
	return slog.String(FieldProvider, name)
}

func MessageID(id string) slog.Attr {
	return slog.String(FieldMessageID, id)
}

func Channel(name string) slog.Attr {
	return slog.String(FieldChannel, name)
}

func Attempt(n int) slog.Attr {
	return slog.Int(FieldAttempt, n)
}

// Error returns a slog attribute for an error. A nil error yields an empty value.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

// Duration returns a slog attribute for a duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}
