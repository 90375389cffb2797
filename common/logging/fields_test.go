package logging

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldHelpers(t *testing.T) {
	tests := []struct {
		name string
		attr slog.Attr
		key  string
		want any
	}{
		{"service", Service("messaging"), FieldService, "messaging"},
		{"trace id", TraceID("t-1"), FieldTraceID, "t-1"},
		{"event id", EventID("e-1"), FieldEventID, "e-1"},
		{"topic", Topic("media.uploaded"), FieldTopic, "media.uploaded"},
		{"transport", Transport("restproxy"), FieldTransport, "restproxy"},
		{"provider", Provider("whatsapp"), FieldProvider, "whatsapp"},
		{"message id", MessageID("m-1"), FieldMessageID, "m-1"},
		{"channel", Channel("sms"), FieldChannel, "sms"},
		{"attempt", Attempt(2), FieldAttempt, int64(2)},
		{"error", Error(errors.New("bad")), FieldError, "bad"},
		{"nil error", Error(nil), FieldError, ""},
		{"duration", Duration(15), FieldDuration, int64(15)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.key, tt.attr.Key)
			assert.Equal(t, tt.want, tt.attr.Value.Any())
		})
	}
}
