package logging

import (
	"strings"
	"testing"
	"time"
)

func sampleEntry() *AccessEntry {
	return &AccessEntry{
		Timestamp:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		RemoteAddr:  "10.0.0.1",
		Method:      "POST",
		Path:        "/notifications",
		Protocol:    "HTTP/1.1",
		StatusCode:  202,
		BytesSent:   128,
		RequestTime: 0.015,
		RequestID:   "req-1",
	}
}

func TestFormatTextIncludesStatusMethodAndPath(t *testing.T) {
	f := NewAccessFormatter(AccessFormatText)
	out := f.Format(sampleEntry())
	if !strings.Contains(out, "POST /notifications") {
		t.Errorf("text log missing method+path: %q", out)
	}
	if !strings.Contains(out, "OK 202") {
		t.Errorf("text log missing status classification: %q", out)
	}
	if !strings.Contains(out, "id=req-1") {
		t.Errorf("text log missing request id: %q", out)
	}
}

func TestFormatTextClassifiesServerError(t *testing.T) {
	f := NewAccessFormatter(AccessFormatText)
	entry := sampleEntry()
	entry.StatusCode = 503
	out := f.Format(entry)
	if !strings.Contains(out, "ERROR 503") {
		t.Errorf("expected ERROR classification for 5xx, got %q", out)
	}
}

func TestFormatJSONIncludesCoreFields(t *testing.T) {
	f := NewAccessFormatter(AccessFormatJSON)
	out := f.Format(sampleEntry())
	for _, want := range []string{`"method":"POST"`, `"path":"/notifications"`, `"status_code":202`, `"request_id":"req-1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("json log missing %s: %q", want, out)
		}
	}
}

func TestFormatDefaultsToTextForUnknownFormat(t *testing.T) {
	f := NewAccessFormatter(AccessFormat("unknown"))
	out := f.Format(sampleEntry())
	if strings.HasPrefix(out, "{") {
		t.Errorf("expected text fallback, got json-looking output: %q", out)
	}
}
