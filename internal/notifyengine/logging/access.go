// Package logging provides the engine's request access log formatter and
// lifecycle log helpers. Lifecycle logs use the standard log package with
// short emoji-tagged prefixes; this file covers the structured per-request
// access log.
package logging

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// AccessFormat is a supported access-log output format.
type AccessFormat string

const (
	AccessFormatText AccessFormat = "text"
	AccessFormatJSON AccessFormat = "json"
)

// AccessEntry is a single HTTP access log entry.
type AccessEntry struct {
	Timestamp    time.Time
	RemoteAddr   string
	Method       string
	Path         string
	Protocol     string
	StatusCode   int
	BytesSent    int
	UserAgent    string
	RequestTime  float64
	RequestID    string
	ErrorMessage string
}

// AccessFormatter renders AccessEntry values in a chosen format.
type AccessFormatter struct {
	format AccessFormat
}

// NewAccessFormatter creates a formatter for the given format, defaulting
// to text when format is unrecognized.
func NewAccessFormatter(format AccessFormat) *AccessFormatter {
	return &AccessFormatter{format: format}
}

// Format renders entry according to the formatter's configured format.
func (f *AccessFormatter) Format(entry *AccessEntry) string {
	switch f.format {
	case AccessFormatJSON:
		return f.formatJSON(entry)
	default:
		return f.formatText(entry)
	}
}

func (f *AccessFormatter) formatJSON(entry *AccessEntry) string {
	logData := map[string]interface{}{
		"timestamp":    entry.Timestamp.Format(time.RFC3339Nano),
		"remote_addr":  entry.RemoteAddr,
		"method":       entry.Method,
		"path":         entry.Path,
		"protocol":     entry.Protocol,
		"status_code":  entry.StatusCode,
		"bytes_sent":   entry.BytesSent,
		"request_time": entry.RequestTime,
		"request_id":   entry.RequestID,
	}
	if entry.UserAgent != "" {
		logData["user_agent"] = entry.UserAgent
	}
	if entry.ErrorMessage != "" {
		logData["error"] = entry.ErrorMessage
	}
	jsonBytes, _ := json.Marshal(logData)
	return string(jsonBytes)
}

func (f *AccessFormatter) formatText(entry *AccessEntry) string {
	timestamp := entry.Timestamp.Format("2006-01-02 15:04:05.000")

	var status string
	switch {
	case entry.StatusCode >= 500:
		status = fmt.Sprintf("ERROR %d", entry.StatusCode)
	case entry.StatusCode >= 400:
		status = fmt.Sprintf("WARN %d", entry.StatusCode)
	case entry.StatusCode >= 300:
		status = fmt.Sprintf("REDIR %d", entry.StatusCode)
	default:
		status = fmt.Sprintf("OK %d", entry.StatusCode)
	}

	parts := []string{
		fmt.Sprintf("[%s]", timestamp),
		fmt.Sprintf("[%s]", entry.RemoteAddr),
		fmt.Sprintf("[%s]", status),
		fmt.Sprintf("%s %s", entry.Method, entry.Path),
		fmt.Sprintf("%.0fms", entry.RequestTime*1000),
		fmt.Sprintf("%dB", entry.BytesSent),
	}
	if entry.RequestID != "" {
		parts = append(parts, fmt.Sprintf("id=%s", entry.RequestID))
	}
	return strings.Join(parts, " ")
}

// ExtractAccessEntry builds an AccessEntry from a finished gin request.
func ExtractAccessEntry(c *gin.Context, startTime time.Time, bytesWritten int) *AccessEntry {
	entry := &AccessEntry{
		Timestamp:   startTime,
		RemoteAddr:  c.ClientIP(),
		Method:      c.Request.Method,
		Path:        c.Request.URL.Path,
		Protocol:    c.Request.Proto,
		StatusCode:  c.Writer.Status(),
		BytesSent:   bytesWritten,
		UserAgent:   c.Request.UserAgent(),
		RequestTime: time.Since(startTime).Seconds(),
	}
	if requestID, exists := c.Get("request_id"); exists {
		if s, ok := requestID.(string); ok {
			entry.RequestID = s
		}
	}
	return entry
}
