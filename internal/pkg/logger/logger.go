// Package logger emits structured JSON log lines to stderr. Subscriber
// emails are PII and must never land in logs unmasked, so values are run
// through redaction before they are written.
package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLevel maps a config string to a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Logger filters by level and serializes entries as single-line JSON.
type Logger struct {
	level     Level
	mu        sync.Mutex
	redactPII bool
}

var std = &Logger{level: INFO, redactPII: true}

// SetLevel sets the minimum level for the package-level logger.
func SetLevel(l Level) { std.level = l }

// SetRedactPII toggles email masking for the package-level logger.
func SetRedactPII(on bool) { std.redactPII = on }

// Debug logs at DEBUG level with alternating key-value fields.
func Debug(msg string, fields ...interface{}) { std.write(DEBUG, msg, fields) }

// Info logs at INFO level with alternating key-value fields.
func Info(msg string, fields ...interface{}) { std.write(INFO, msg, fields) }

// Warn logs at WARN level with alternating key-value fields.
func Warn(msg string, fields ...interface{}) { std.write(WARN, msg, fields) }

// Error logs at ERROR level with alternating key-value fields.
func Error(msg string, fields ...interface{}) { std.write(ERROR, msg, fields) }

func (l *Logger) write(level Level, msg string, fields []interface{}) {
	if level < l.level {
		return
	}

	entry := map[string]interface{}{
		"time":  time.Now().UTC().Format(time.RFC3339),
		"level": level.String(),
		"msg":   msg,
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		val := fmt.Sprintf("%v", fields[i+1])
		if l.redactPII {
			val = redactValue(key, val)
		}
		entry[key] = val
	}

	line, _ := json.Marshal(entry)
	l.mu.Lock()
	fmt.Fprintln(os.Stderr, string(line))
	l.mu.Unlock()
}

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// redactValue masks whole values stored under email-like keys and any
// address embedded in free-form values.
func redactValue(key, val string) string {
	k := strings.ToLower(key)
	if strings.Contains(k, "email") || strings.Contains(k, "subscriber") {
		return RedactEmail(val)
	}
	return emailPattern.ReplaceAllStringFunc(val, RedactEmail)
}
