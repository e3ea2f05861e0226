package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// Logger is a thin wrapper over zap's sugared logger that sanitizes key/value
// pairs before they are written.
type Logger struct {
	SugaredLogger *zap.SugaredLogger
	redact        *redactor
}

// Options tune redaction. HashSalt salts identifier hashes; PersonalKeys are
// additional keys whose values are dropped entirely.
type Options struct {
	Mode         string
	HashSalt     string
	PersonalKeys []string
	Disabled     bool
}

// New builds a logger for "dev", "prod", or "test" mode.
func New(mode string) (*Logger, error) {
	return NewWithOptions(Options{Mode: mode})
}

// NewWithOptions builds a logger with explicit redaction settings.
func NewWithOptions(opts Options) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(opts.Mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	case "test":
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: zapLogger.Sugar(), redact: newRedactor(opts)}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar(), redact: newRedactor(Options{})}
}

// NewObserved returns a logger that records entries in memory, for tests that
// assert on what was (or was not) logged.
func NewObserved() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return &Logger{SugaredLogger: zap.New(core).Sugar(), redact: newRedactor(Options{})}, logs
}

func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, l.redact.kvs(keysAndValues)...)
}
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, l.redact.kvs(keysAndValues)...)
}
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, l.redact.kvs(keysAndValues)...)
}
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, l.redact.kvs(keysAndValues)...)
}
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	newSugared := l.SugaredLogger.With(l.redact.kvs(keysAndValues)...)
	return &Logger{SugaredLogger: newSugared, redact: l.redact}
}

// defaultPersonalKeys never reach the log in any form.
var defaultPersonalKeys = []string{
	"member_names", "members", "allergies", "diets", "client_name", "conflicts", "explanation", "message_body",
}

type redactor struct {
	disabled bool
	salt     string
	personal map[string]bool
}

func newRedactor(opts Options) *redactor {
	r := &redactor{disabled: opts.Disabled, salt: opts.HashSalt, personal: map[string]bool{}}
	for _, k := range defaultPersonalKeys {
		r.personal[k] = true
	}
	for _, k := range opts.PersonalKeys {
		r.personal[strings.ToLower(strings.TrimSpace(k))] = true
	}
	return r
}

func (r *redactor) kvs(kv []interface{}) []interface{} {
	if len(kv) == 0 || r == nil || r.disabled {
		return kv
	}
	out := make([]interface{}, 0, len(kv))
	for i := 0; i < len(kv); i += 2 {
		if i == len(kv)-1 {
			out = append(out, kv[i])
			break
		}
		key := strings.TrimSpace(strings.ToLower(toString(kv[i])))
		out = append(out, toString(kv[i]), r.value(key, kv[i+1]))
	}
	return out
}

func (r *redactor) value(key string, val interface{}) interface{} {
	if key == "" {
		return val
	}
	if isSecretKey(key) || r.personal[key] {
		return "[REDACTED]"
	}
	if isHashKey(key) {
		return r.hash(val)
	}
	switch v := val.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = r.value(strings.TrimSpace(strings.ToLower(k)), item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, 0, len(v))
		for _, item := range v {
			out = append(out, r.value("", item))
		}
		return out
	default:
		if s, ok := val.(string); ok && looksLikeJWT(s) {
			return "[REDACTED]"
		}
		return val
	}
}

func isSecretKey(key string) bool {
	switch {
	case strings.Contains(key, "token"),
		strings.Contains(key, "authorization"),
		strings.Contains(key, "password"),
		strings.Contains(key, "secret"),
		strings.Contains(key, "cookie"),
		strings.Contains(key, "api_key"),
		strings.Contains(key, "apikey"),
		strings.Contains(key, "email"),
		strings.Contains(key, "phone"):
		return true
	default:
		return false
	}
}

func isHashKey(key string) bool {
	return strings.Contains(key, "chef_id") || strings.Contains(key, "client_id") || strings.Contains(key, "context_id")
}

func (r *redactor) hash(val interface{}) string {
	raw := toString(val)
	if raw == "" {
		return ""
	}
	h := sha256.New()
	if r.salt != "" {
		_, _ = h.Write([]byte(r.salt))
	}
	_, _ = h.Write([]byte(raw))
	sum := hex.EncodeToString(h.Sum(nil))
	return "hash:" + sum[:12]
}

func looksLikeJWT(s string) bool {
	if s == "" {
		return false
	}
	parts := strings.Split(s, ".")
	return len(parts) == 3 && len(parts[0]) > 10 && len(parts[1]) > 10
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
