package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nvr-ai/go-detect/logger"
)

// Env is a namespaced view over environment variables, e.g. "DETECT_".
type Env struct{ prefix string }

// NewEnv creates a view with the given prefix.
func NewEnv(prefix string) Env { return Env{prefix: prefix} }

// Prefix creates a child view with an additional prefix.
func (e Env) Prefix(p string) Env { return Env{prefix: e.prefix + p} }

func (e Env) key(k string) string { return e.prefix + k }

func (e Env) lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(e.key(key)))
	return v, v != ""
}

// MayString returns the value or def if missing/empty.
func (e Env) MayString(key, def string) string {
	if v, ok := e.lookup(key); ok {
		return v
	}
	return def
}

// MayInt returns the value or def if missing/empty; logs and returns def if invalid.
func (e Env) MayInt(key string, def int) int {
	s, ok := e.lookup(key)
	if !ok {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	logger.Get().Warn().Str("key", e.key(key)).Str("value", s).Int("default", def).Msg("invalid int; using default")
	return def
}

// MayInt64 returns the value or def if missing/empty; logs and returns def if invalid.
func (e Env) MayInt64(key string, def int64) int64 {
	s, ok := e.lookup(key)
	if !ok {
		return def
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	logger.Get().Warn().Str("key", e.key(key)).Str("value", s).Int64("default", def).Msg("invalid int64; using default")
	return def
}

// MayFloat32 returns the value or def if missing/empty; logs and returns def if invalid.
func (e Env) MayFloat32(key string, def float32) float32 {
	s, ok := e.lookup(key)
	if !ok {
		return def
	}
	if v, err := strconv.ParseFloat(s, 32); err == nil {
		return float32(v)
	}
	logger.Get().Warn().Str("key", e.key(key)).Str("value", s).Float32("default", def).
		Msg("invalid float; using default")
	return def
}

// MayBool returns the value or def if missing/empty; logs and returns def if invalid.
func (e Env) MayBool(key string, def bool) bool {
	s, ok := e.lookup(key)
	if !ok {
		return def
	}
	if v, err := strconv.ParseBool(s); err == nil {
		return v
	}
	logger.Get().Warn().Str("key", e.key(key)).Str("value", s).Bool("default", def).Msg("invalid bool; using default")
	return def
}

// MayDuration returns the value or def if missing/empty; logs and returns def if invalid.
func (e Env) MayDuration(key string, def time.Duration) time.Duration {
	s, ok := e.lookup(key)
	if !ok {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	logger.Get().Warn().Str("key", e.key(key)).Str("value", s).Dur("default", def).Msg("invalid duration; using default")
	return def
}

// MayCSV returns a slice from a comma-separated variable; def if missing/empty.
func (e Env) MayCSV(key string, def []string) []string {
	s, ok := e.lookup(key)
	if !ok {
		return def
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
