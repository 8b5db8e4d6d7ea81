package pipeline

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log ring sizes.
const (
	LogRingSize = 500
	LogTailSize = 50
)

// LogRing keeps the most recent log lines of a job for status queries. It
// implements zapcore.WriteSyncer; each zap entry arrives as one Write.
type LogRing struct {
	mu    sync.Mutex
	lines []string
	max   int
}

// NewLogRing returns a ring holding at most max lines.
func NewLogRing(max int) *LogRing {
	if max <= 0 {
		max = LogRingSize
	}
	return &LogRing{max: max}
}

// Write appends one line per newline-separated chunk of p.
func (r *LogRing) Write(p []byte) (int, error) {
	text := strings.TrimRight(string(p), "\n")
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range strings.Split(text, "\n") {
		r.lines = append(r.lines, line)
	}
	if over := len(r.lines) - r.max; over > 0 {
		r.lines = append(r.lines[:0:0], r.lines[over:]...)
	}
	return len(p), nil
}

// Sync implements zapcore.WriteSyncer.
func (r *LogRing) Sync() error { return nil }

// Tail returns up to n of the newest lines, oldest first.
func (r *LogRing) Tail(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > len(r.lines) {
		n = len(r.lines)
	}
	out := make([]string, n)
	copy(out, r.lines[len(r.lines)-n:])
	return out
}

// newJobLogger tees base (tagged with fields) into ring. The ring gets a
// compact console rendering without the job fields.
func newJobLogger(base *zap.Logger, ring *LogRing, fields ...zap.Field) *zap.Logger {
	if base == nil {
		base = zap.L()
	}
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		MessageKey:       "msg",
		EncodeTime:       zapcore.TimeEncoderOfLayout("15:04:05"),
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		ConsoleSeparator: " ",
	})
	ringCore := zapcore.NewCore(enc, ring, zapcore.InfoLevel)
	return zap.New(zapcore.NewTee(base.Core().With(fields), ringCore))
}
