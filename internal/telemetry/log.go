// Package telemetry is the store's ambient logger: a thin wrapper over
// the standard library log package, matching the teacher's own
// log.Fatalf/fmt.Printf style (cmd/debug-capacity) rather than pulling
// in a structured-logging dependency the example corpus never shows.
//
// Hot-path events (content-table Mem wait failures, compaction runs) would otherwise flood
// the log under concurrent load, so Logger samples them at a
// configurable 1/sample_rate cadence per call site.
package telemetry

import (
	"log"
	"os"
	"sync/atomic"
)

// Level orders the severities a Logger accepts, least to most severe.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger wraps *log.Logger with a minimum level and a sample rate applied
// only to Sampled calls. A sample_rate of 1 (or 0) logs every call; a
// sample_rate of N logs roughly one in every N calls per call site.
type Logger struct {
	out        *log.Logger
	level      Level
	sampleRate uint64
}

// New builds a Logger writing to os.Stderr, filtering below level,
// sampling Sampled() calls at 1-in-sampleRate.
func New(level Level, sampleRate uint64) *Logger {
	if sampleRate == 0 {
		sampleRate = 1
	}
	return &Logger{
		out:        log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
		level:      level,
		sampleRate: sampleRate,
	}
}

func (l *Logger) enabled(level Level) bool { return l != nil && level >= l.level }

func (l *Logger) log(level Level, format string, args ...any) {
	if !l.enabled(level) {
		return
	}
	l.out.Printf("%s "+format, append([]any{level.String()}, args...)...)
}

func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, format, args...) }

// Fatalf logs at error level then exits the process, mirroring the
// teacher's log.Fatalf use for unrecoverable setup failures.
func (l *Logger) Fatalf(format string, args ...any) {
	l.out.Fatalf("%s "+format, append([]any{LevelError.String()}, args...)...)
}

// Sampler tracks a single hot-path call site's counter for sampled
// logging, so each Logger.Sampled call site gets its own independent
// 1-in-N cadence rather than sharing one global counter.
type Sampler struct {
	counter atomic.Uint64
}

// Sampled logs format at level only on every sampleRate-th call against
// this Sampler, per spec.md §6's log_level/sample_rate configuration.
func (l *Logger) Sampled(s *Sampler, level Level, format string, args ...any) {
	if !l.enabled(level) {
		return
	}
	n := s.counter.Add(1)
	if n%l.sampleRate != 0 {
		return
	}
	l.log(level, format+" (sampled 1/%d)", append(args, l.sampleRate)...)
}

// ParseLevel maps the SHMSTORE_LOG_LEVEL environment/config string onto a
// Level, defaulting to LevelInfo for anything unrecognized.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	case "info", "":
		return LevelInfo
	default:
		return LevelInfo
	}
}
