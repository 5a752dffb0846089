package anno

import (
	"sync/atomic"
	"time"
)

// Level is the severity of a log message.
type Level uint32

const (
	DebugLevel Level = iota
	InfoLevel
	WarningLevel
	ErrorLevel
	SilentLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarningLevel:
		return "WARNING"
	case ErrorLevel:
		return "ERROR"
	default:
		return "SILENT"
	}
}

// Logger is the sink for messages that pass the level threshold.
type Logger interface {
	Logf(level Level, format string, args ...interface{})
	Close() error
}

var (
	threshold atomic.Uint32

	logger Logger = stdLogger{}
)

func init() {
	threshold.Store(uint32(InfoLevel))
}

// SetLogLevel sets the lowest level that is logged.  SilentLevel turns logging off.
func SetLogLevel(level Level) {
	threshold.Store(uint32(level))
}

// SetLogger replaces the sink of all log messages.  A nil logger restores the default,
// which writes through the standard log package.
func SetLogger(l Logger) {
	if l == nil {
		l = stdLogger{}
	}
	logger = l
}

func logf(level Level, format string, args ...interface{}) {
	if uint32(level) >= threshold.Load() {
		logger.Logf(level, format, args...)
	}
}

func Debugf(format string, args ...interface{})   { logf(DebugLevel, format, args...) }
func Infof(format string, args ...interface{})    { logf(InfoLevel, format, args...) }
func Warningf(format string, args ...interface{}) { logf(WarningLevel, format, args...) }
func Errorf(format string, args ...interface{})   { logf(ErrorLevel, format, args...) }

// Shutdown closes the log sink.
func Shutdown() {
	if err := logger.Close(); err != nil {
		Errorf("closing log: %v\n", err)
	}
}

// TimeLog appends the time elapsed since NewTimeLog to each message.
type TimeLog struct {
	start time.Time
}

func NewTimeLog() TimeLog {
	return TimeLog{time.Now()}
}

func (t TimeLog) elapsed() time.Duration {
	return time.Since(t.start).Round(time.Microsecond)
}

func (t TimeLog) Debugf(format string, args ...interface{}) {
	logf(DebugLevel, format+": %s\n", append(args, t.elapsed())...)
}

func (t TimeLog) Infof(format string, args ...interface{}) {
	logf(InfoLevel, format+": %s\n", append(args, t.elapsed())...)
}
