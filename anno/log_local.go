package anno

import (
	"log"
	"os"

	"github.com/natefinch/lumberjack"
)

// stdLogger writes through the standard log package, into a rotating file when file is set.
type stdLogger struct {
	file *lumberjack.Logger
}

func (l stdLogger) Logf(level Level, format string, args ...interface{}) {
	log.Printf(" "+level.String()+" "+format, args...)
}

func (l stdLogger) Close() error {
	if l.file == nil {
		return nil
	}
	log.SetOutput(os.Stderr)
	return l.file.Close()
}

// LogConfig is the [logging] section of the configuration.
type LogConfig struct {
	Logfile string
	MaxSize int  `toml:"max_log_size"` // megabytes
	MaxAge  int  `toml:"max_log_age"`  // days
	Verbose bool `toml:"verbose"`
}

// SetLogger applies the configuration: debug messages when verbose, and a rotating log
// file when Logfile is set.  Without a log file messages go to stderr.
func (c *LogConfig) SetLogger() {
	if c == nil {
		return
	}
	if c.Verbose {
		SetLogLevel(DebugLevel)
	}
	if c.Logfile == "" {
		return
	}
	file := &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize,
		MaxAge:   c.MaxAge,
	}
	log.SetOutput(file)
	SetLogger(stdLogger{file})
	Infof("Logging to %s\n", c.Logfile)
}
