package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// Logger is a printf style leveled logger. Every line goes to the file sink;
// Info and above are mirrored to stdout when enabled.
type Logger struct {
	file   *logrus.Logger
	stdout *logrus.Logger
	level  Level
	exit   func(int)
}

func New(filePath string, level Level, includeStdout bool) (*Logger, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	var stdout io.Writer
	if includeStdout {
		stdout = os.Stdout
	}
	return NewWithWriters(f, stdout, level), nil
}

// NewWithWriters builds a logger on arbitrary sinks. A nil console disables the
// mirror.
func NewWithWriters(file, console io.Writer, level Level) *Logger {
	l := &Logger{
		file:  newLogrus(file, logrus.DebugLevel),
		level: level,
		exit:  os.Exit,
	}
	if console != nil {
		// Debug stays out of the console so CLI progress output is readable.
		l.stdout = newLogrus(console, logrus.InfoLevel)
	}
	return l
}

func newLogrus(w io.Writer, lvl logrus.Level) *logrus.Logger {
	lg := logrus.New()
	lg.SetOutput(w)
	lg.SetLevel(lvl)
	lg.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return lg
}

func (l *Logger) log(lvl Level, format string, v ...any) {
	if lvl < l.level {
		return
	}

	ll := toLogrus(lvl)
	l.file.Logf(ll, format, v...)
	if l.stdout != nil {
		l.stdout.Logf(ll, format, v...)
	}
}

func toLogrus(lvl Level) logrus.Level {
	switch lvl {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	case LevelFatal:
		// logrus.Fatal exits on its own; keep the exit under our control.
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func ParseLevel(lvl string) Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *Logger) Debug(f string, v ...any) { l.log(LevelDebug, f, v...) }
func (l *Logger) Info(f string, v ...any)  { l.log(LevelInfo, f, v...) }
func (l *Logger) Warn(f string, v ...any)  { l.log(LevelWarn, f, v...) }
func (l *Logger) Error(f string, v ...any) { l.log(LevelError, f, v...) }
func (l *Logger) Fatal(f string, v ...any) { l.log(LevelFatal, "FATAL: "+f, v...); l.exit(1) }

func (l *Logger) Write(p []byte) (n int, err error) {
	// Echo and other libraries often include a newline at the end
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		l.Info("%s", msg)
	}
	return len(p), nil
}
