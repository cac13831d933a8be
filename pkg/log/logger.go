package log

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/t-tomalak/logrus-easy-formatter"
)

var logger *customLogger

// nolint:gochecknoinits
func init() {
	logger = newLogger()
}

type customLogger struct {
	*logrus.Logger
}

// SetLevel
// Set log level:
// DebugLevel = 0
// InfoLevel = 1
// WarnLevel = 2
// ErrorLevel = 3
func SetLevel(lvl int) {
	switch lvl {
	case 0:
		Info("log level set to DEBUG.")
		logger.Level = logrus.DebugLevel
	case 1:
		Info("log level set to INFO.")
		logger.Level = logrus.InfoLevel
	case 2:
		Info("log level set to WARN.")
		logger.Level = logrus.WarnLevel
	case 3:
		Info("log level set to ERROR.")
		logger.Level = logrus.ErrorLevel
	default:
		Info("log level set to INFO.")
		logger.Level = logrus.InfoLevel
	}
}

// SetLevelName accepts the names used in configuration files: debug, info, warn, error.
func SetLevelName(name string) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		SetLevel(0)
	case "warn", "warning":
		SetLevel(2)
	case "error":
		SetLevel(3)
	default:
		SetLevel(1)
	}
}

// Fields are rendered after the message as key=value pairs.
type Fields map[string]interface{}

// WithFields returns an entry that prefixes every message with the given fields.
func WithFields(fields Fields) *Entry {
	return &Entry{fields: fields}
}

// Entry is a set of fields bound to the package logger.
type Entry struct {
	fields Fields
}

func (e *Entry) render(msg string) string {
	if len(e.fields) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	for _, k := range sortedKeys(e.fields) {
		fmt.Fprintf(&b, " %s=%v", k, e.fields[k])
	}
	return b.String()
}

func (e *Entry) Debugf(format string, args ...interface{}) {
	logger.Debug(e.render(fmt.Sprintf(format, args...)))
}

func (e *Entry) Infof(format string, args ...interface{}) {
	logger.Info(e.render(fmt.Sprintf(format, args...)))
}

func (e *Entry) Warnf(format string, args ...interface{}) {
	logger.Warn(e.render(fmt.Sprintf(format, args...)))
}

func (e *Entry) Errorf(format string, args ...interface{}) {
	logger.Error(e.render(fmt.Sprintf(format, args...)))
}

func newLogger() *customLogger {
	logger := &logrus.Logger{
		Out:   os.Stderr,
		Level: logrus.InfoLevel,
		Formatter: &easy.Formatter{
			TimestampFormat: "01-02 15:04:05.000",
			LogFormat:       "[%lvl%]   [%time%]   -   %msg%\r\n",
		},
	}
	return &customLogger{logger}
}

func sortedKeys(fields Fields) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Debug
func Debug(content interface{}) {
	logger.Debug(content)
}

// Debugf
func Debugf(format string, args ...interface{}) {
	content := fmt.Sprintf(format, args...)
	logger.Debugf(content)
}

// Info
func Info(content interface{}) {
	logger.Info(content)
}

// Infof
func Infof(format string, args ...interface{}) {
	content := fmt.Sprintf(format, args...)
	logger.Infof(content)
}

// Warn
func Warn(content interface{}) {
	logger.Warn(content)
}

// Warnf
func Warnf(format string, args ...interface{}) {
	content := fmt.Sprintf(format, args...)
	logger.Warnf(content)
}

// Error
func Error(content interface{}) {
	logger.Error(content)
}

// Errorf
func Errorf(format string, args ...interface{}) {
	content := fmt.Sprintf(format, args...)
	logger.Errorf(content)
}

// Fatal
func Fatal(content interface{}) {
	logger.Fatal(content)
}

// Fatalf
func Fatalf(format string, args ...interface{}) {
	content := fmt.Sprintf(format, args...)
	logger.Fatalf(content)
}
