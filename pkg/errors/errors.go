package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// New returns an error with the supplied message and the current stack.
func New(message string) error {
	return pkgerrors.New(message)
}

// Errorf formats according to a format specifier and records the stack.
func Errorf(format string, args ...interface{}) error {
	return pkgerrors.Errorf(format, args...)
}

// Wrap annotates err with message and a stack. Wrap returns nil if err is nil.
func Wrap(err error, message string) error {
	return pkgerrors.Wrap(err, message)
}

// Wrapf annotates err with a formatted message and a stack. Wrapf returns nil if err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	return pkgerrors.Wrapf(err, format, args...)
}

func WithStack(err error) error {
	return pkgerrors.WithStack(err)
}

func WithMessage(err error, message string) error {
	return pkgerrors.WithMessage(err, message)
}

func WithMessagef(err error, format string, args ...interface{}) error {
	return pkgerrors.WithMessagef(err, format, args...)
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

func Cause(err error) error {
	return pkgerrors.Cause(err)
}

// NewWithReport 创建错误并上报
func NewWithReport(message string) error {
	err := New(message)
	report(err)
	return err
}

// ErrorfAndReport 格式化错误并上报
func ErrorfAndReport(format string, args ...interface{}) error {
	err := Errorf(format, args...)
	report(err)
	return err
}

// WrapAndReport wraps err with message and reports it. Returns nil if err is nil.
func WrapAndReport(err error, message string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, message)
	report(wrapped)
	return wrapped
}

// WrapfAndReport wraps err with a formatted message and reports it. Returns nil if err is nil.
func WrapfAndReport(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	wrapped := Wrapf(err, format, args...)
	report(wrapped)
	return wrapped
}

func WithStackAndReport(err error) error {
	if err == nil {
		return nil
	}
	wrapped := WithStack(err)
	report(wrapped)
	return wrapped
}

func WithMessageAndReport(err error, message string) error {
	if err == nil {
		return nil
	}
	wrapped := WithMessage(err, message)
	report(wrapped)
	return wrapped
}

type stack []uintptr

const maxStackDepth = 32

func callers() *stack {
	var pcs [maxStackDepth]uintptr
	n := runtime.Callers(3, pcs[:])
	var st stack = pcs[0:n]
	return &st
}

// fullStack renders the captured frames as "function file:line", skipping runtime internals.
func (s *stack) fullStack() []string {
	frames := runtime.CallersFrames(*s)
	var lines []string
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			lines = append(lines, fmt.Sprintf("%s %s:%d", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}
	return lines
}

// reportSite picks the frame that identifies where an error was reported from.
func reportSite(stacks []string) string {
	if len(stacks) > 2 {
		return stacks[2]
	}
	if len(stacks) > 0 {
		return stacks[len(stacks)-1]
	}
	return ""
}
