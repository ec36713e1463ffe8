package driver

import "fmt"

// ConfigError is a custom error type for configuration errors
type ConfigError struct {
	driver string
	msg    string
}

func NewConfigError(driver, format string, args ...any) *ConfigError {
	return &ConfigError{driver: driver, msg: fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s.Config: %s", e.driver, e.msg)
}

// RuntimeError is a custom error type for errors locating or running a driver runtime
type RuntimeError struct {
	runtime string
	err     error
}

func NewRuntimeError(runtime string, err error) *RuntimeError {
	return &RuntimeError{runtime: runtime, err: err}
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime `%s`: %s", e.runtime, e.err)
}

func (e *RuntimeError) Unwrap() error {
	return e.err
}
