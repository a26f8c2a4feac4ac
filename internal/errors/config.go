package errors

import "fmt"

// ConfigError reports a setting that is required by the selected feature but
// absent or unusable. The feature is not attempted.
type ConfigError struct {
	Setting string
	Message string
}

// NewConfigError creates a ConfigError for the given setting.
func NewConfigError(setting, format string, args ...interface{}) *ConfigError {
	return &ConfigError{
		Setting: setting,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *ConfigError) Error() string {
	if e.Setting == "" {
		return e.Message
	}
	return e.Setting + ": " + e.Message
}
