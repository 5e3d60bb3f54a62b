package config

import "fmt"

// ConfigParseError is returned when the dev config file is structurally
// invalid. The server must not start when loading fails with this error.
type ConfigParseError struct {
	Source  string // file the configuration was read from, if any
	Field   string // dotted option path, e.g. server.proxy./api.target
	Message string
	Err     error
}

func (e *ConfigParseError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg != "" {
			msg = msg + ": " + e.Err.Error()
		} else {
			msg = e.Err.Error()
		}
	}
	switch {
	case e.Source != "" && e.Field != "":
		return fmt.Sprintf("parsing %s: %s: %s", e.Source, e.Field, msg)
	case e.Field != "":
		return fmt.Sprintf("parsing config: %s: %s", e.Field, msg)
	case e.Source != "":
		return fmt.Sprintf("parsing %s: %s", e.Source, msg)
	}
	return "parsing config: " + msg
}

func (e *ConfigParseError) Unwrap() error {
	return e.Err
}
