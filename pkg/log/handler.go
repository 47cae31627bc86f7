package log

import (
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ErrorStackMarshaler extracts the stack trace recorded by cockroachdb/errors.
// It is installed as zerolog.ErrorStackMarshaler so that Error(msg, err, ...)
// emits a stack field without every call site formatting it.
func ErrorStackMarshaler(err error) interface{} {
	if st := extractStacktrace(err); st != "" {
		return st
	}
	return nil
}

func extractStacktrace(err error) string {
	for e := err; e != nil; e = errors.UnwrapOnce(e) {
		safeDetails := errors.GetSafeDetails(e).SafeDetails
		if len(safeDetails) > 0 {
			return safeDetails[0]
		}
	}
	return ""
}

// objectMarshaler returns the first error in the chain that can describe
// itself to zerolog, or nil.
func objectMarshaler(err error) zerolog.LogObjectMarshaler {
	var m zerolog.LogObjectMarshaler
	if errors.As(err, &m) {
		return m
	}
	return nil
}

// appendFields writes key/value pairs to a zerolog event. Values implementing
// zerolog.LogObjectMarshaler (the error types in pkg/errors) are nested as objects.
func appendFields(e *zerolog.Event, fields []any) *zerolog.Event {
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		switch v := fields[i+1].(type) {
		case zerolog.LogObjectMarshaler:
			e = e.Object(key, v)
		case error:
			e = e.AnErr(key, v)
		case string:
			e = e.Str(key, v)
		case int:
			e = e.Int(key, v)
		case float64:
			e = e.Float64(key, v)
		case bool:
			e = e.Bool(key, v)
		case []string:
			e = e.Strs(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	return e
}

func appendContext(c zerolog.Context, fields []any) zerolog.Context {
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		switch v := fields[i+1].(type) {
		case zerolog.LogObjectMarshaler:
			c = c.Object(key, v)
		case error:
			c = c.AnErr(key, v)
		case string:
			c = c.Str(key, v)
		case int:
			c = c.Int(key, v)
		default:
			c = c.Interface(key, v)
		}
	}
	return c
}
