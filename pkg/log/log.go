// Package log adds a thin Fielder-based wrapper around zerolog, so that
// config structs and other values can describe how they want to be logged
// without every call site needing to know zerolog's event API.
package log

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

var l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

// SetDebug controls debug logging.
func SetDebug(to bool) {
	if to {
		l = l.Level(zerolog.DebugLevel)
	} else {
		l = l.Level(zerolog.InfoLevel)
	}
}

// SetOutput sets the logger's output writer.
func SetOutput(w io.Writer) {
	l = l.Output(w)
}

// Fields is a map of structured logging fields.
type Fields map[string]interface{}

// LogFields implements Fielder for Fields.
func (f Fields) LogFields() Fields { return f }

// A Fielder provides Fields via the LogFields method. Config structs
// implement this so they can be logged consistently wherever they're used.
type Fielder interface {
	LogFields() Fields
}

type errFielder struct{ e error }

// LogFields implements Fielder for an error.
func (e errFielder) LogFields() Fields {
	return Fields{"error": e.e.Error(), "type": fmt.Sprintf("%T", e.e)}
}

// Err wraps an error so it can be passed as a Fielder.
func Err(e error) Fielder { return errFielder{e} }

func apply(evt *zerolog.Event, fielders ...Fielder) *zerolog.Event {
	for i, f := range fielders {
		if f == nil {
			continue
		}
		prefix := ""
		if i > 0 {
			prefix = fmt.Sprintf("%d.", i)
		}
		for k, v := range f.LogFields() {
			evt = evt.Interface(prefix+k, v)
		}
	}
	return evt
}

// Debug logs v at debug level with the given Fielders attached as structured
// fields.
func Debug(v interface{}, fielders ...Fielder) {
	apply(l.Debug(), fielders...).Msg(fmt.Sprint(v))
}

// Info logs v at info level.
func Info(v interface{}, fielders ...Fielder) {
	apply(l.Info(), fielders...).Msg(fmt.Sprint(v))
}

// Warn logs v at warn level.
func Warn(v interface{}, fielders ...Fielder) {
	apply(l.Warn(), fielders...).Msg(fmt.Sprint(v))
}

// Error logs v at error level.
func Error(v interface{}, fielders ...Fielder) {
	apply(l.Error(), fielders...).Msg(fmt.Sprint(v))
}

// Fatal logs v at fatal level and exits the process.
func Fatal(v interface{}, fielders ...Fielder) {
	apply(l.Fatal(), fielders...).Msg(fmt.Sprint(v))
}
