// Package logging contains the structured logger shared by the linkbench
// tools and helpers to configure it.
package logging

import (
	golog "log"
	"net/http"
	"os"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/gorilla/handlers"
)

// Logger emits JSON records on the standard error, so that the output of a
// benchmark run can be collected and filtered next to the report, which is
// written on the standard output.
var Logger = log.Logger{
	Handler: json.New(os.Stderr),
	Level:   log.InfoLevel,
}

// SetLevel changes the minimum level of Logger. Valid levels are debug,
// info, warn, error and fatal.
func SetLevel(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	Logger.Level = lvl
	return nil
}

// MakeAccessLogHandler wraps handler with another handler that logs every
// radio connection request on the standard logger in Common Log Format.
func MakeAccessLogHandler(handler http.Handler) http.Handler {
	return handlers.LoggingHandler(golog.Writer(), handler)
}
