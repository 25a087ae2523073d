// Package logs builds the logrus loggers used by every component.
package logs

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// formatter prefixes each entry with the owning component.
type formatter struct {
	owner string
	lf    log.Formatter
}

// Format satisfies the log.Formatter interface.
func (f *formatter) Format(e *log.Entry) ([]byte, error) {
	e.Message = fmt.Sprintf("[%s] %s", f.owner, e.Message)
	return f.lf.Format(e)
}

var level = log.InfoLevel

// SetLevel changes the level of loggers created afterwards.
func SetLevel(name string) error {
	lvl, err := log.ParseLevel(name)
	if err != nil {
		return err
	}
	level = lvl
	return nil
}

func NewLogger(owner string) *log.Logger {
	logger := log.New()
	logger.SetLevel(level)
	logger.SetFormatter(&formatter{
		owner: owner,
		lf: &log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.StampMilli,
		},
	})
	return logger
}
