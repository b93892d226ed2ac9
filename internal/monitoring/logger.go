// Package monitoring is the shared logger. Components take a Tagged logger
// so every line names its source; the sink and the level are process wide.
package monitoring

import "log"

// Logf is the sink every tagged logger writes through. It defaults to
// log.Printf and is swapped with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the sink. nil mutes all output.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Logger prefixes messages with a component tag and filters them by level.
type Logger struct {
	tag string
}

// Tagged returns a logger for a component, e.g. "align" or "navx".
func Tagged(tag string) *Logger { return &Logger{tag: tag} }

func (l *Logger) emit(min Level, prefix, format string, v ...interface{}) {
	if CurrentLevel() < min {
		return
	}
	msg := "[" + l.tag + "] "
	if prefix != "" {
		msg += prefix + " "
	}
	Logf(msg+format, v...)
}

func (l *Logger) Debugf(format string, v ...interface{}) { l.emit(LevelDebug, "DEBUG:", format, v...) }

func (l *Logger) Infof(format string, v ...interface{}) { l.emit(LevelInfo, "", format, v...) }

// Printf is an alias for Infof.
func (l *Logger) Printf(format string, v ...interface{}) { l.Infof(format, v...) }

func (l *Logger) Warnf(format string, v ...interface{}) { l.emit(LevelWarning, "WARN:", format, v...) }

func (l *Logger) Errorf(format string, v ...interface{}) { l.emit(LevelError, "ERROR:", format, v...) }
