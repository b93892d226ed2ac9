package monitoring

import "sync/atomic"

// Level filters tagged log output.
type Level int32

const (
	LevelNone Level = iota
	LevelError
	LevelWarning
	LevelInfo
	LevelDebug
)

var level atomic.Int32

func init() { level.Store(int32(LevelInfo)) }

// SetLevel sets the most verbose level that tagged loggers emit.
func SetLevel(l Level) { level.Store(int32(l)) }

// CurrentLevel returns the active level.
func CurrentLevel() Level { return Level(level.Load()) }
