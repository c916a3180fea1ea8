package logger

import "fmt"

// Level is a logging verbosity. Higher levels include all lower ones.
type Level int

const (
	LevelUnknown Level = iota - 1
	LevelDisabled
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

var levelNames = map[Level]string{
	LevelDisabled: "disabled",
	LevelError:    "error",
	LevelWarn:     "warn",
	LevelInfo:     "info",
	LevelDebug:    "debug",
	LevelTrace:    "trace",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}

	return fmt.Sprintf("Unknown(%d)", int(l))
}

// LevelFromString parses a level name. The bool is false for unknown names.
func LevelFromString(str string) (Level, bool) {
	for level, name := range levelNames {
		if name == str {
			return level, true
		}
	}

	return LevelUnknown, false
}

// LevelForNamespace implements Config, so a single Level can be used to
// configure every namespace the same way.
func (l Level) LevelForNamespace(string) Level {
	return l
}
