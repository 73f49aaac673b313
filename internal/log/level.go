package log

import (
	"fmt"
	"strings"
)

// Level orders log entries by severity.
type Level int

const (
	// Default resolves to Info when a Logger is created.
	Default Level = iota
	Trace
	Debug
	Info
	Warn
	Error
)

var levelNames = [...]string{"default", "trace", "debug", "info", "warn", "error"}

// Levels returns every level a Logger can filter on, lowest first.
func Levels() []Level { return []Level{Trace, Debug, Info, Warn, Error} }

func (l Level) String() string {
	if l < Default || int(l) >= len(levelNames) {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel accepts a level name in any case.
func ParseLevel(input string) (Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(name, input) {
			return Level(i), nil
		}
	}
	return Default, fmt.Errorf("unknown log level %q, expected one of %s", input, strings.Join(levelNames[1:], ", "))
}

func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *Level) UnmarshalText(text []byte) error {
	level, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = level
	return nil
}
