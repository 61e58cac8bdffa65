package commands

import "github.com/rs/zerolog"

// LogLevel resolves the bootstrap log level from the LOG_LEVEL environment
// value and the raw command-line arguments. --verbose wins over the
// environment so debug output also covers the wiring that happens before
// cobra has parsed flags.
func LogLevel(env string, args []string) zerolog.Level {
	level := zerolog.InfoLevel
	if env != "" {
		if l, err := zerolog.ParseLevel(env); err == nil && l != zerolog.NoLevel {
			level = l
		}
	}
	for _, a := range args {
		if a == "-v" || a == "--verbose" {
			return zerolog.DebugLevel
		}
	}
	return level
}
