package commands

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		name string
		env  string
		args []string
		want zerolog.Level
	}{
		{name: "default", env: "", args: nil, want: zerolog.InfoLevel},
		{name: "env debug", env: "debug", args: nil, want: zerolog.DebugLevel},
		{name: "env warn", env: "warn", args: []string{"status"}, want: zerolog.WarnLevel},
		{name: "env error", env: "error", args: nil, want: zerolog.ErrorLevel},
		{name: "env garbage falls back", env: "loud", args: nil, want: zerolog.InfoLevel},
		{name: "verbose flag", env: "", args: []string{"provision", "--verbose"}, want: zerolog.DebugLevel},
		{name: "verbose shorthand", env: "", args: []string{"-v"}, want: zerolog.DebugLevel},
		{name: "verbose beats env", env: "error", args: []string{"-v"}, want: zerolog.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LogLevel(tt.env, tt.args); got != tt.want {
				t.Errorf("Expected level %s, got %s", tt.want, got)
			}
		})
	}
}
