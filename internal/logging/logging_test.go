package logging

import "testing"

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		debugEnv string
		levelEnv string
		want     Level
	}{
		{"Default", "", "", LevelInfo},
		{"DebugFlag", "true", "", LevelDebug},
		{"DebugFlagNumeric", "1", "error", LevelDebug},
		{"LevelDebug", "", "debug", LevelDebug},
		{"LevelInfo", "", "info", LevelInfo},
		{"LevelWarn", "", "warn", LevelWarn},
		{"LevelWarning", "", "warning", LevelWarn},
		{"LevelError", "", "error", LevelError},
		{"CaseInsensitive", "", "ERROR", LevelError},
		{"Garbage", "", "verbose", LevelInfo},
		{"DebugFlagOff", "false", "warn", LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseLevel(tt.debugEnv, tt.levelEnv); got != tt.want {
				t.Errorf("parseLevel(%q, %q) = %v, want %v", tt.debugEnv, tt.levelEnv, got, tt.want)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{Level(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}
