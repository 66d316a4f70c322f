package memory

import (
	"os"
	"runtime/debug"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"GOMEMLIMIT", "MEMORY_LIMIT", "MEMORY_RATIO"} {
		old, had := os.LookupEnv(key)
		os.Unsetenv(key)
		t.Cleanup(func() {
			if had {
				os.Setenv(key, old)
			} else {
				os.Unsetenv(key)
			}
		})
	}
	oldLimit := debug.SetMemoryLimit(-1)
	t.Cleanup(func() { debug.SetMemoryLimit(oldLimit) })
}

func TestConfigureFromEnvUnset(t *testing.T) {
	clearEnv(t)

	result := ConfigureFromEnv()
	if result.Configured {
		t.Error("expected Configured false with no env vars")
	}
	if result.Source != "none" {
		t.Errorf("Source = %q, want none", result.Source)
	}
}

func TestConfigureFromEnvFromContainerLimit(t *testing.T) {
	clearEnv(t)
	os.Setenv("MEMORY_LIMIT", "1073741824")

	result := ConfigureFromEnv()
	if !result.Configured {
		t.Fatal("expected Configured true")
	}
	if result.Source != "MEMORY_LIMIT" {
		t.Errorf("Source = %q, want MEMORY_LIMIT", result.Source)
	}
	if result.ContainerLimit != 1073741824 {
		t.Errorf("ContainerLimit = %d, want 1073741824", result.ContainerLimit)
	}
	want := int64(float64(1073741824) * DefaultMemoryRatio)
	if result.GoMemLimit != want {
		t.Errorf("GoMemLimit = %d, want %d", result.GoMemLimit, want)
	}
	if got := debug.SetMemoryLimit(-1); got != want {
		t.Errorf("runtime limit = %d, want %d", got, want)
	}
}

func TestConfigureFromEnvCustomRatio(t *testing.T) {
	clearEnv(t)
	os.Setenv("MEMORY_LIMIT", "1000000")
	os.Setenv("MEMORY_RATIO", "0.5")

	result := ConfigureFromEnv()
	if result.GoMemLimit != 500000 {
		t.Errorf("GoMemLimit = %d, want 500000", result.GoMemLimit)
	}
	if result.Ratio != 0.5 {
		t.Errorf("Ratio = %f, want 0.5", result.Ratio)
	}
}

func TestConfigureFromEnvBadValues(t *testing.T) {
	tests := []struct {
		name  string
		limit string
		ratio string
		want  float64
	}{
		{"garbage limit", "not-a-number", "", 0},
		{"negative limit", "-100", "", 0},
		{"ratio out of range", "1000000", "1.5", DefaultMemoryRatio},
		{"garbage ratio", "1000000", "lots", DefaultMemoryRatio},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			os.Setenv("MEMORY_LIMIT", tt.limit)
			if tt.ratio != "" {
				os.Setenv("MEMORY_RATIO", tt.ratio)
			}

			result := ConfigureFromEnv()
			if result.Ratio != tt.want {
				t.Errorf("Ratio = %f, want %f", result.Ratio, tt.want)
			}
		})
	}
}

func TestMonitorWithoutLimit(t *testing.T) {
	clearEnv(t)
	debug.SetMemoryLimit(int64(1) << 62)

	m := NewMonitor()
	if m.limit != 0 {
		t.Errorf("limit = %d, want 0 with no GOMEMLIMIT", m.limit)
	}
	m.Start()
	m.Stop()
	m.Stop()

	if m.Pressure() {
		t.Error("inert monitor should not report pressure")
	}
}

func TestMonitorSample(t *testing.T) {
	clearEnv(t)
	debug.SetMemoryLimit(1 << 40)

	m := NewMonitor()
	m.sample()

	if m.Usage() == 0 {
		t.Error("expected nonzero heap usage after sample")
	}
	if m.Pressure() {
		t.Error("1 TiB limit should not be under pressure")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1073741824, "1.0 GiB"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
