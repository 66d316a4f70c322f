package startup

import (
	"os"
	"testing"
	"time"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.GoVersion == "" {
		t.Error("Expected GoVersion to be set")
	}
	if info.OS == "" {
		t.Error("Expected OS to be set")
	}
	if info.Arch == "" {
		t.Error("Expected Arch to be set")
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
}

func TestGetEnv(t *testing.T) {
	os.Unsetenv("TEST_UNSET_VAR")
	if got := getEnv("TEST_UNSET_VAR", "default"); got != "default" {
		t.Errorf("getEnv unset = %q, want default", got)
	}

	t.Setenv("TEST_SET_VAR", "custom")
	if got := getEnv("TEST_SET_VAR", "default"); got != "custom" {
		t.Errorf("getEnv set = %q, want custom", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"false", true, false},
		{"1", false, true},
		{"0", true, false},
		{"banana", true, true}, // invalid falls back to default
		{"", false, false},
	}
	for _, tt := range tests {
		if tt.value == "" {
			os.Unsetenv("TEST_BOOL_VAR")
		} else {
			t.Setenv("TEST_BOOL_VAR", tt.value)
		}
		if got := getEnvBool("TEST_BOOL_VAR", tt.def); got != tt.want {
			t.Errorf("getEnvBool(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("TEST_INT_VAR", "42")
	if got := getEnvInt("TEST_INT_VAR", 7); got != 42 {
		t.Errorf("getEnvInt = %d, want 42", got)
	}

	t.Setenv("TEST_INT_VAR", "not-a-number")
	if got := getEnvInt("TEST_INT_VAR", 7); got != 7 {
		t.Errorf("getEnvInt invalid = %d, want default 7", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"MEDIA_DIR", "CACHE_DIR", "DATABASE_DIR", "PORT", "REDIS_ADDR",
		"OPEN_ACCESS", "SEGMENT_SECONDS", "CLAIM_TTL_SECONDS",
		"MAX_CHUNK_BYTES", "TRANSCODE_WORKERS",
	} {
		os.Unsetenv(key)
	}
	t.Setenv("MEDIA_DIR", t.TempDir())
	t.Setenv("CACHE_DIR", t.TempDir())
	t.Setenv("DATABASE_DIR", t.TempDir())

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if config.Port != "8080" {
		t.Errorf("Port = %q, want 8080", config.Port)
	}
	if config.OpenAccess {
		t.Error("OpenAccess defaulted to true")
	}
	if config.SegmentSeconds != 6 {
		t.Errorf("SegmentSeconds = %d, want 6", config.SegmentSeconds)
	}
	if config.ClaimTTL != 10*time.Minute {
		t.Errorf("ClaimTTL = %v, want 10m", config.ClaimTTL)
	}
	if config.MaxChunkBytes != 1<<20 {
		t.Errorf("MaxChunkBytes = %d, want 1 MiB", config.MaxChunkBytes)
	}
	if config.RedisAddr != "" {
		t.Errorf("RedisAddr = %q, want empty", config.RedisAddr)
	}
	if config.DatabasePath == "" {
		t.Error("DatabasePath not derived")
	}
}
