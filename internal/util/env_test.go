package util

import "testing"

func TestGetEnvDefault(t *testing.T) {
	t.Setenv("POCKETCOACH_TEST_VAR", "set")
	if got := GetEnvDefault("POCKETCOACH_TEST_VAR", "fallback"); got != "set" {
		t.Errorf("GetEnvDefault = %q, want set", got)
	}
	if got := GetEnvDefault("POCKETCOACH_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("GetEnvDefault = %q, want fallback", got)
	}
}

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"off", true, false},
		{"0", true, false},
		{"", true, true},
		{"garbage", true, true},
	}

	for _, tt := range tests {
		t.Setenv("POCKETCOACH_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("POCKETCOACH_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}
