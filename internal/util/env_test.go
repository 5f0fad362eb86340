package util

import (
	"testing"
	"time"
)

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		set   bool
		want  time.Duration
	}{
		{name: "unset", set: false, want: time.Minute},
		{name: "empty", value: " ", set: true, want: time.Minute},
		{name: "go_duration", value: "10m", set: true, want: 10 * time.Minute},
		{name: "seconds", value: "90", set: true, want: 90 * time.Second},
		{name: "garbage", value: "soon", set: true, want: time.Minute},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.set {
				t.Setenv("TEST_DURATION", tc.value)
			}
			if got := GetEnvDuration("TEST_DURATION", time.Minute); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("TEST_LIST", " /data/graph_cache.json, ,backend/graph_cache.json,")

	got := GetEnvList("TEST_LIST")
	if len(got) != 2 || got[0] != "/data/graph_cache.json" || got[1] != "backend/graph_cache.json" {
		t.Fatalf("unexpected list %q", got)
	}

	if got := GetEnvList("TEST_LIST_UNSET"); got != nil {
		t.Fatalf("expected nil, got %q", got)
	}
}

func TestFirstEnv(t *testing.T) {
	t.Setenv("TEST_REGION", "")
	t.Setenv("TEST_VITE_REGION", "us-west-2")

	if got := FirstEnv("TEST_REGION", "TEST_VITE_REGION"); got != "us-west-2" {
		t.Fatalf("expected us-west-2, got %q", got)
	}
	if got := FirstEnv("TEST_NONE"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "yes")
	if !GetEnvBool("TEST_BOOL", true) {
		t.Fatal("invalid values fall back to the default")
	}
	t.Setenv("TEST_BOOL", "false")
	if GetEnvBool("TEST_BOOL", true) {
		t.Fatal("expected false")
	}
}
