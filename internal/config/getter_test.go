package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvStr(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("DEPGRAPH_TEST_STR", "sisyphus")
	t.Setenv("DEPGRAPH_TEST_EMPTY", "")

	assert.Equal(t, "sisyphus", GetEnvStr("DEPGRAPH_TEST_STR", "p10"))
	assert.Equal(t, "p10", GetEnvStr("DEPGRAPH_TEST_EMPTY", "p10"))
	assert.Equal(t, "p10", GetEnvStr("DEPGRAPH_TEST_UNSET", "p10"))
}

func TestGetEnvInt(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		value string
		want  int
	}{
		{"9090", 9090},
		{" 42 ", 42},
		{"-3", -3},
		{"eighty", 8080},
		{"", 8080},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("DEPGRAPH_TEST_INT", tt.value)
			assert.Equal(t, tt.want, GetEnvInt("DEPGRAPH_TEST_INT", 8080))
		})
	}
}

func TestGetEnvInt64(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("DEPGRAPH_TEST_INT64", "8589934592")
	assert.Equal(t, int64(8589934592), GetEnvInt64("DEPGRAPH_TEST_INT64", 1))

	t.Setenv("DEPGRAPH_TEST_INT64", "1MiB")
	assert.Equal(t, int64(1), GetEnvInt64("DEPGRAPH_TEST_INT64", 1))
}

func TestGetEnvBool(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		value      string
		defaultVal bool
		want       bool
	}{
		{"true", false, true},
		{"YES", false, true},
		{"1", false, true},
		{"on", false, true},
		{"false", true, false},
		{"No", true, false},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
		{"maybe", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("DEPGRAPH_TEST_BOOL", tt.value)
			assert.Equal(t, tt.want, GetEnvBool("DEPGRAPH_TEST_BOOL", tt.defaultVal))
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("DEPGRAPH_TEST_DURATION", "1m30s")
	assert.Equal(t, 90*time.Second, GetEnvDuration("DEPGRAPH_TEST_DURATION", time.Second))

	t.Setenv("DEPGRAPH_TEST_DURATION", "30")
	assert.Equal(t, time.Second, GetEnvDuration("DEPGRAPH_TEST_DURATION", time.Second))
}

func TestGetEnvLogLevel(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		value string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"verbose", slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("DEPGRAPH_TEST_LEVEL", tt.value)
			assert.Equal(t, tt.want, GetEnvLogLevel("DEPGRAPH_TEST_LEVEL", slog.LevelWarn))
		})
	}
}

func TestParseCommaSeparatedList(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.Equal(t, []string{"x86_64", "noarch"}, ParseCommaSeparatedList(" x86_64 ,, noarch ,"))
	assert.Equal(t, []string{}, ParseCommaSeparatedList(""))
	assert.Equal(t, []string{}, ParseCommaSeparatedList(" , "))
}
