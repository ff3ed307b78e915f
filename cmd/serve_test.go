package cmd

import (
	"testing"
)

func TestDetectBaseURL(t *testing.T) {
	tests := []struct {
		name     string
		httpAddr string
		expected string
	}{
		{
			name:     "port only",
			httpAddr: ":8080",
			expected: "http://localhost:8080",
		},
		{
			name:     "host and port",
			httpAddr: "0.0.0.0:8080",
			expected: "http://0.0.0.0:8080",
		},
		{
			name:     "localhost with port",
			httpAddr: "localhost:3000",
			expected: "http://localhost:3000",
		},
		{
			name:     "default metrics-style port",
			httpAddr: ":9090",
			expected: "http://localhost:9090",
		},
		{
			name:     "empty address",
			httpAddr: "",
			expected: "http://",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := detectBaseURL(tt.httpAddr)
			if result != tt.expected {
				t.Errorf("detectBaseURL(%q) = %q, want %q", tt.httpAddr, result, tt.expected)
			}
		})
	}
}

func TestNewServeCmdFlagDefaults(t *testing.T) {
	cmd := newServeCmd()

	tests := []struct {
		flag     string
		expected string
	}{
		{flag: "debug", expected: "false"},
		{flag: "http-addr", expected: ":8080"},
		{flag: "base-url", expected: ""},
		{flag: "redirect-url", expected: ""},
		{flag: "fetch-concurrency", expected: "10"},
		{flag: "metrics-enabled", expected: "true"},
		{flag: "metrics-addr", expected: ":9090"},
	}

	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			f := cmd.Flags().Lookup(tt.flag)
			if f == nil {
				t.Fatalf("flag %q not registered", tt.flag)
			}
			if f.DefValue != tt.expected {
				t.Errorf("flag %q default = %q, want %q", tt.flag, f.DefValue, tt.expected)
			}
		})
	}
}
