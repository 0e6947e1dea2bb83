package main

import "testing"

func TestParseCommon(t *testing.T) {
	opts, rest, err := parseCommon([]string{
		"slept", "8", "hours",
		"--user", "alex",
		"--db=/tmp/test.db",
		"--llm", "google/gemini-2.5-flash",
		"--no-llm",
	})
	if err != nil {
		t.Fatalf("parseCommon: %v", err)
	}
	if opts.user != "alex" {
		t.Errorf("user = %q", opts.user)
	}
	if opts.db != "/tmp/test.db" {
		t.Errorf("db = %q", opts.db)
	}
	if opts.llmFlag != "google/gemini-2.5-flash" {
		t.Errorf("llm = %q", opts.llmFlag)
	}
	if !opts.noLLM {
		t.Error("noLLM not set")
	}
	if len(rest) != 3 || rest[0] != "slept" || rest[2] != "hours" {
		t.Errorf("rest = %v", rest)
	}
}

func TestParseCommonEqualsForms(t *testing.T) {
	opts, rest, err := parseCommon([]string{"--config=/tmp/c.yaml", "--user=alex"})
	if err != nil {
		t.Fatalf("parseCommon: %v", err)
	}
	if opts.configPath != "/tmp/c.yaml" || opts.user != "alex" {
		t.Errorf("opts = %+v", opts)
	}
	if len(rest) != 0 {
		t.Errorf("rest = %v", rest)
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"25", 25, false},
		{"1", 1, false},
		{"abc", 0, true},
		{"", 0, true},
		{"0", 0, true},
		{"-5", 0, true},
		{"12x", 0, true},
	}
	for _, tt := range tests {
		got, err := parseLimit(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseLimit(%q): expected error, got %d", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseLimit(%q): %v", tt.input, err)
		} else if got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}
