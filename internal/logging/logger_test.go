package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"WARN", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
	}
	for _, tc := range tests {
		got, err := ParseLevel(tc.name)
		if err != nil {
			t.Errorf("ParseLevel(%q) failed: %v", tc.name, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Expected %v for %q, got %v", tc.want, tc.name, got)
		}
	}

	if _, err := ParseLevel("verbose"); err == nil {
		t.Errorf("Expected error for unknown level")
	}
}

func TestComponentField(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(New(&buf, zerolog.InfoLevel), "analysis")

	logger.Info().Str("algorithm", "otsu").Msg("done")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected a JSON line, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "analysis" {
		t.Errorf("Expected component analysis, got %v", entry["component"])
	}
	if entry["algorithm"] != "otsu" {
		t.Errorf("Expected algorithm otsu, got %v", entry["algorithm"])
	}
	if _, ok := entry["time"]; !ok {
		t.Errorf("Expected a timestamp field")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, zerolog.WarnLevel)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Info message should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("Warn message should be written")
	}
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsole(&buf, zerolog.DebugLevel)
	logger.Debug().Msg("console line")

	if !strings.Contains(buf.String(), "console line") {
		t.Errorf("Expected console output to contain the message, got %q", buf.String())
	}
}
