package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newBufferLogger(level Level, format Format) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{Level: level, Format: format, Output: &buf}), &buf
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) Entry {
	t.Helper()
	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log output %q: %v", buf.String(), err)
	}
	return entry
}

func TestLookupLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		known    bool
	}{
		{"debug", LevelDebug, true},
		{"info", LevelInfo, true},
		{"warn", LevelWarn, true},
		{"error", LevelError, true},
		{"verbose", LevelInfo, false},
		{"", LevelInfo, false},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, known := LookupLevel(tc.input)
			if got != tc.expected {
				t.Errorf("LookupLevel(%q) = %v, want %v", tc.input, got, tc.expected)
			}
			if known != tc.known {
				t.Errorf("LookupLevel(%q) known = %v, want %v", tc.input, known, tc.known)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{Level(99), "unknown"},
	}

	for _, tc := range tests {
		if got := tc.level.String(); got != tc.expected {
			t.Errorf("Level(%d).String() = %v, want %v", tc.level, got, tc.expected)
		}
	}
}

func TestLookupFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected Format
		known    bool
	}{
		{"json", FormatJSON, true},
		{"text", FormatText, true},
		{"logfmt", FormatJSON, false},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, known := LookupFormat(tc.input)
			if got != tc.expected {
				t.Errorf("LookupFormat(%q) = %v, want %v", tc.input, got, tc.expected)
			}
			if known != tc.known {
				t.Errorf("LookupFormat(%q) known = %v, want %v", tc.input, known, tc.known)
			}
		})
	}
}

func TestLoggerJSONOutput(t *testing.T) {
	l, buf := newBufferLogger(LevelInfo, FormatJSON)

	l.Info("floor advanced")

	entry := decodeEntry(t, buf)
	if entry.Message != "floor advanced" {
		t.Errorf("message = %q, want %q", entry.Message, "floor advanced")
	}
	if entry.Level != "info" {
		t.Errorf("level = %q, want %q", entry.Level, "info")
	}
	if entry.Timestamp.IsZero() {
		t.Error("timestamp should not be zero")
	}
	if entry.Shard != "" || entry.Component != "" {
		t.Errorf("unexpected tags shard=%q component=%q", entry.Shard, entry.Component)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(LevelWarn, FormatJSON)

	l.Debugf("debug msg", nil)
	l.Info("info msg")
	if buf.Len() > 0 {
		t.Error("debug/info should be filtered at warn level")
	}
	if l.Enabled(LevelInfo) {
		t.Error("Enabled(info) should be false at warn level")
	}

	l.Warnf("warn msg", nil)
	if buf.Len() == 0 {
		t.Error("warn should be logged at warn level")
	}
}

func TestLoggerWithShardAndComponent(t *testing.T) {
	l, buf := newBufferLogger(LevelInfo, FormatJSON)

	l.WithShard("idx-0").WithComponent("translog").Info("tagged")

	entry := decodeEntry(t, buf)
	if entry.Shard != "idx-0" {
		t.Errorf("shard = %q, want %q", entry.Shard, "idx-0")
	}
	if entry.Component != "translog" {
		t.Errorf("component = %q, want %q", entry.Component, "translog")
	}
}

func TestLoggerFieldsOnlyWhenGiven(t *testing.T) {
	l, buf := newBufferLogger(LevelInfo, FormatJSON)

	l.Infof("with fields", map[string]any{"generation": 3})
	entry := decodeEntry(t, buf)
	if entry.Fields["generation"] != float64(3) {
		t.Errorf("fields[generation] = %v, want 3", entry.Fields["generation"])
	}

	buf.Reset()
	l.Infof("without fields", nil)
	if strings.Contains(buf.String(), `"fields"`) {
		t.Errorf("empty fields should be omitted, got %q", buf.String())
	}
}

func TestLoggerDerivedDoesNotMutateOriginal(t *testing.T) {
	l, buf := newBufferLogger(LevelInfo, FormatJSON)

	_ = l.WithShard("idx-1").WithComponent("translog")
	l.Info("original logger")

	entry := decodeEntry(t, buf)
	if entry.Shard != "" || entry.Component != "" {
		t.Errorf("original logger should stay untagged, got shard=%q component=%q", entry.Shard, entry.Component)
	}
}

func TestLoggerCallerInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelDebug, Format: FormatJSON, Output: &buf})

	l.Debugf("without caller", nil)
	entry := decodeEntry(t, &buf)
	if entry.File != "" || entry.Line != 0 {
		t.Errorf("caller should be empty by default, got %s:%d", entry.File, entry.Line)
	}

	buf.Reset()
	l = New(Config{Level: LevelDebug, Format: FormatJSON, Output: &buf, AddCaller: true})
	l.WithShard("idx-0").Debugf("with caller", nil)
	entry = decodeEntry(t, &buf)
	if !strings.HasSuffix(entry.File, "logger_test.go") {
		t.Errorf("file = %q, expected to end with logger_test.go", entry.File)
	}
	if entry.Line == 0 {
		t.Error("expected non-zero line")
	}
}

func TestLoggerTextFormat(t *testing.T) {
	l, buf := newBufferLogger(LevelInfo, FormatText)

	l.WithShard("idx-0").WithComponent("softdeletes").Infof("plan", map[string]any{
		"zeta":  "last",
		"alpha": int64(42),
		"err":   errors.New("boom"),
	})

	output := buf.String()
	for _, want := range []string{"[info] plan", "shard=idx-0", "component=softdeletes", `err="boom"`} {
		if !strings.Contains(output, want) {
			t.Errorf("text output should contain %q, got %q", want, output)
		}
	}
	if strings.Index(output, "alpha=42") > strings.Index(output, "zeta=last") {
		t.Errorf("fields should be sorted by key, got %q", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Error("text output should end with a newline")
	}
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name string
		log  func(*Logger)
		want string
	}{
		{"debugf", func(l *Logger) { l.Debugf("m", map[string]any{"k": "v"}) }, "debug"},
		{"warnf", func(l *Logger) { l.Warnf("m", nil) }, "warn"},
		{"info", func(l *Logger) { l.Info("m") }, "info"},
		{"errorf", func(l *Logger) { l.Errorf("m", map[string]any{"gen": 3}) }, "error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l, buf := newBufferLogger(LevelDebug, FormatJSON)
			tc.log(l)
			if entry := decodeEntry(t, buf); entry.Level != tc.want {
				t.Errorf("level = %q, want %q", entry.Level, tc.want)
			}
		})
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	if l.Enabled(LevelError) {
		t.Error("Discard logger should not be enabled at any level")
	}
	l.Errorf("dropped", nil)
}

func TestDefaultLogger(t *testing.T) {
	l := DefaultLogger()
	if l.GetLevel() != LevelInfo {
		t.Errorf("default level = %v, want info", l.GetLevel())
	}
}
