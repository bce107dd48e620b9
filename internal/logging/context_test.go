package logging

import (
	"bytes"
	"context"
	"testing"
)

func TestFromCtxReturnsAttachedLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf}).WithShard("idx-7")

	ctx := WithLoggerCtx(context.Background(), l)
	if got := FromCtx(ctx); got != l {
		t.Fatal("FromCtx should return the attached logger")
	}
	FromCtx(ctx).Info("from context")

	entry := decodeEntry(t, &buf)
	if entry.Shard != "idx-7" {
		t.Errorf("shard = %q, want %q", entry.Shard, "idx-7")
	}
}

func TestFromCtxFallsBackToGlobal(t *testing.T) {
	orig := Global()
	defer SetGlobal(orig)

	var buf bytes.Buffer
	SetGlobal(New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf}))

	FromCtx(context.Background()).Info("global")
	FromCtx(WithLoggerCtx(context.Background(), nil)).Info("nil logger")

	if got := bytes.Count(buf.Bytes(), []byte("\n")); got != 2 {
		t.Errorf("expected both entries on the global logger, got %q", buf.String())
	}
}
