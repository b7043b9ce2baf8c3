package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestConnLogger_Prefix(t *testing.T) {
	var buf bytes.Buffer
	base := NewPlaneLoggerTo(&buf, LevelDebug, true)

	conn := NewConnLogger(base, 7)
	conn.Info("select %d rows", 3)

	if !strings.Contains(buf.String(), "conn # 007: select 3 rows") {
		t.Errorf("unexpected output %q", buf.String())
	}
	if got := conn.GetLastMessage(); got == nil || got.Message != "conn # 007: select 3 rows" {
		t.Errorf("unexpected last message %+v", got)
	}
}

func TestConnLogger_PoolPrefix(t *testing.T) {
	var buf bytes.Buffer
	base := NewPlaneLoggerTo(&buf, LevelDebug, false)

	NewConnLogger(base, PoolID).Warn("exhausted")

	if !strings.Contains(buf.String(), "pool: exhausted") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestConnLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	conn := NewConnLogger(NewPlaneLoggerTo(&buf, LevelWarn, false), 1)

	conn.Debug("hidden")
	conn.Trace("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}

	conn.Error("shown")
	if !strings.Contains(buf.String(), "conn # 001: shown") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestConnLogger_Clone(t *testing.T) {
	var buf bytes.Buffer
	conn := NewConnLogger(NewPlaneLoggerTo(&buf, LevelInfo, false), 12)

	clone := conn.Clone()
	clone.SetLevel(LevelError)
	if conn.GetLevel() != LevelInfo {
		t.Error("Original logger level changed after modifying clone")
	}
	clone.Error("boom")
	if !strings.Contains(buf.String(), "conn # 012: boom") {
		t.Errorf("clone lost the connection id: %q", buf.String())
	}
	if id := clone.(*ConnLogger).ConnID(); id != 12 {
		t.Errorf("ConnID() = %d", id)
	}
}
