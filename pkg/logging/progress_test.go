package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestProgressTracker(t *testing.T) {
	var buf bytes.Buffer
	pt := NewProgressTracker("fetch", 4, zerolog.New(&buf))

	pt.RecordCompletion(10 * time.Millisecond)
	pt.RecordCompletion(30 * time.Millisecond)
	pt.RecordFailure(20 * time.Millisecond)

	completed, failed, total := pt.Progress()
	if completed != 2 || failed != 1 || total != 4 {
		t.Errorf("Progress = (%d, %d, %d), want (2, 1, 4)", completed, failed, total)
	}
	if pt.ProgressPct() != 75 {
		t.Errorf("ProgressPct = %v, want 75", pt.ProgressPct())
	}
	if pt.Slowest() != 30*time.Millisecond {
		t.Errorf("Slowest = %v, want 30ms", pt.Slowest())
	}

	pt.LogSummary("fetch finished")
	out := buf.String()
	if !strings.Contains(out, `"failed":1`) || !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("summary missing failure details: %s", out)
	}
}

func TestProgressTrackerEmpty(t *testing.T) {
	pt := NewProgressTracker("fetch", 0, zerolog.Nop())
	if pt.ProgressPct() != 100 {
		t.Errorf("ProgressPct = %v, want 100", pt.ProgressPct())
	}
}
