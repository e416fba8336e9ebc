package cli

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestProgress(buf *bytes.Buffer) *SimpleProgress {
	p := NewProgressReporter(buf).(*SimpleProgress)
	start := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	p.now = func() time.Time {
		calls++
		return start.Add(time.Duration(calls) * 100 * time.Millisecond)
	}
	return p
}

func TestSimpleProgressBasic(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := newTestProgress(buf)

	progress.Start(4)
	progress.Increment(true)
	progress.Increment(false)
	progress.Increment(true)
	progress.Increment(true)
	progress.Finish()

	output := buf.String()
	if !strings.Contains(output, "Progress:") {
		t.Error("expected progress output to contain 'Progress:'")
	}
	if !strings.Contains(output, "100.0% (4/4, 1 failed)") {
		t.Errorf("final line missing counts: %q", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Error("Finish() should end the line")
	}
}

func TestSimpleProgressZeroTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := newTestProgress(buf)

	progress.Start(0)
	progress.Increment(true)
	progress.Finish()

	if got := buf.String(); got != "\n" {
		t.Errorf("output = %q, want only the final newline", got)
	}
}

func TestSimpleProgressError(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := newTestProgress(buf)

	progress.Start(100)
	progress.Error(errors.New("test error"))

	output := buf.String()
	if !strings.Contains(output, "Error:") || !strings.Contains(output, "test error") {
		t.Errorf("error output = %q", output)
	}
}

func TestSimpleProgressConcurrent(t *testing.T) {
	progress := NewProgressReporter(&bytes.Buffer{}).(*SimpleProgress)
	progress.Start(1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				progress.Increment(j%10 != 0)
			}
		}()
	}
	wg.Wait()
	progress.Finish()

	done, failed := progress.Counts()
	if done != 1000 || failed != 100 {
		t.Errorf("Counts() = %d, %d; want 1000, 100", done, failed)
	}
}

func TestNewProgressReporterNilWriter(t *testing.T) {
	progress := NewProgressReporter(nil)
	if progress == nil {
		t.Fatal("NewProgressReporter(nil) should not return nil")
	}
}
