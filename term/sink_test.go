package term

import (
	"bytes"
	"strings"
	"testing"
)

func newTestSink() (*TermSink, *bytes.Buffer) {
	var buf bytes.Buffer
	t := &Terminal{w: &buf, plain: true, progress: true}
	return NewSink(t), &buf
}

func TestSinkLogWritesLine(t *testing.T) {
	s, buf := newTestSink()
	s.Log("hello")

	if got := buf.String(); !strings.Contains(got, "hello") {
		t.Errorf("expected output to contain %q, got %q", "hello", got)
	}
}

func TestSinkTaskLogPrefixesName(t *testing.T) {
	s, buf := newTestSink()
	s.TaskLog("api", "listening on :4000")

	if got := buf.String(); !strings.Contains(got, "[api] listening on :4000") {
		t.Errorf("expected prefixed task log line, got %q", got)
	}
}

func TestSinkTaskLogStripsAnsi(t *testing.T) {
	s, buf := newTestSink()
	s.TaskLog("api", "\x1b[32mready\x1b[0m")

	if got := buf.String(); strings.Contains(got, "\x1b[") {
		t.Errorf("expected ansi codes to be stripped, got %q", got)
	}
}

func TestSinkAddUpdateRemoveTask(t *testing.T) {
	s, _ := newTestSink()

	s.AddTask("t1", "api", 123, TaskRunning)
	s.mu.Lock()
	if len(s.order) != 1 || s.tasks["t1"].status != TaskRunning {
		s.mu.Unlock()
		t.Fatal("expected task t1 to be tracked as running")
	}
	s.mu.Unlock()

	s.UpdateTask("t1", TaskError)
	s.mu.Lock()
	if s.tasks["t1"].status != TaskError {
		s.mu.Unlock()
		t.Fatal("expected task t1 status to be updated to error")
	}
	s.mu.Unlock()

	s.RemoveTask("t1")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks["t1"]; ok {
		t.Fatal("expected task t1 to be removed")
	}
	if len(s.order) != 0 {
		t.Errorf("expected order to be empty, got %v", s.order)
	}
}

func TestSinkUpdateTaskPortLooksUpByName(t *testing.T) {
	s, _ := newTestSink()
	s.AddTask("t1", "web", 456, TaskRunning)

	s.UpdateTaskPort("web", 3000)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks["t1"].port != 3000 {
		t.Errorf("expected port 3000, got %d", s.tasks["t1"].port)
	}
}

func TestSinkSetStatusEmptyClearsInPlainMode(t *testing.T) {
	// In plain mode ClearLine is a no-op since there's no line to overwrite.
	s, buf := newTestSink()
	s.SetStatus("")

	if got := buf.String(); got != "" {
		t.Errorf("expected no output in plain mode, got %q", got)
	}
}

func TestSinkSetStatusEmptyClearsAnsiSequence(t *testing.T) {
	var buf bytes.Buffer
	s := NewSink(&Terminal{w: &buf, plain: false, progress: true})
	s.SetStatus("")

	if got := buf.String(); !strings.Contains(got, "\r\033[K") {
		t.Errorf("expected a clear sequence, got %q", got)
	}
}
