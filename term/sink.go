package term

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Sink is the UI event sink contract consumed by the orchestrator and
// task supervisor. It keeps both free of drawing concerns: a renderer
// can overwrite a status line in place, emit JSON lines, or do nothing
// at all, without either caller knowing the difference.
type Sink interface {
	Log(msg string)
	TaskLog(taskName, line string)
	SetStatus(status string)
	AddTask(id, name string, pid int, status string)
	UpdateTask(id, status string)
	UpdateTaskPort(taskName string, port int)
	RemoveTask(id string)
	Destroy()
}

// Task status values passed to AddTask/UpdateTask. They are separate from
// the supervisor's TaskRecord.Status values, which are not mapped onto them.
const (
	TaskRunning = "running"
	TaskStopped = "stopped"
	TaskError   = "error"
)

type taskState struct {
	id     string
	name   string
	pid    int
	status string
	port   int
}

// TermSink is the Terminal-backed Sink. It redraws a one-line task
// summary beneath ordinary log output using the same overwrite-in-place
// status line as a build run, and degrades to plain lines when the
// terminal isn't interactive. Everything is written to the Terminal's
// writer, which for term.Default is stderr, not stdout.
type TermSink struct {
	t *Terminal

	mu    sync.Mutex
	tasks map[string]*taskState
	order []string
}

// NewSink wraps a Terminal as a Sink.
func NewSink(t *Terminal) *TermSink {
	return &TermSink{t: t, tasks: make(map[string]*taskState)}
}

// Log prints a plain informational line and redraws the task summary.
func (s *TermSink) Log(msg string) {
	s.t.ClearLine()
	s.t.Println(msg)
	s.redraw()
}

// TaskLog prints a line of output from a long-lived task, prefixed with
// its short name and with terminal clear sequences already stripped by
// the caller.
func (s *TermSink) TaskLog(taskName, line string) {
	s.t.ClearLine()
	s.t.Printf("[%s] %s\n", taskName, StripAnsi(line))
	s.redraw()
}

// SetStatus overwrites the status line, or clears it when status is empty.
func (s *TermSink) SetStatus(status string) {
	if status == "" {
		s.t.ClearLine()
		return
	}
	s.t.Status("%s", status)
}

// AddTask registers a new long-lived task in the summary.
func (s *TermSink) AddTask(id, name string, pid int, status string) {
	s.mu.Lock()
	if _, ok := s.tasks[id]; !ok {
		s.order = append(s.order, id)
	}
	s.tasks[id] = &taskState{id: id, name: name, pid: pid, status: status}
	s.mu.Unlock()
	s.redraw()
}

// UpdateTask changes a tracked task's status.
func (s *TermSink) UpdateTask(id, status string) {
	s.mu.Lock()
	if task, ok := s.tasks[id]; ok {
		task.status = status
	}
	s.mu.Unlock()
	s.redraw()
}

// UpdateTaskPort records the first detected listening port for a task,
// looked up by name since the supervisor only knows the task by name.
func (s *TermSink) UpdateTaskPort(taskName string, port int) {
	s.mu.Lock()
	for _, id := range s.order {
		if task := s.tasks[id]; task.name == taskName {
			task.port = port
		}
	}
	s.mu.Unlock()
	s.redraw()
}

// RemoveTask drops a task from the summary, e.g. once it has exited.
func (s *TermSink) RemoveTask(id string) {
	s.mu.Lock()
	delete(s.tasks, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.redraw()
}

// Destroy clears the status line, releasing the terminal back to the caller.
func (s *TermSink) Destroy() {
	s.t.ClearLine()
}

// redraw rewrites the task summary status line. No-op when progress
// indicators are disabled since there's no line to overwrite.
func (s *TermSink) redraw() {
	if !s.t.ShowProgress() {
		return
	}
	s.mu.Lock()
	labels := make([]string, 0, len(s.order))
	for _, id := range s.order {
		task := s.tasks[id]
		label := task.name
		if task.port != 0 {
			label = fmt.Sprintf("%s:%d", label, task.port)
		}
		labels = append(labels, fmt.Sprintf("%s[%s]", label, task.status))
	}
	s.mu.Unlock()
	if len(labels) == 0 {
		s.t.ClearLine()
		return
	}
	sort.Strings(labels)
	s.t.Status("tasks: %s", strings.Join(labels, " "))
}
