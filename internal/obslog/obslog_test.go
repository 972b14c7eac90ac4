package obslog

import "testing"

func TestFormatIncludesPrefixAndSortedFields(t *testing.T) {
	l := New("node-1")
	got := l.format("task started", map[string]any{"b": 2, "a": 1})
	want := "[node-1] task started a=1 b=2"
	if got != want {
		t.Fatalf("format() = %q, want %q", got, want)
	}
}

func TestFormatWithoutPrefix(t *testing.T) {
	l := New("")
	got := l.format("hello", nil)
	if got != "hello" {
		t.Fatalf("format() = %q, want %q", got, "hello")
	}
}

func TestChildMonitorQualifiesMetricNames(t *testing.T) {
	l := New("n")
	m := NewMonitor(l, "workercore")
	child := m.ChildMonitor("task")
	if got := child.(*Monitor).qualify("error"); got != "workercore.task.error" {
		t.Fatalf("qualify() = %q, want %q", got, "workercore.task.error")
	}
}
