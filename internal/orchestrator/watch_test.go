package orchestrator

import (
	"testing"

	"github.com/fsnotify/fsnotify"
)

func TestRelevantOp(t *testing.T) {
	cases := []struct {
		op   fsnotify.Op
		want bool
	}{
		{fsnotify.Create, true},
		{fsnotify.Write, true},
		{fsnotify.Rename, true}, // atomic rename lands as Create/Rename
		{fsnotify.Remove, false},
		{fsnotify.Chmod, false},
	}
	for _, tc := range cases {
		if got := relevantOp(tc.op); got != tc.want {
			t.Errorf("relevantOp(%v) = %v, want %v", tc.op, got, tc.want)
		}
	}
}

func TestIgnoredPath(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"/root/sessions/.tmp-123456", true},
		{"/root/sessions/.#planner-1.session.yaml", true},
		{"/root/sessions/planner-1.session.yaml~", true},
		{"/root/sessions/.planner-1.session.yaml.swp", true},
		{"/root/sessions/planner-1.session.yaml", false},
		{"/root/tasks/approvals.task.md", false},
	}
	for _, tc := range cases {
		if got := ignoredPath(tc.path); got != tc.want {
			t.Errorf("ignoredPath(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}
