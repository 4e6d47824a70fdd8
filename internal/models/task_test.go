package models

import "testing"

func TestParsePriority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		want   Priority
		wantOK bool
	}{
		{"exact", "High", PriorityHigh, true},
		{"lower case", "medium", PriorityMedium, true},
		{"padded", "  LOW ", PriorityLow, true},
		{"unknown", "urgent", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParsePriority(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParsePriority(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestTask_AssignedTo(t *testing.T) {
	t.Parallel()

	task := &Task{ID: "t1", AssigneeIDs: []string{"p1", "p2"}}

	if !task.AssignedTo("p2") {
		t.Error("Expected task to be assigned to p2")
	}
	if task.AssignedTo("p3") {
		t.Error("Expected task not to be assigned to p3")
	}
	if task.AssignedTo("") {
		t.Error("Expected empty person id never to match")
	}
}

func TestTaskStatus_IsDone(t *testing.T) {
	t.Parallel()

	if !StatusDone.IsDone() {
		t.Error("Expected Done to be done")
	}
	for _, s := range []TaskStatus{"Not started", "In progress", ""} {
		if s.IsDone() {
			t.Errorf("Expected %q not to be done", s)
		}
	}
}
