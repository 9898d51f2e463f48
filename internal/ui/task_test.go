package ui

import (
	"os"
	"testing"

	"github.com/PolarWolf314/nudge/internal/codec"
	"github.com/PolarWolf314/nudge/internal/keys"
	"github.com/PolarWolf314/nudge/internal/records"
)

func TestTaskLine(t *testing.T) {
	os.Setenv("NO_COLOR", "1")
	defer os.Unsetenv("NO_COLOR")

	tests := []struct {
		name string
		task codec.DecodedTask
		want string
	}{
		{
			name: "own shared task",
			task: codec.DecodedTask{Task: records.Task{ID: "t1", UserID: "alice"}, Text: "Buy milk"},
			want: "  Buy milk (t1)",
		},
		{
			name: "own private completed task",
			task: codec.DecodedTask{Task: records.Task{ID: "t2", UserID: "alice", IsPrivate: true, Completed: true}, Text: "Journal"},
			want: "✓ Journal (private) (t2)",
		},
		{
			name: "own task for some peers",
			task: codec.DecodedTask{
				Task: records.Task{ID: "t3", UserID: "alice", Visibility: records.VisibilityOnly, VisibilityList: []string{"bob", "carol"}},
				Text: "Plan trip",
			},
			want: "  Plan trip (only bob,carol) (t3)",
		},
		{
			name: "peer task with comments",
			task: codec.DecodedTask{
				Task:     records.Task{ID: "t4", UserID: "bob"},
				Text:     "Run 5k",
				Comments: []codec.DecodedComment{{Plaintext: "nice"}},
			},
			want: "  Run 5k 'bob' 1 comment (t4)",
		},
		{
			name: "undecryptable peer task",
			task: codec.DecodedTask{Task: records.Task{ID: "t5", UserID: "bob"}, Text: keys.Placeholder},
			want: "  ([Couldn't decrypt]) 'bob' (t5)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TaskLine(tt.task, "alice"); got != tt.want {
				t.Errorf("TaskLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCommentLineFallsBackToUserID(t *testing.T) {
	os.Setenv("NO_COLOR", "1")
	defer os.Unsetenv("NO_COLOR")

	c := codec.DecodedComment{Comment: records.Comment{UserID: "bob"}, Plaintext: "go go go"}
	if got, want := CommentLine(c), "    'bob' go go go"; got != want {
		t.Errorf("CommentLine() = %q, want %q", got, want)
	}
}
