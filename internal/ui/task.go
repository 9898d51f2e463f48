package ui

import (
	"fmt"
	"strings"

	"github.com/PolarWolf314/nudge/internal/codec"
	"github.com/PolarWolf314/nudge/internal/keys"
	"github.com/PolarWolf314/nudge/internal/records"
)

// TaskLine renders a decoded task as a single line. Tasks owned by viewerID
// show their visibility; peer tasks show their owner.
func TaskLine(t codec.DecodedTask, viewerID string) string {
	var b strings.Builder

	if t.Task.Completed {
		b.WriteString(Success.Sprint("✓"))
	} else {
		b.WriteString(" ")
	}
	b.WriteString(" ")
	b.WriteString(TaskText(t.Text))

	if t.Task.UserID == viewerID {
		if v := t.Task.EffectiveVisibility(); v != records.VisibilityEveryone {
			b.WriteString(" ")
			b.WriteString(Muted.Sprint(visibilityLabel(t.Task)))
		}
	} else {
		b.WriteString(" ")
		b.WriteString(Highlight.Sprint(t.Task.UserID))
	}

	if n := len(t.Comments); n > 0 {
		b.WriteString(" ")
		b.WriteString(Info.Sprintf("%d %s", n, plural(n, "comment", "comments")))
	}

	b.WriteString(" ")
	b.WriteString(Muted.Sprint(t.Task.ID))
	return b.String()
}

// TaskText mutes the placeholders shown in place of text the viewer cannot
// read.
func TaskText(s string) string {
	switch s {
	case keys.Placeholder, codec.PrivatePlaceholder:
		return Muted.Sprint(s)
	}
	return s
}

// CommentLine renders one comment on a task.
func CommentLine(c codec.DecodedComment) string {
	name := c.UserName
	if name == "" {
		name = c.UserID
	}
	return fmt.Sprintf("    %s %s", Highlight.Sprint(name), TaskText(c.Plaintext))
}

func visibilityLabel(t records.Task) string {
	switch v := t.EffectiveVisibility(); v {
	case records.VisibilityOnly, records.VisibilityExcept:
		return fmt.Sprintf("%s %s", v, strings.Join(t.VisibilityList, ","))
	default:
		return string(v)
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
