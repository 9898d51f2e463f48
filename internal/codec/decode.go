package codec

import (
	"context"

	"github.com/PolarWolf314/nudge/internal/keys"
	"github.com/PolarWolf314/nudge/internal/records"
)

// DecodedComment is a comment with its text decrypted.
type DecodedComment struct {
	records.Comment
	Plaintext string
}

// DecodedTask is a task as the viewer sees it.
type DecodedTask struct {
	Task     records.Task
	Text     string
	Notes    string
	Comments []DecodedComment

	// Hidden is set when the viewer may not read the task.
	Hidden bool
}

// Undecryptable reports whether the task text could not be decrypted.
func (d DecodedTask) Undecryptable() bool {
	return d.Text == keys.Placeholder
}

// DecodeTask decrypts a task for viewerID. Each field is decoded on its
// own, so one bad comment never blanks the task.
func (c *Codec) DecodeTask(ctx context.Context, t records.Task, viewerID string) DecodedTask {
	d := DecodedTask{Task: t}

	if t.UserID == viewerID {
		d.Text = c.keys.DecryptForSelf(t.Text)
		if t.Notes != "" {
			d.Notes = c.keys.DecryptForSelf(t.Notes)
		}
		d.Comments = c.decodeComments(ctx, t, viewerID)
		return d
	}

	if !t.CanView(viewerID) {
		d.Text = PrivatePlaceholder
		d.Hidden = true
		return d
	}

	d.Text = c.decodeShared(ctx, t.Text, t.FriendContent[viewerID], t.UserID)
	if t.Notes != "" {
		d.Notes = c.decodeShared(ctx, t.Notes, t.NotesFriendContent[viewerID], t.UserID)
	}
	d.Comments = c.decodeComments(ctx, t, viewerID)
	return d
}

// decodeShared prefers the viewer's friend content and falls back to the
// multi-key comment decryptor for records written before friend content.
func (c *Codec) decodeShared(ctx context.Context, primary, friend, ownerID string) string {
	if friend != "" {
		if s := c.keys.DecryptFromFriend(ctx, friend, ownerID); s != keys.Placeholder {
			return s
		}
	}
	return c.keys.DecryptComment(ctx, primary, ownerID, ownerID)
}

func (c *Codec) decodeComments(ctx context.Context, t records.Task, viewerID string) []DecodedComment {
	if len(t.Comments) == 0 {
		return nil
	}
	out := make([]DecodedComment, len(t.Comments))
	for i, cm := range t.Comments {
		out[i] = DecodedComment{Comment: cm}
		if fc := cm.FriendContent[viewerID]; fc != "" && viewerID != cm.UserID {
			out[i].Plaintext = c.decodeShared(ctx, cm.Text, fc, cm.UserID)
			continue
		}
		out[i].Plaintext = c.keys.DecryptComment(ctx, cm.Text, t.UserID, cm.UserID)
	}
	return out
}
