package records

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	kerrors "github.com/PolarWolf314/nudge/internal/errors"
)

// SchemaVersion is the version written with every record.
const SchemaVersion = 1

// Collection names in the document store.
const (
	TasksCollection           = "tasks"
	UserKeysCollection        = "userKeys"
	MigrationStatusCollection = "migrationStatus"
	NotificationsCollection   = "notifications"
	UsersCollection           = "users"
)

// MaxCommentLength is the longest comment text accepted.
const MaxCommentLength = 500

// Comment is a note attached to a task, authored by the owner or a peer.
type Comment struct {
	ID       string `json:"id"`
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
	Text     string `json:"text"`

	// FriendContent holds per-peer ciphertexts for comments the task owner
	// wrote on a shared task.
	FriendContent map[string]string `json:"friendContent,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Task is a record in the tasks collection.
type Task struct {
	ID string `json:"-"`

	UserID             string            `json:"userId"`
	Text               string            `json:"text"`
	Notes              string            `json:"notes,omitempty"`
	FriendContent      map[string]string `json:"friendContent,omitempty"`
	NotesFriendContent map[string]string `json:"notesFriendContent,omitempty"`

	IsPrivate      bool       `json:"isPrivate"`
	Visibility     Visibility `json:"visibility,omitempty"`
	VisibilityList []string   `json:"visibilityList,omitempty"`

	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	Order       int64      `json:"order"`
	Deleted     bool       `json:"deleted,omitempty"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`

	Comments []Comment `json:"comments,omitempty"`

	SchemaVersion int `json:"schemaVersion,omitempty"`
}

// KeyRecord is the per-user document in the userKeys collection.
type KeyRecord struct {
	UserID        string            `json:"-"`
	MasterKey     string            `json:"masterKey,omitempty"`
	FriendKeys    map[string]string `json:"friendKeys,omitempty"`
	LastUpdated   *time.Time        `json:"lastUpdated,omitempty"`
	SchemaVersion int               `json:"schemaVersion,omitempty"`
}

// MigrationStatus records the outcome of the one-shot encryption migration.
type MigrationStatus struct {
	UserID                string    `json:"-"`
	Completed             bool      `json:"completed"`
	MigratedAt            time.Time `json:"migratedAt"`
	TasksMigrated         int       `json:"tasksMigrated"`
	NotificationsMigrated int       `json:"notificationsMigrated"`
	SchemaVersion         int       `json:"schemaVersion,omitempty"`
}

// Notification is an in-app notification. Structural fields stay plaintext
// so the push pipeline can render them; TaskText and CommentText are
// excerpts encrypted with the sender/recipient shared key.
type Notification struct {
	ID           string    `json:"-"`
	UserID       string    `json:"userId"`
	Type         string    `json:"type"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	TaskID       string    `json:"taskId,omitempty"`
	TaskText     string    `json:"taskText,omitempty"`
	FromUserID   string    `json:"fromUserId,omitempty"`
	FromUserName string    `json:"fromUserName,omitempty"`
	CommentText  string    `json:"commentText,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	Read         bool      `json:"read"`

	SchemaVersion int `json:"schemaVersion,omitempty"`
}

// Notification types.
const (
	NotificationComment       = "comment"
	NotificationCompletion    = "completion"
	NotificationEncouragement = "encouragement"
)

// DecodeTask decodes a tasks document.
func DecodeTask(id string, fields map[string]any) (Task, error) {
	var t Task
	if err := decode(fields, &t); err != nil {
		return Task{}, fmt.Errorf("task %s: %w", id, err)
	}
	if err := checkVersion(&t.SchemaVersion); err != nil {
		return Task{}, fmt.Errorf("task %s: %w", id, err)
	}
	if t.UserID == "" {
		return Task{}, fmt.Errorf("task %s: %w: userId", id, kerrors.ErrMissingField)
	}
	t.ID = id
	return t, nil
}

// DecodeKeyRecord decodes a userKeys document.
func DecodeKeyRecord(userID string, fields map[string]any) (KeyRecord, error) {
	var k KeyRecord
	if err := decode(fields, &k); err != nil {
		return KeyRecord{}, fmt.Errorf("key record %s: %w", userID, err)
	}
	if err := checkVersion(&k.SchemaVersion); err != nil {
		return KeyRecord{}, fmt.Errorf("key record %s: %w", userID, err)
	}
	k.UserID = userID
	return k, nil
}

// DecodeMigrationStatus decodes a migrationStatus document.
func DecodeMigrationStatus(userID string, fields map[string]any) (MigrationStatus, error) {
	var m MigrationStatus
	if err := decode(fields, &m); err != nil {
		return MigrationStatus{}, fmt.Errorf("migration status %s: %w", userID, err)
	}
	if err := checkVersion(&m.SchemaVersion); err != nil {
		return MigrationStatus{}, fmt.Errorf("migration status %s: %w", userID, err)
	}
	m.UserID = userID
	return m, nil
}

// DecodeNotification decodes a notifications document.
func DecodeNotification(id string, fields map[string]any) (Notification, error) {
	var n Notification
	if err := decode(fields, &n); err != nil {
		return Notification{}, fmt.Errorf("notification %s: %w", id, err)
	}
	if err := checkVersion(&n.SchemaVersion); err != nil {
		return Notification{}, fmt.Errorf("notification %s: %w", id, err)
	}
	n.ID = id
	return n, nil
}

// Fields returns the task as a document field map.
func (t Task) Fields() map[string]any {
	f := map[string]any{
		"userId":        t.UserID,
		"text":          t.Text,
		"isPrivate":     t.IsPrivate,
		"visibility":    string(t.EffectiveVisibility()),
		"completed":     t.Completed,
		"createdAt":     t.CreatedAt,
		"order":         t.Order,
		"deleted":       t.Deleted,
		"schemaVersion": SchemaVersion,
	}
	if t.Notes != "" {
		f["notes"] = t.Notes
	}
	if len(t.FriendContent) > 0 {
		f["friendContent"] = StringMap(t.FriendContent)
	}
	if len(t.NotesFriendContent) > 0 {
		f["notesFriendContent"] = StringMap(t.NotesFriendContent)
	}
	if len(t.VisibilityList) > 0 {
		f["visibilityList"] = StringSlice(t.VisibilityList)
	}
	if t.CompletedAt != nil {
		f["completedAt"] = *t.CompletedAt
	}
	if t.DeletedAt != nil {
		f["deletedAt"] = *t.DeletedAt
	}
	if len(t.Comments) > 0 {
		f["comments"] = CommentsValue(t.Comments)
	}
	return f
}

// Fields returns the comment as a document field map.
func (c Comment) Fields() map[string]any {
	f := map[string]any{
		"id":        c.ID,
		"userId":    c.UserID,
		"text":      c.Text,
		"timestamp": c.Timestamp,
	}
	if c.UserName != "" {
		f["userName"] = c.UserName
	}
	if len(c.FriendContent) > 0 {
		f["friendContent"] = StringMap(c.FriendContent)
	}
	return f
}

// Fields returns the migration status as a document field map.
func (m MigrationStatus) Fields() map[string]any {
	return map[string]any{
		"completed":             m.Completed,
		"migratedAt":            m.MigratedAt,
		"tasksMigrated":         m.TasksMigrated,
		"notificationsMigrated": m.NotificationsMigrated,
		"schemaVersion":         SchemaVersion,
	}
}

// Fields returns the notification as a document field map.
func (n Notification) Fields() map[string]any {
	f := map[string]any{
		"userId":        n.UserID,
		"type":          n.Type,
		"title":         n.Title,
		"message":       n.Message,
		"createdAt":     n.CreatedAt,
		"read":          n.Read,
		"schemaVersion": SchemaVersion,
	}
	for k, v := range map[string]string{
		"taskId":       n.TaskID,
		"taskText":     n.TaskText,
		"fromUserId":   n.FromUserID,
		"fromUserName": n.FromUserName,
		"commentText":  n.CommentText,
	} {
		if v != "" {
			f[k] = v
		}
	}
	return f
}

// CommentsValue converts comments to the generic form stored in documents.
func CommentsValue(comments []Comment) []any {
	out := make([]any, len(comments))
	for i, c := range comments {
		out[i] = c.Fields()
	}
	return out
}

// StringMap converts a string map to the generic document form.
func StringMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// StringSlice converts a string slice to the generic document form.
func StringSlice(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

// FieldPath joins document field path segments, e.g. "friendContent.bob".
func FieldPath(parts ...string) string {
	return strings.Join(parts, ".")
}

func decode(fields map[string]any, v any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encoding fields: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if strings.Contains(err.Error(), "unknown field") {
			return fmt.Errorf("%w: %v", kerrors.ErrUnknownField, err)
		}
		return fmt.Errorf("decoding fields: %w", err)
	}
	return nil
}

func checkVersion(v *int) error {
	if *v == 0 {
		*v = SchemaVersion
	}
	if *v > SchemaVersion {
		return fmt.Errorf("%w: %d", kerrors.ErrUnsupportedVersion, *v)
	}
	return nil
}
