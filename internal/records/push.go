package records

import (
	"encoding/json"
	"fmt"
)

// PushPayload is the data block delivered with a push notification.
type PushPayload struct {
	NotificationID string `json:"notificationId,omitempty"`
	Type           string `json:"type"`
	TaskID         string `json:"taskId,omitempty"`
	FromUserID     string `json:"fromUserId,omitempty"`
	FromUserName   string `json:"fromUserName,omitempty"`
	TaskText       string `json:"taskText,omitempty"`
	CommentText    string `json:"commentText,omitempty"`
	Title          string `json:"title,omitempty"`
	Message        string `json:"message,omitempty"`
}

// PushPayloadFor builds the push data for a notification record.
func PushPayloadFor(n Notification) PushPayload {
	return PushPayload{
		NotificationID: n.ID,
		Type:           n.Type,
		TaskID:         n.TaskID,
		FromUserID:     n.FromUserID,
		FromUserName:   n.FromUserName,
		TaskText:       n.TaskText,
		CommentText:    n.CommentText,
		Title:          n.Title,
		Message:        n.Message,
	}
}

// ParsePushPayload decodes a push payload. Keys it does not know are ignored,
// since the push service adds its own.
func ParsePushPayload(data []byte) (PushPayload, error) {
	var p PushPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return PushPayload{}, fmt.Errorf("parsing push payload: %w", err)
	}
	return p, nil
}
