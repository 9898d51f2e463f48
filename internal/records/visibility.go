package records

import (
	"fmt"
	"slices"
)

// Visibility controls which peers may read a task.
type Visibility string

const (
	VisibilityEveryone Visibility = "everyone"
	VisibilityOnly     Visibility = "only"
	VisibilityExcept   Visibility = "except"
	VisibilityPrivate  Visibility = "private"
)

// ParseVisibility validates a visibility name.
func ParseVisibility(s string) (Visibility, error) {
	switch v := Visibility(s); v {
	case VisibilityEveryone, VisibilityOnly, VisibilityExcept, VisibilityPrivate:
		return v, nil
	default:
		return "", fmt.Errorf("invalid visibility %q (want everyone, only, except or private)", s)
	}
}

// EffectiveVisibility resolves tasks written before visibility existed:
// isPrivate maps to private, anything else to everyone.
func (t Task) EffectiveVisibility() Visibility {
	if t.Visibility != "" {
		return t.Visibility
	}
	if t.IsPrivate {
		return VisibilityPrivate
	}
	return VisibilityEveryone
}

// CanView reports whether viewerID may read the task.
func (t Task) CanView(viewerID string) bool {
	if viewerID == t.UserID {
		return true
	}
	switch t.EffectiveVisibility() {
	case VisibilityEveryone:
		return true
	case VisibilityOnly:
		return slices.Contains(t.VisibilityList, viewerID)
	case VisibilityExcept:
		return !slices.Contains(t.VisibilityList, viewerID)
	default:
		return false
	}
}

// AllowedPeers filters peers down to those allowed to read the task.
func (t Task) AllowedPeers(peers []string) []string {
	var out []string
	for _, p := range peers {
		if p != t.UserID && t.CanView(p) {
			out = append(out, p)
		}
	}
	return out
}

// SetVisibility updates visibility and keeps isPrivate in sync.
func (t *Task) SetVisibility(v Visibility, list []string) {
	t.Visibility = v
	t.IsPrivate = v == VisibilityPrivate
	if v == VisibilityOnly || v == VisibilityExcept {
		t.VisibilityList = slices.Clone(list)
	} else {
		t.VisibilityList = nil
	}
}
