package utils

import (
	"os/user"
	"strings"
)

// DefaultDisplayName guesses a display name from the account running
// nudge: the first field of the full name when the system has one, else
// the login name. It returns "" when the account cannot be looked up.
func DefaultDisplayName() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}
	full, _, _ := strings.Cut(u.Name, ",")
	if full = strings.TrimSpace(full); full != "" {
		return full
	}
	return u.Username
}
