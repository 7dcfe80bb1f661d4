package domain

import "time"

// NotificationKind identifies the message a Notifier should deliver.
type NotificationKind string

const (
	NotifyInvite        NotificationKind = "invite"
	NotifyPasswordReset NotificationKind = "password_reset"
)

// Notification is handed to a Notifier after the state change it describes
// has been committed.
type Notification struct {
	Kind       NotificationKind `json:"kind"`
	IdentityID string           `json:"identity_id"`
	Email      string           `json:"email"`
	Name       string           `json:"name,omitempty"`
	Link       string           `json:"link,omitempty"`
	ExpiresAt  time.Time        `json:"expires_at,omitempty"`
	Outcome    string           `json:"outcome,omitempty"`
}
