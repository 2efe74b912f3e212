package models

import "time"

// SessionRecord is the remote, per-user document naming the one session that
// is currently allowed to be active. Writing a new record replaces the old one.
type SessionRecord struct {
	UserID      string     `json:"user_id"`
	SessionID   string     `json:"session_id"`
	LastLoginAt time.Time  `json:"last_login_at"`
	DeviceInfo  DeviceInfo `json:"device_info"`
}

type DeviceInfo struct {
	Platform  string `json:"platform"`
	OSVersion string `json:"os_version"`
}

// SessionEndedEvent is surfaced to the user when a session is terminated
// because another device logged in.
type SessionEndedEvent struct {
	UserID string    `json:"user_id"`
	Title  string    `json:"title"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}
