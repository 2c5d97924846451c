// Package v1 is the wire contract of the notifications WebSocket feed.
//
// The server pushes one JSON object per text frame. Every object carries an
// "event" field naming what happened; the remaining fields are event specific.
// Clients keep the connection alive with a ping frame.
package v1

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// Path is the notifications endpoint relative to the API origin.
	Path = "/ws/notifications"

	// TokenParam carries the access token in the connection URL.
	TokenParam = "token"

	// DefaultEvent labels messages without a usable "event" field.
	DefaultEvent = "notification"

	EventTeamInvitation        = "team_invitation"
	EventTeamMembershipUpdated = "team_membership_updated"
	EventProfileUpdated        = "profile_updated"
	EventEmailVerified         = "email_verified"

	// PingType is the "type" of the JSON keepalive frame.
	PingType = "ping"
	// PingText is the raw-text keepalive frame.
	PingText = "ping"
)

var (
	// ErrNotObject is returned when a frame is valid JSON but not an object.
	ErrNotObject = errors.New("notification payload is not a JSON object")
)

// Ping is the JSON keepalive frame: {"type":"ping"}.
type Ping struct {
	Type string `json:"type"`
}

// Message is one decoded server push.
type Message map[string]any

// Decode parses a text frame into a Message.
func Decode(data []byte) (Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		var probe any
		if err := json.Unmarshal(data, &probe); err != nil {
			return nil, fmt.Errorf("decode notification: %w", err)
		}
		return nil, ErrNotObject
	}

	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	if m == nil {
		return nil, ErrNotObject
	}
	return m, nil
}

// EventName returns the "event" field, or DefaultEvent when it is missing,
// empty or not a string.
func (m Message) EventName() string {
	if s, ok := m["event"].(string); ok && s != "" {
		return s
	}
	return DefaultEvent
}

// As re-decodes the message into a typed payload.
func (m Message) As(dst any) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// TeamInvitationPayload is sent to a user who was added to a team.
type TeamInvitationPayload struct {
	Event    string `json:"event"`
	TeamID   int64  `json:"team_id"`
	TeamName string `json:"team_name"`
	Role     string `json:"role"`
}

// TeamMembershipUpdatedPayload is sent when a member's role or status changes.
type TeamMembershipUpdatedPayload struct {
	Event    string `json:"event"`
	TeamID   int64  `json:"team_id"`
	TeamName string `json:"team_name"`
	Role     string `json:"role"`
	Status   string `json:"status"`
}

// ProfileUpdatedPayload is sent to a user after their profile changed.
type ProfileUpdatedPayload struct {
	Event     string `json:"event"`
	UserID    int64  `json:"user_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// EmailVerifiedPayload is sent to a user once their address is verified.
type EmailVerifiedPayload struct {
	Event  string `json:"event"`
	UserID int64  `json:"user_id"`
}
