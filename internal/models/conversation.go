package models

import "time"

// Roles a participant can hold in a conversation.
const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"
)

// ValidRole reports whether the role is one the platform knows about.
func ValidRole(role string) bool {
	return role == RolePatient || role == RoleDoctor || role == RoleAdmin
}

// Participant is an identity with its role inside a conversation.
type Participant struct {
	Identity string `db:"identity" json:"identity"`
	Role     string `db:"role" json:"role"`
}

// Conversation is a fixed-participant message thread. The last-message
// columns are a denormalized snapshot for list views, not authoritative.
type Conversation struct {
	ID                 string        `db:"id" json:"id"`
	Title              string        `db:"title" json:"title,omitempty"`
	Participants       []Participant `json:"participants"`
	LastMessageContent string        `db:"last_message_content" json:"last_message_content,omitempty"`
	LastMessageSender  string        `db:"last_message_sender" json:"last_message_sender,omitempty"`
	LastMessageAt      *time.Time    `db:"last_message_at" json:"last_message_at,omitempty"`
	Archived           bool          `db:"archived" json:"archived"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}

// HasParticipant reports whether identity is part of the conversation.
func (c Conversation) HasParticipant(identity string) bool {
	for _, p := range c.Participants {
		if p.Identity == identity {
			return true
		}
	}
	return false
}

// ConversationSummary is the per-user list view of a conversation,
// including the unread count computed for the requesting identity.
type ConversationSummary struct {
	ID                 string     `db:"id" json:"id"`
	Title              string     `db:"title" json:"title,omitempty"`
	LastMessageContent string     `db:"last_message_content" json:"last_message_content,omitempty"`
	LastMessageSender  string     `db:"last_message_sender" json:"last_message_sender,omitempty"`
	LastMessageAt      *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
	UnreadCount        int        `db:"unread_count" json:"unread_count"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}
