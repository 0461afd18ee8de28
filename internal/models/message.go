package models

import "time"

// Message is immutable after creation except for its read receipts,
// which only grow.
type Message struct {
	ID             int64         `db:"id" json:"id"`
	ConversationID string        `db:"conversation_id" json:"conversation_id"`
	SenderIdentity string        `db:"sender_identity" json:"sender_identity"`
	SenderRole     string        `db:"sender_role" json:"sender_role"`
	Content        string        `db:"content" json:"content"`
	Attachments    []Attachment  `json:"attachments,omitempty"`
	ReadBy         []ReadReceipt `json:"read_by,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
}

// Attachment describes a file stored by the attachment storage
// collaborator; only the metadata lives here.
type Attachment struct {
	MessageID  int64     `db:"message_id" json:"-"`
	Position   int       `db:"position" json:"-"`
	Filename   string    `db:"filename" json:"filename"`
	FileType   string    `db:"file_type" json:"file_type"`
	FileSize   int64     `db:"file_size" json:"file_size"`
	StorageRef string    `db:"storage_ref" json:"storage_ref"`
	UploadedAt time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// ReadReceipt records that an identity has read a message. At most one
// receipt exists per identity per message; a later read never overwrites
// an earlier one.
type ReadReceipt struct {
	MessageID int64     `db:"message_id" json:"-"`
	Identity  string    `db:"identity" json:"identity"`
	ReadAt    time.Time `db:"read_at" json:"read_at"`
}
