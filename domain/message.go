package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	TextType  MessageType = "text"
	AudioType MessageType = "audio"
	VideoType MessageType = "video"
	ImageType MessageType = "image"
	FileType  MessageType = "file"
)

// QueuedMessage is an outgoing chat record sitting in the batcher's
// buffer until the next flush. Validation tags are enforced per record
// during the bulk insert so one malformed record never aborts a batch.
type QueuedMessage struct {
	SenderID    string      `json:"senderId" validate:"required"`
	RecipientID string      `json:"recipientId" validate:"required"`
	ChatID      string      `json:"chatId,omitempty"`
	Content     string      `json:"content,omitempty"`
	MediaURL    string      `json:"mediaUrl,omitempty"`
	Type        MessageType `json:"type" validate:"required,oneof=text audio video image file"`
	CreatedAt   time.Time   `json:"createdAt" validate:"required"`
}

// StoredMessage is the repository-side representation of a persisted
// message, the equivalent of QueuedMessage once it owns an identity.
type StoredMessage struct {
	ID          uuid.UUID   `json:"id"`
	SenderID    string      `json:"senderId"`
	RecipientID string      `json:"recipientId"`
	Content     string      `json:"content,omitempty"`
	MediaURL    string      `json:"mediaUrl,omitempty"`
	Type        MessageType `json:"type"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// UserStatus mirrors the persisted presence flag. Writes are
// best-effort and idempotent; in-memory presence is authoritative.
type UserStatus struct {
	Online     bool       `json:"online"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
}
