package model

import (
	"time"
)

// FileType is the kind of an attachment.
type FileType string

const (
	FileTypeImage    FileType = "image"
	FileTypeVoice    FileType = "voice"
	FileTypeAudio    FileType = "audio"
	FileTypeVideo    FileType = "video"
	FileTypeDocument FileType = "document"
)

// IsAudio reports whether the attachment should be rendered as a voice note.
func (f FileType) IsAudio() bool {
	return f == FileTypeVoice || f == FileTypeAudio
}

// Attachment is a file attached to a message.
type Attachment struct {
	ID           int64    `json:"id"`
	FileType     FileType `json:"file_type"`
	FileURL      string   `json:"file_url"`
	FileName     string   `json:"file_name,omitempty"`
	FileSize     int64    `json:"file_size,omitempty"`
	ThumbnailURL string   `json:"thumbnail_url,omitempty"`
}

// SharedPost is a reference to a post shared into a conversation.
type SharedPost struct {
	ID       int64  `json:"id"`
	Content  string `json:"content,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Author   string `json:"author,omitempty"`
}

// Message represents a conversation message.
type Message struct {
	// Identity
	ID       int64 `json:"id"`
	ThreadID int64 `json:"thread,omitempty"`

	// Content
	Sender      Participant  `json:"sender"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	SharedPost  *SharedPost  `json:"shared_post,omitempty"`

	// State
	Read     bool       `json:"read"`
	IsEdited bool       `json:"is_edited,omitempty"`
	EditedAt *time.Time `json:"edited_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// HasBody reports whether the message carries text, an attachment or a
// shared post.
func (m Message) HasBody() bool {
	return m.Content != "" || len(m.Attachments) > 0 || m.SharedPost != nil
}

// Before reports whether m sorts before o in a message log.
func (m Message) Before(o Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.ID < o.ID
}

// SendMessageRequest is the request to send a new message.
type SendMessageRequest struct {
	ThreadID int64  `json:"thread"`
	Content  string `json:"content"`
}

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
}
