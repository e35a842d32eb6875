package models

import "time"

// DeletedPlaceholder replaces the body of a soft-deleted message.
const DeletedPlaceholder = "This message has been deleted"

// MaxBodyLength is the upper bound of a message body, in code points.
const MaxBodyLength = 1000

// Kind is the content type of a message.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindFile  Kind = "file"
)

// Valid reports whether k is a known message kind.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindImage, KindFile:
		return true
	}
	return false
}

// Sender is the author snapshot taken at send time. It is never refreshed
// from the live profile.
type Sender struct {
	ID          int64  `json:"id"`
	Role        Role   `json:"role"`
	DisplayName string `json:"display_name"`
	ExternalRef string `json:"external_ref,omitempty"`
}

// SenderFromIdentity snapshots an authenticated identity.
func SenderFromIdentity(id Identity) Sender {
	return Sender{
		ID:          id.ID,
		Role:        id.Role,
		DisplayName: id.DisplayName,
		ExternalRef: id.ExternalRef,
	}
}

// ReadMark records when a reader last marked a message as read.
type ReadMark struct {
	ReaderID int64     `db:"reader_id" json:"reader_id"`
	ReadAt   time.Time `db:"read_at" json:"read_at"`
}

// Message is a persisted class chat message.
type Message struct {
	ID             int64      `json:"id"`
	ClassID        int64      `json:"class_id"`
	Sender         Sender     `json:"sender"`
	Body           string     `json:"body"`
	Kind           Kind       `json:"kind"`
	AttachmentURL  string     `json:"attachment_url,omitempty"`
	AttachmentName string     `json:"attachment_name,omitempty"`
	Deleted        bool       `json:"deleted"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	ReadMarks      []ReadMark `json:"read_marks"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Draft is the client-supplied part of a new message.
type Draft struct {
	Body           string
	Kind           Kind
	AttachmentURL  string
	AttachmentName string
}

// MessagePage is one page of a class log, newest first.
type MessagePage struct {
	Messages []Message
	Total    int
	HasMore  bool
}

// HistoryPage is a page of history presented oldest first.
type HistoryPage struct {
	Messages []Message `json:"messages"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
	Total    int       `json:"total"`
	Pages    int       `json:"pages"`
}

// ActivityStats summarises recent chat activity in a class.
type ActivityStats struct {
	TotalMessages       int `db:"total_messages" json:"total_messages"`
	MessagesThisWeek    int `db:"messages_this_week" json:"messages_this_week"`
	ActiveUsersThisWeek int `db:"active_users_this_week" json:"active_users_this_week"`
}
