package models

import "encoding/json"

// Live channel event names.
const (
	EventJoinClassChat  = "join-class-chat"
	EventLeaveClassChat = "leave-class-chat"
	EventSendMessage    = "send-message"
	EventMarkAsRead     = "mark-as-read"
	EventEditMessage    = "edit-message"
	EventDeleteMessage  = "delete-message"

	EventJoinedClassChat = "joined-class-chat"
	EventLeftClassChat   = "left-class-chat"
	EventNewMessage      = "new-message"
	EventMessageUpdated  = "message-updated"
	EventMessageDeleted  = "message-deleted"
	EventMessageRead     = "message-read"
	EventError           = "error"
)

// Envelope frames every live channel event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ClassRef is the payload of join/leave events.
type ClassRef struct {
	ClassID int64 `json:"class_id" validate:"required,gt=0"`
}

// SendMessageRequest is the payload of send-message.
type SendMessageRequest struct {
	ClassID        int64  `json:"class_id" validate:"required,gt=0"`
	Message        string `json:"message"`
	Kind           Kind   `json:"kind" validate:"omitempty,oneof=text image file"`
	AttachmentURL  string `json:"attachment_url" validate:"omitempty,url"`
	AttachmentName string `json:"attachment_name"`
}

// MessageRef is the payload of mark-as-read and delete-message.
type MessageRef struct {
	MessageID int64 `json:"message_id" validate:"required,gt=0"`
}

// EditMessageRequest is the payload of edit-message.
type EditMessageRequest struct {
	MessageID int64  `json:"message_id" validate:"required,gt=0"`
	Message   string `json:"message"`
}

// ErrorEvent reports a failed client request to that client only.
type ErrorEvent struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ReadEvent acknowledges a read mark to the reader.
type ReadEvent struct {
	MessageID int64 `json:"message_id"`
	ClassID   int64 `json:"class_id"`
}
