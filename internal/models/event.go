package models

import "strconv"

// Principal identifies the operator a message came from.
type Principal int64

func (p Principal) String() string {
	return strconv.FormatInt(int64(p), 10)
}

type EventKind string

const (
	EventCommand    EventKind = "command"
	EventText       EventKind = "text"
	EventAttachment EventKind = "attachment"
	EventCallback   EventKind = "callback"
)

// Event is one inbound message or button press, already decoded from the transport.
type Event struct {
	ID        string    `json:"id"`
	Principal Principal `json:"principal"`
	Kind      EventKind `json:"kind"`

	// Command and Args are set for EventCommand; Command has no leading slash.
	Command string `json:"command,omitempty"`
	Args    string `json:"args,omitempty"`

	// Text is the raw message text, commands included.
	Text       string      `json:"text,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Callback   *Callback   `json:"callback,omitempty"`
}

// Attachment references a file held by the transport.
type Attachment struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	Size     int64  `json:"size"`
}

func (a *Attachment) Valid() bool {
	return a != nil && a.FileID != "" && a.FileName != ""
}

// Callback is a button press on a previously presented choice.
type Callback struct {
	ID        string `json:"id"`
	Data      string `json:"data"`
	ChatID    int64  `json:"chat_id"`
	MessageID int    `json:"message_id"`
}

// Choice is one button of a presented prompt.
type Choice struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}
