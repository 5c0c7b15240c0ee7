package domain

import "time"

type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageFile     MessageType = "file"
	MessageLocation MessageType = "location"
	MessageSystem   MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageLocation, MessageSystem:
		return true
	}
	return false
}

// MaxMessageLength bounds Message.Content in runes.
const MaxMessageLength = 2000

type Message struct {
	ID         string
	SenderID   string
	ReceiverID string
	Content    string
	Type       MessageType
	ServiceID  string
	Timestamp  time.Time
	IsRead     bool
	ReadAt     *time.Time
}
