package domain

import (
	"fmt"
	"time"
)

// StatusSender is the sender recorded on system-authored membership messages.
const StatusSender = "_status_"

// StatusEvent is the membership change a status message records.
type StatusEvent string

const (
	// StatusJoined is recorded when a member is added.
	StatusJoined StatusEvent = "joined"
	// StatusLeft is recorded when a member is removed.
	StatusLeft StatusEvent = "left"
)

// Message is one entry in a group's thread. Sender is the author's username at
// send time and is never updated afterwards.
type Message struct {
	Timestamp     time.Time `json:"timestamp"`
	ID            string    `json:"id"`
	Sender        string    `json:"sender"`
	Text          string    `json:"text"`
	Reactions     Reactions `json:"reactions"`
	ReplyToID     string    `json:"replyToId,omitempty"`
	ReplyToSender string    `json:"replyToSender,omitempty"`
	ReplyToText   string    `json:"replyToText,omitempty"`
}

// ReplySnapshot is the copy of a replied-to message carried on a reply. It is stored
// as given and is not checked against the thread.
type ReplySnapshot struct {
	ID     string
	Sender string
	Text   string
}

// IsZero reports whether no reply was supplied.
func (r ReplySnapshot) IsZero() bool {
	return r.ID == "" && r.Sender == "" && r.Text == ""
}

// SetReply copies r onto m.
func (m *Message) SetReply(r ReplySnapshot) {
	m.ReplyToID = r.ID
	m.ReplyToSender = r.Sender
	m.ReplyToText = r.Text
}

// Reply returns the reply snapshot, or false when m is not a reply.
func (m *Message) Reply() (ReplySnapshot, bool) {
	r := ReplySnapshot{ID: m.ReplyToID, Sender: m.ReplyToSender, Text: m.ReplyToText}
	return r, !r.IsZero()
}

// IsStatus reports whether m is a system membership message.
func (m *Message) IsStatus() bool {
	return m.Sender == StatusSender
}

// NewStatusMessage builds the synthetic message recorded when email joins or leaves.
func NewStatusMessage(id, email string, event StatusEvent, at time.Time) Message {
	return Message{
		Timestamp: at,
		ID:        id,
		Sender:    StatusSender,
		Text:      fmt.Sprintf("%s has %s the group", email, event),
		Reactions: Reactions{},
	}
}
