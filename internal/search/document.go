package search

import (
	"time"

	"github.com/boilergroups/groups-server/internal/domain"
)

// MessageDocument is one message as stored in the index.
type MessageDocument struct {
	Timestamp time.Time
	GroupID   string
	MessageID string
	Sender    string
	Text      string
}

// DocumentID returns the index key for a message in a group.
func DocumentID(groupID, messageID string) string {
	return groupID + "/" + messageID
}

// NewMessageDocument builds the index document for m in groupID.
func NewMessageDocument(groupID string, m *domain.Message) *MessageDocument {
	return &MessageDocument{
		Timestamp: m.Timestamp,
		GroupID:   groupID,
		MessageID: m.ID,
		Sender:    m.Sender,
		Text:      m.Text,
	}
}

// ID returns the document key.
func (d *MessageDocument) ID() string {
	return DocumentID(d.GroupID, d.MessageID)
}

// ToMap converts the document to the field names used by the mapping.
func (d *MessageDocument) ToMap() map[string]any {
	return map[string]any{
		"group_id":   d.GroupID,
		"message_id": d.MessageID,
		"sender":     d.Sender,
		"text":       d.Text,
		"timestamp":  d.Timestamp.UTC(),
	}
}
