package mongodb

import (
	"time"

	"github.com/boilergroups/groups-server/internal/domain"
)

// groupDoc is the study group document. Reactions are stored as raw tag strings.
type groupDoc struct {
	ID                          string       `bson:"_id"`
	Name                        string       `bson:"name"`
	Members                     []string     `bson:"members"`
	Messages                    []messageDoc `bson:"messages"`
	MembersWithUnopenedMessages []string     `bson:"membersWithUnopenedMessages"`
	MembersTaggedOrReplied      []string     `bson:"membersTaggedOrReplied"`
	NewMessage                  bool         `bson:"newMessage"`
	IsDM                        bool         `bson:"isDM"`
	Edbot                       edbotDoc     `bson:"edbot"`
	Version                     int64        `bson:"version"`
	CreatedAt                   time.Time    `bson:"createdAt"`
	UpdatedAt                   time.Time    `bson:"updatedAt"`
}

type messageDoc struct {
	ID            string    `bson:"_id"`
	Sender        string    `bson:"sender"`
	Text          string    `bson:"text"`
	Reactions     []string  `bson:"reactions"`
	Timestamp     time.Time `bson:"timestamp"`
	ReplyToID     string    `bson:"replyToId,omitempty"`
	ReplyToSender string    `bson:"replyToSender,omitempty"`
	ReplyToText   string    `bson:"replyToText,omitempty"`
}

type edbotDoc struct {
	Enabled       bool   `bson:"enabled"`
	Name          string `bson:"name,omitempty"`
	SummaryWindow int    `bson:"summaryWindow,omitempty"`
}

type userDoc struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	EmailLower   string    `bson:"email_lower"`
	Username     string    `bson:"username"`
	UsernameKey  string    `bson:"username_key"`
	PasswordHash string    `bson:"password_hash,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func toGroupDoc(g *domain.Group) groupDoc {
	d := groupDoc{
		ID:                          g.ID,
		Name:                        g.Name,
		Members:                     g.Members,
		Messages:                    make([]messageDoc, len(g.Messages)),
		MembersWithUnopenedMessages: g.MembersWithUnopenedMessages,
		MembersTaggedOrReplied:      g.MembersTaggedOrReplied,
		NewMessage:                  g.NewMessage,
		IsDM:                        g.IsDM,
		Edbot:                       edbotDoc(g.Edbot),
		Version:                     g.Version,
		CreatedAt:                   g.CreatedAt,
		UpdatedAt:                   g.UpdatedAt,
	}
	for i, m := range g.Messages {
		d.Messages[i] = messageDoc{
			ID:            m.ID,
			Sender:        m.Sender,
			Text:          m.Text,
			Reactions:     m.Reactions.Tags(),
			Timestamp:     m.Timestamp,
			ReplyToID:     m.ReplyToID,
			ReplyToSender: m.ReplyToSender,
			ReplyToText:   m.ReplyToText,
		}
	}
	return d
}

func (d groupDoc) toDomain() *domain.Group {
	g := &domain.Group{
		ID:                          d.ID,
		Name:                        d.Name,
		Members:                     d.Members,
		Messages:                    make([]domain.Message, len(d.Messages)),
		MembersWithUnopenedMessages: d.MembersWithUnopenedMessages,
		MembersTaggedOrReplied:      d.MembersTaggedOrReplied,
		NewMessage:                  d.NewMessage,
		IsDM:                        d.IsDM,
		Edbot:                       domain.EdbotSettings(d.Edbot),
		Version:                     d.Version,
		CreatedAt:                   d.CreatedAt,
		UpdatedAt:                   d.UpdatedAt,
	}
	for i, m := range d.Messages {
		rs := make(domain.Reactions, len(m.Reactions))
		for j, tag := range m.Reactions {
			rs[j] = domain.ParseReaction(tag)
		}
		g.Messages[i] = domain.Message{
			ID:            m.ID,
			Sender:        m.Sender,
			Text:          m.Text,
			Reactions:     rs,
			Timestamp:     m.Timestamp,
			ReplyToID:     m.ReplyToID,
			ReplyToSender: m.ReplyToSender,
			ReplyToText:   m.ReplyToText,
		}
	}
	g.Normalize()
	return g
}

func (d userDoc) toDomain() *domain.User {
	return &domain.User{
		ID:           d.ID,
		Email:        d.Email,
		Username:     d.Username,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}
