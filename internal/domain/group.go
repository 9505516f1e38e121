package domain

import (
	"errors"
	"slices"
	"time"

	"github.com/boilergroups/groups-server/internal/normalize"
)

// ErrDuplicateMessageID is returned when appending a message whose id is already in
// the thread.
var ErrDuplicateMessageID = errors.New("duplicate message id")

// EdbotSettings configures the group's assistant bot. The server only stores them.
type EdbotSettings struct {
	Enabled       bool   `json:"enabled"`
	Name          string `json:"name,omitempty"`
	SummaryWindow int    `json:"summaryWindow,omitempty"`
}

// Group is a study group: its members, its message thread and the pending
// notification sets derived from them. The group owns its messages.
type Group struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	// Members holds normalized emails.
	Members  []string  `json:"members"`
	Messages []Message `json:"messages"`
	// MembersWithUnopenedMessages drives "unread" badges.
	MembersWithUnopenedMessages []string `json:"membersWithUnopenedMessages"`
	// MembersTaggedOrReplied holds members with a pending mention or reply
	// notification. Entries stay until removed explicitly.
	MembersTaggedOrReplied []string      `json:"membersTaggedOrReplied"`
	Edbot                  EdbotSettings `json:"edbot"`
	// Version increases by one on every persisted mutation.
	Version    int64 `json:"version"`
	NewMessage bool  `json:"newMessage"`
	IsDM       bool  `json:"isDM"`
}

// IsMember reports whether email belongs to a current member.
func (g *Group) IsMember(email string) bool {
	return slices.Contains(g.Members, normalize.Email(email))
}

// AddMember appends email to the member set. Returns false when already a member.
func (g *Group) AddMember(email string) bool {
	var added bool
	g.Members, added = addToSet(g.Members, normalize.Email(email))
	return added
}

// RemoveMember drops email from the member set. Returns false when it was not a member.
func (g *Group) RemoveMember(email string) bool {
	var removed bool
	g.Members, removed = removeFromSet(g.Members, normalize.Email(email))
	return removed
}

// PurgeNotifications removes email from both notification sets.
func (g *Group) PurgeNotifications(email string) {
	e := normalize.Email(email)
	g.MembersTaggedOrReplied, _ = removeFromSet(g.MembersTaggedOrReplied, e)
	g.MembersWithUnopenedMessages, _ = removeFromSet(g.MembersWithUnopenedMessages, e)
}

// FindMessage returns a pointer into the thread for id.
func (g *Group) FindMessage(id string) (*Message, bool) {
	i := g.messageIndex(id)
	if i < 0 {
		return nil, false
	}
	return &g.Messages[i], true
}

func (g *Group) messageIndex(id string) int {
	return slices.IndexFunc(g.Messages, func(m Message) bool { return m.ID == id })
}

// AppendMessage adds m to the end of the thread.
func (g *Group) AppendMessage(m Message) error {
	if g.messageIndex(m.ID) >= 0 {
		return ErrDuplicateMessageID
	}
	if m.Reactions == nil {
		m.Reactions = Reactions{}
	}
	g.Messages = append(g.Messages, m)
	return nil
}

// RemoveMessage splices the message with id out of the thread.
func (g *Group) RemoveMessage(id string) bool {
	i := g.messageIndex(id)
	if i < 0 {
		return false
	}
	g.Messages = slices.Delete(g.Messages, i, i+1)
	return true
}

// MarkTaggedOrReplied adds email to the tagged/replied set.
func (g *Group) MarkTaggedOrReplied(email string) bool {
	var added bool
	g.MembersTaggedOrReplied, added = addToSet(g.MembersTaggedOrReplied, normalize.Email(email))
	return added
}

// ClearTaggedOrReplied removes email from the tagged/replied set.
func (g *Group) ClearTaggedOrReplied(email string) bool {
	var removed bool
	g.MembersTaggedOrReplied, removed = removeFromSet(g.MembersTaggedOrReplied, normalize.Email(email))
	return removed
}

// MarkAllUnopened unions every current member into the unopened set and returns
// how many were added.
func (g *Group) MarkAllUnopened() int {
	n := 0
	for _, m := range g.Members {
		var added bool
		g.MembersWithUnopenedMessages, added = addToSet(g.MembersWithUnopenedMessages, m)
		if added {
			n++
		}
	}
	return n
}

// MarkOpened removes email from the unopened set.
func (g *Group) MarkOpened(email string) bool {
	var removed bool
	g.MembersWithUnopenedMessages, removed = removeFromSet(g.MembersWithUnopenedMessages, normalize.Email(email))
	return removed
}

// Normalize repairs a group read from storage: nil collections become empty, the
// identity sets and every reaction list lose duplicates.
func (g *Group) Normalize() {
	g.Members = compactSet(g.Members)
	g.MembersWithUnopenedMessages = compactSet(g.MembersWithUnopenedMessages)
	g.MembersTaggedOrReplied = compactSet(g.MembersTaggedOrReplied)
	if g.Messages == nil {
		g.Messages = []Message{}
	}
	for i := range g.Messages {
		if g.Messages[i].Reactions == nil {
			g.Messages[i].Reactions = Reactions{}
			continue
		}
		g.Messages[i].Reactions = g.Messages[i].Reactions.Compact()
	}
}

// MigrateLegacyReactions rewrites legacy reaction tags on every message and returns
// the number rewritten.
func (g *Group) MigrateLegacyReactions() int {
	total := 0
	for i := range g.Messages {
		var n int
		g.Messages[i].Reactions, n = g.Messages[i].Reactions.MigrateLegacy()
		total += n
	}
	return total
}

// HasLegacyReactions reports whether any message still carries a legacy tag.
func (g *Group) HasLegacyReactions() bool {
	for _, m := range g.Messages {
		for _, r := range m.Reactions {
			if r.Kind == ReactionLegacy {
				return true
			}
		}
	}
	return false
}
