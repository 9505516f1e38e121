// Package sse pushes group changes to connected members over Server-Sent Events.
package sse

import (
	"time"

	"github.com/boilergroups/groups-server/internal/domain"
	"github.com/boilergroups/groups-server/internal/normalize"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventGroupCreated is sent to the members of a new group.
	EventGroupCreated EventType = "group.created"
	// EventGroupDeleted is sent to the former members of a deleted group.
	EventGroupDeleted EventType = "group.deleted"

	// EventMessageSent carries a new message, including status messages.
	EventMessageSent EventType = "message.sent"
	// EventMessageDeleted carries the id of a removed message.
	EventMessageDeleted EventType = "message.deleted"
	// EventMessageReacted carries a message's reaction list after a change.
	EventMessageReacted EventType = "message.reacted"

	EventMemberAdded   EventType = "member.added"
	EventMemberRemoved EventType = "member.removed"

	// EventNotificationsUpdated carries a group's notification sets after a change.
	EventNotificationsUpdated EventType = "notifications.updated"
	// EventEdbotUpdated carries new bot settings.
	EventEdbotUpdated EventType = "edbot.updated"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`
	GroupID   string    `json:"groupId,omitempty"`
	// Seq increases by one per emitted event and is sent as the frame id.
	Seq uint64 `json:"seq,omitempty"`

	// Recipients lists the member emails that receive the event.
	Recipients []string `json:"-"`
	// Broadcast sends the event to every stream regardless of Recipients.
	Broadcast bool `json:"-"`
}

// MessageEventData is the payload of message.sent.
type MessageEventData struct {
	Message domain.Message `json:"message"`
}

// MessageDeletedEventData is the payload of message.deleted.
type MessageDeletedEventData struct {
	MessageID string `json:"messageId"`
}

// MessageReactedEventData is the payload of message.reacted.
type MessageReactedEventData struct {
	MessageID string                `json:"messageId"`
	Reactions domain.Reactions      `json:"reactions"`
	Counts    domain.ReactionCounts `json:"counts"`
}

// MemberEventData is the payload of member.added and member.removed.
type MemberEventData struct {
	Email   string   `json:"email"`
	Members []string `json:"members"`
}

// GroupEventData is the payload of group.created.
type GroupEventData struct {
	Group *domain.Group `json:"group"`
}

// NotificationsEventData is the payload of notifications.updated.
type NotificationsEventData struct {
	MembersWithUnopenedMessages []string `json:"membersWithUnopenedMessages"`
	MembersTaggedOrReplied      []string `json:"membersTaggedOrReplied"`
	NewMessage                  bool     `json:"newMessage"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"serverTime"`
}

func newGroupEvent(t EventType, g *domain.Group, data any) Event {
	return Event{
		Type:       t,
		GroupID:    g.ID,
		Data:       data,
		Timestamp:  time.Now(),
		Recipients: append([]string(nil), g.Members...),
	}
}

// NewGroupCreatedEvent announces g to its members.
func NewGroupCreatedEvent(g *domain.Group) Event {
	return newGroupEvent(EventGroupCreated, g, GroupEventData{Group: g})
}

// NewGroupDeletedEvent tells the members of g it is gone.
func NewGroupDeletedEvent(g *domain.Group) Event {
	return newGroupEvent(EventGroupDeleted, g, nil)
}

// NewMessageSentEvent carries m to the members of g.
func NewMessageSentEvent(g *domain.Group, m domain.Message) Event {
	return newGroupEvent(EventMessageSent, g, MessageEventData{Message: m})
}

// NewMessageDeletedEvent tells the members of g that messageID was removed.
func NewMessageDeletedEvent(g *domain.Group, messageID string) Event {
	return newGroupEvent(EventMessageDeleted, g, MessageDeletedEventData{MessageID: messageID})
}

// NewMessageReactedEvent carries the current reactions on m.
func NewMessageReactedEvent(g *domain.Group, m *domain.Message) Event {
	likes, dislikes := m.Reactions.Count()
	return newGroupEvent(EventMessageReacted, g, MessageReactedEventData{
		MessageID: m.ID,
		Reactions: m.Reactions,
		Counts:    domain.ReactionCounts{Likes: likes, Dislikes: dislikes},
	})
}

// NewMemberAddedEvent announces email joining g.
func NewMemberAddedEvent(g *domain.Group, email string) Event {
	return newGroupEvent(EventMemberAdded, g, MemberEventData{Email: email, Members: g.Members})
}

// NewMemberRemovedEvent announces email leaving g. The removed member is told too.
func NewMemberRemovedEvent(g *domain.Group, email string) Event {
	e := newGroupEvent(EventMemberRemoved, g, MemberEventData{Email: email, Members: g.Members})
	e.Recipients = append(e.Recipients, normalize.Email(email))
	return e
}

// NewNotificationsUpdatedEvent carries the notification sets of g.
func NewNotificationsUpdatedEvent(g *domain.Group) Event {
	return newGroupEvent(EventNotificationsUpdated, g, NotificationsEventData{
		MembersWithUnopenedMessages: g.MembersWithUnopenedMessages,
		MembersTaggedOrReplied:      g.MembersTaggedOrReplied,
		NewMessage:                  g.NewMessage,
	})
}

// NewEdbotUpdatedEvent carries the bot settings of g.
func NewEdbotUpdatedEvent(g *domain.Group) Event {
	return newGroupEvent(EventEdbotUpdated, g, g.Edbot)
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	now := time.Now()
	return Event{
		Type:      EventHeartbeat,
		Data:      HeartbeatEventData{ServerTime: now},
		Timestamp: now,
		Broadcast: true,
	}
}
