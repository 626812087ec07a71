package ws

import (
	"time"

	"github.com/chatrelay/internal/model"
	"github.com/chatrelay/internal/presence"
)

type EventType string

// Inbound event kinds. A transport close acts as the implicit disconnect event.
const (
	EventRegisterUser    EventType = "register_user"
	EventUpdateProfile   EventType = "update_profile_picture"
	EventCreateGroup     EventType = "create_group"
	EventJoinGroup       EventType = "join_group"
	EventSendMessage     EventType = "send_message"
	EventSendGroup       EventType = "send_group_message"
	EventTyping          EventType = "typing"
	EventStopTyping      EventType = "stop_typing"
	EventTypingGroup     EventType = "typing_group"
	EventStopTypingGroup EventType = "stop_typing_group"
)

// Outbound event kinds.
const (
	EventUserStatus          EventType = "user_status"
	EventAllStatuses         EventType = "all_users_status"
	EventAllProfiles         EventType = "all_user_profiles"
	EventAllGroups           EventType = "all_groups"
	EventProfileUpdated      EventType = "profile_updated"
	EventGroupCreated        EventType = "group_created"
	EventGroupMembers        EventType = "group_members"
	EventUserJoinedGroup     EventType = "user_joined_group"
	EventReceiveMessage      EventType = "receive_message"
	EventReceiveGroup        EventType = "receive_group_message"
	EventMessageSent         EventType = "message_sent"
	EventNotification        EventType = "notification"
	EventUserTyping          EventType = "user_typing"
	EventUserStopTyping      EventType = "user_stop_typing"
	EventUserTypingGroup     EventType = "user_typing_group"
	EventUserStopTypingGroup EventType = "user_stop_typing_group"
	EventError               EventType = "error"
)

// Error codes carried in ErrorPayload.
const (
	ErrCodeValidation    = "validation"
	ErrCodeGroupNotFound = "group_not_found"
)

// IncomingEvent is what the client sends to the server.
type IncomingEvent struct {
	Type EventType `json:"type"`

	// For register_user / update_profile_picture
	Username       string `json:"username,omitempty"`
	ProfilePicture string `json:"profile_picture,omitempty"`

	// For group events
	GroupName string `json:"group_name,omitempty"`

	// For direct messages and typing
	Receiver string `json:"receiver,omitempty"`

	// Message body
	Text          string `json:"text,omitempty"`
	AttachmentURL string `json:"attachment_url,omitempty"`
}

// OutgoingEvent is what the server sends to the client.
// Payload uses typed structs to avoid heap-heavy map[string]any.
type OutgoingEvent struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// --- Typed payloads ---

// StatusPayload is broadcast on every online/offline transition.
type StatusPayload struct {
	Username       string          `json:"username"`
	Status         presence.Status `json:"status"`
	ProfilePicture string          `json:"profile_picture,omitempty"`
}

// ProfilePayload is broadcast when a user updates display metadata.
type ProfilePayload struct {
	Username       string `json:"username"`
	ProfilePicture string `json:"profile_picture"`
}

// GroupCreatedPayload is broadcast to everyone when a group is created.
type GroupCreatedPayload struct {
	GroupName string   `json:"group_name"`
	Members   []string `json:"members"`
}

// GroupMembersPayload is the reply to a successful join.
type GroupMembersPayload struct {
	GroupName string   `json:"group_name"`
	Members   []string `json:"members"`
}

// JoinedGroupPayload is broadcast to online group members on a join.
type JoinedGroupPayload struct {
	GroupName string `json:"group_name"`
	Username  string `json:"username"`
}

// AckPayload confirms acceptance of a direct message to its sender.
type AckPayload struct {
	Receiver      string    `json:"receiver"`
	Text          string    `json:"text,omitempty"`
	AttachmentURL string    `json:"attachment_url,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NotificationPayload accompanies a delivered direct message.
type NotificationPayload struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// TypingPayload identifies who is typing; GroupName is empty for direct chats.
type TypingPayload struct {
	Username  string `json:"username"`
	GroupName string `json:"group_name,omitempty"`
}

// ErrorPayload is returned to the originating connection only.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorEvent(code, msg string) OutgoingEvent {
	return OutgoingEvent{Type: EventError, Payload: ErrorPayload{Code: code, Message: msg}}
}

func messageEvent(t EventType, m *model.Message) OutgoingEvent {
	return OutgoingEvent{Type: t, Payload: m}
}
