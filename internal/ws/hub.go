package ws

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/chatrelay/internal/group"
	"github.com/chatrelay/internal/logger"
	"github.com/chatrelay/internal/model"
	"github.com/chatrelay/internal/presence"
	"github.com/chatrelay/internal/storage"
	"github.com/chatrelay/internal/typing"
)

// MessageStore persists accepted messages for later history replay. The hub
// appends fire-and-forget: it never awaits durability before acknowledging the
// sender or delivering to online recipients.
type MessageStore interface {
	Append(ctx context.Context, m *model.Message) error
}

// PushNotifier delivers a notification to a user with no live connection.
// A nil notifier disables pushes.
type PushNotifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

// Hub is the routing core: it receives inbound events from connections,
// consults the presence and group registries and the typing coordinator, and
// fans outbound events out to the correct connections. It owns only the set
// of live connections; each registry guards its own state.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	maxConns int

	presence *presence.Registry[*Client]
	groups   *group.Registry
	typing   *typing.Coordinator
	store    MessageStore
	profiles storage.ProfileStore
	push     PushNotifier

	unregister chan *Client
	done       chan struct{}
}

func NewHub(
	groups *group.Registry,
	store MessageStore,
	profiles storage.ProfileStore,
	push PushNotifier,
	typingTimeout time.Duration,
	maxConns int,
) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		maxConns:   maxConns,
		groups:     groups,
		store:      store,
		profiles:   profiles,
		push:       push,
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
	pub := presence.NewPublisher()
	pub.Subscribe(h.onStatus)
	h.presence = presence.NewRegistry[*Client](pub)
	h.typing = typing.New(typingTimeout, h.typingExpired)
	return h
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	h.typing.Shutdown()

	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		allClients = append(allClients, c)
	}
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	// Close connections outside the lock (network I/O).
	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

// Admit adds c to the live set, or rejects and closes it over the connection
// limit. Admission is synchronous and must happen before the pumps start, so
// the connection is reachable by broadcasts before its first event is handled
// and can never register presence without being in the live set.
func (h *Hub) Admit(c *Client) bool {
	h.mu.Lock()
	if len(h.clients) >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting connection", h.maxConns)
		c.Close()
		return false
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return true
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()

	// Network I/O outside the lock.
	c.Close()

	// Guarded: a stale unregister after a newer registration superseded this
	// handle is a no-op, and no offline transition is published. Runs even for
	// connections that were never admitted, so a binding can never outlive its
	// handle.
	if c.user != "" {
		h.presence.Unregister(c.user, c)
	}
}

// onStatus broadcasts every presence transition to all live connections and
// mirrors it into the profile store.
func (h *Hub) onStatus(ev presence.Event) {
	h.broadcastAll(OutgoingEvent{Type: EventUserStatus, Payload: StatusPayload{
		Username:       ev.User,
		Status:         ev.Status,
		ProfilePicture: ev.Avatar,
	}})
	if h.profiles != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.profiles.SetOnline(ctx, ev.User, ev.Status == presence.StatusOnline); err != nil {
			logger.Errorf("ws mirror status user=%s: %v", ev.User, err)
		}
	}
}

// HandleEvent dispatches one inbound event from c. It runs on c's read-pump
// goroutine, which keeps events from a single connection in order.
func (h *Hub) HandleEvent(ctx context.Context, c *Client, ev IncomingEvent) {
	if ev.Type != EventRegisterUser && c.user == "" {
		h.sendToClient(c, errorEvent(ErrCodeValidation, "register_user required before other events"))
		return
	}
	switch ev.Type {
	case EventRegisterUser:
		h.handleRegister(ctx, c, ev)
	case EventUpdateProfile:
		h.handleUpdateProfile(ctx, c, ev)
	case EventCreateGroup:
		h.handleCreateGroup(c, ev)
	case EventJoinGroup:
		h.handleJoinGroup(c, ev)
	case EventSendMessage:
		h.handleSendMessage(c, ev)
	case EventSendGroup:
		h.handleSendGroup(c, ev)
	case EventTyping:
		h.handleTyping(c, ev, true)
	case EventStopTyping:
		h.handleTyping(c, ev, false)
	case EventTypingGroup:
		h.handleTypingGroup(c, ev, true)
	case EventStopTypingGroup:
		h.handleTypingGroup(c, ev, false)
	default:
		h.sendToClient(c, errorEvent(ErrCodeValidation, "unknown event type"))
	}
}

func (h *Hub) handleRegister(ctx context.Context, c *Client, ev IncomingEvent) {
	defer logger.DeferLogDuration("ws.handleRegister", time.Now())()
	username := strings.TrimSpace(ev.Username)
	if username == "" {
		h.sendToClient(c, errorEvent(ErrCodeValidation, "username required"))
		return
	}
	if c.user != "" {
		h.sendToClient(c, errorEvent(ErrCodeValidation, "connection already registered"))
		return
	}
	c.user = username

	// Registering publishes the online transition, which broadcasts
	// user_status to everyone before the snapshot replies below.
	prev, superseded := h.presence.Register(username, c, ev.ProfilePicture)
	if superseded {
		// The old connection is obsolete; it is closed without notice, and
		// its eventual unregister is absorbed by the registry guard.
		prev.Close()
	}

	if ev.ProfilePicture != "" && h.profiles != nil {
		if err := h.profiles.SaveAvatar(ctx, username, ev.ProfilePicture); err != nil {
			logger.Errorf("ws save avatar user=%s: %v", username, err)
		}
	}

	// Bootstrap snapshots for the newly registered client.
	h.sendToClient(c, OutgoingEvent{Type: EventAllStatuses, Payload: h.presence.Statuses()})
	h.sendToClient(c, OutgoingEvent{Type: EventAllProfiles, Payload: h.presence.Avatars()})
	h.sendToClient(c, OutgoingEvent{Type: EventAllGroups, Payload: h.groups.Names()})
}

func (h *Hub) handleUpdateProfile(ctx context.Context, c *Client, ev IncomingEvent) {
	if ev.ProfilePicture == "" {
		h.sendToClient(c, errorEvent(ErrCodeValidation, "profile_picture required"))
		return
	}
	h.presence.SetAvatar(c.user, ev.ProfilePicture)
	if h.profiles != nil {
		if err := h.profiles.SaveAvatar(ctx, c.user, ev.ProfilePicture); err != nil {
			logger.Errorf("ws save avatar user=%s: %v", c.user, err)
		}
	}
	h.broadcastAll(OutgoingEvent{Type: EventProfileUpdated, Payload: ProfilePayload{
		Username:       c.user,
		ProfilePicture: ev.ProfilePicture,
	}})
}

func (h *Hub) handleCreateGroup(c *Client, ev IncomingEvent) {
	name := strings.TrimSpace(ev.GroupName)
	if name == "" {
		h.sendToClient(c, errorEvent(ErrCodeValidation, "group_name required"))
		return
	}
	if !h.groups.Create(name, c.user) {
		// Already exists: a no-op, not an error.
		return
	}
	h.broadcastAll(OutgoingEvent{Type: EventGroupCreated, Payload: GroupCreatedPayload{
		GroupName: name,
		Members:   []string{c.user},
	}})
	h.broadcastAll(OutgoingEvent{Type: EventAllGroups, Payload: h.groups.Names()})
}

func (h *Hub) handleJoinGroup(c *Client, ev IncomingEvent) {
	name := strings.TrimSpace(ev.GroupName)
	if name == "" {
		h.sendToClient(c, errorEvent(ErrCodeValidation, "group_name required"))
		return
	}
	members, err := h.groups.Join(name, c.user)
	if err != nil {
		h.sendToClient(c, errorEvent(ErrCodeGroupNotFound, "group does not exist: "+name))
		return
	}
	h.sendToClient(c, OutgoingEvent{Type: EventGroupMembers, Payload: GroupMembersPayload{
		GroupName: name,
		Members:   members,
	}})
	joined := OutgoingEvent{Type: EventUserJoinedGroup, Payload: JoinedGroupPayload{
		GroupName: name,
		Username:  c.user,
	}}
	for _, member := range members {
		h.sendToUser(member, joined)
	}
}

func (h *Hub) handleSendMessage(c *Client, ev IncomingEvent) {
	defer logger.DeferLogDuration("ws.handleSendMessage", time.Now())()
	to := strings.TrimSpace(ev.Receiver)
	if to == "" {
		h.sendToClient(c, errorEvent(ErrCodeValidation, "receiver required"))
		return
	}
	if ev.Text == "" && ev.AttachmentURL == "" {
		h.sendToClient(c, errorEvent(ErrCodeValidation, "text or attachment_url required"))
		return
	}

	m := &model.Message{
		ID:            uuid.New().String(),
		Sender:        c.user,
		Receiver:      to,
		Text:          ev.Text,
		AttachmentURL: ev.AttachmentURL,
		CreatedAt:     time.Now().UTC(),
	}
	h.persist(m)

	if rc, ok := h.presence.Lookup(to); ok {
		h.sendToClient(rc, messageEvent(EventReceiveMessage, m))
		h.sendToClient(rc, OutgoingEvent{Type: EventNotification, Payload: NotificationPayload{
			Sender:  c.user,
			Message: notificationBody(m),
		}})
	} else if h.push != nil {
		sender := c.user
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			h.push.Notify(ctx, to, sender, notificationBody(m),
				map[string]string{"sender": sender, "message_id": m.ID})
		}()
	}

	// Delivery ack to the sender regardless of the receiver being online.
	h.sendToClient(c, OutgoingEvent{Type: EventMessageSent, Payload: AckPayload{
		Receiver:      to,
		Text:          m.Text,
		AttachmentURL: m.AttachmentURL,
		Timestamp:     m.CreatedAt,
	}})
}

func (h *Hub) handleSendGroup(c *Client, ev IncomingEvent) {
	defer logger.DeferLogDuration("ws.handleSendGroup", time.Now())()
	name := strings.TrimSpace(ev.GroupName)
	if name == "" {
		h.sendToClient(c, errorEvent(ErrCodeValidation, "group_name required"))
		return
	}
	members, ok := h.groups.Members(name)
	if !ok {
		h.sendToClient(c, errorEvent(ErrCodeGroupNotFound, "group does not exist: "+name))
		return
	}
	if ev.Text == "" && ev.AttachmentURL == "" {
		h.sendToClient(c, errorEvent(ErrCodeValidation, "text or attachment_url required"))
		return
	}

	m := &model.Message{
		ID:            uuid.New().String(),
		Sender:        c.user,
		GroupName:     name,
		Text:          ev.Text,
		AttachmentURL: ev.AttachmentURL,
		IsGroup:       true,
		CreatedAt:     time.Now().UTC(),
	}
	h.persist(m)

	out := messageEvent(EventReceiveGroup, m)
	for _, member := range members {
		if rc, online := h.presence.Lookup(member); online {
			h.sendToClient(rc, out)
		} else if h.push != nil && member != c.user {
			member := member
			sender := c.user
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				h.push.Notify(ctx, member, sender, notificationBody(m),
					map[string]string{"group_name": name, "message_id": m.ID})
			}()
		}
	}
}

func (h *Hub) handleTyping(c *Client, ev IncomingEvent, start bool) {
	to := strings.TrimSpace(ev.Receiver)
	if to == "" {
		h.sendToClient(c, errorEvent(ErrCodeValidation, "receiver required"))
		return
	}
	key := typing.Key{Sender: c.user, Target: to}
	if start {
		if h.typing.Touch(key) {
			h.sendToUser(to, OutgoingEvent{Type: EventUserTyping, Payload: TypingPayload{Username: c.user}})
		}
		return
	}
	if h.typing.Stop(key) {
		h.sendToUser(to, OutgoingEvent{Type: EventUserStopTyping, Payload: TypingPayload{Username: c.user}})
	}
}

func (h *Hub) handleTypingGroup(c *Client, ev IncomingEvent, start bool) {
	name := strings.TrimSpace(ev.GroupName)
	if name == "" {
		h.sendToClient(c, errorEvent(ErrCodeValidation, "group_name required"))
		return
	}
	key := typing.Key{Sender: c.user, Target: name, Group: true}
	if start {
		if h.typing.Touch(key) {
			h.sendToGroupExcept(name, c.user, OutgoingEvent{
				Type:    EventUserTypingGroup,
				Payload: TypingPayload{Username: c.user, GroupName: name},
			})
		}
		return
	}
	if h.typing.Stop(key) {
		h.sendToGroupExcept(name, c.user, OutgoingEvent{
			Type:    EventUserStopTypingGroup,
			Payload: TypingPayload{Username: c.user, GroupName: name},
		})
	}
}

// typingExpired emits the same stop signal an explicit stop would have, when a
// session times out without a refresh.
func (h *Hub) typingExpired(k typing.Key) {
	if k.Group {
		h.sendToGroupExcept(k.Target, k.Sender, OutgoingEvent{
			Type:    EventUserStopTypingGroup,
			Payload: TypingPayload{Username: k.Sender, GroupName: k.Target},
		})
		return
	}
	h.sendToUser(k.Target, OutgoingEvent{Type: EventUserStopTyping, Payload: TypingPayload{Username: k.Sender}})
}

// persist hands the message to the store without awaiting durability.
func (h *Hub) persist(m *model.Message) {
	if h.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.store.Append(ctx, m); err != nil {
			logger.Errorf("ws store message id=%s: %v", m.ID, err)
		}
	}()
}

// Statuses exposes the presence snapshot for the HTTP bootstrap endpoint.
func (h *Hub) Statuses() map[string]presence.Status {
	return h.presence.Statuses()
}

// Avatars exposes the display metadata snapshot.
func (h *Hub) Avatars() map[string]string {
	return h.presence.Avatars()
}

// SeedProfiles preloads display metadata, typically from the profile store.
func (h *Hub) SeedProfiles(avatars map[string]string) {
	h.presence.SeedAvatars(avatars)
}

func (h *Hub) sendToGroupExcept(name, except string, ev OutgoingEvent) {
	members, ok := h.groups.Members(name)
	if !ok {
		return
	}
	for _, member := range members {
		if member == except {
			continue
		}
		h.sendToUser(member, ev)
	}
}

func (h *Hub) sendToUser(user string, ev OutgoingEvent) {
	if c, ok := h.presence.Lookup(user); ok {
		h.sendToClient(c, ev)
	}
}

func (h *Hub) broadcastAll(ev OutgoingEvent) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, ev)
	}
}

func (h *Hub) sendToClient(c *Client, ev OutgoingEvent) {
	select {
	case c.send <- ev:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client. c.user is not
		// logged here: it is written on the read pump and this path can run
		// on any goroutine.
		logger.Errorf("ws send buffer full, closing slow client")
		c.Close()
	}
}

func notificationBody(m *model.Message) string {
	body := m.Text
	if body == "" {
		body = "Sent an attachment"
	}
	if len(body) > 120 {
		cut := 117
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + "..."
	}
	return body
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
