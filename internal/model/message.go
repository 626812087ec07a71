package model

import "time"

// Message is a chat message in transit. Exactly one of Receiver and GroupName
// is set; Text and AttachmentURL are never both empty. The router assigns ID
// and CreatedAt at the moment it accepts the message; ownership then passes to
// the message store and to live connections, the router keeps no history.
type Message struct {
	ID            string    `json:"id"`
	Sender        string    `json:"sender"`
	Receiver      string    `json:"receiver,omitempty"`
	GroupName     string    `json:"group_name,omitempty"`
	Text          string    `json:"text,omitempty"`
	AttachmentURL string    `json:"attachment_url,omitempty"`
	IsGroup       bool      `json:"is_group"`
	CreatedAt     time.Time `json:"timestamp"`
}
