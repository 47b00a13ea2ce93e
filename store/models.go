package store

// A Message is a unit of communication between two identified users. The JSON
// field names match the records the legacy front end wrote to its cache, so a
// cached array from an older client decodes without migration.
type Message struct {
	ID           string `json:"id"`
	Sender       string `json:"sender"`
	Receiver     string `json:"receiver"`
	SenderName   string `json:"senderName,omitempty"`
	SenderRole   string `json:"senderRole,omitempty"`
	ReceiverName string `json:"receiverName,omitempty"`
	ReceiverRole string `json:"receiverRole,omitempty"`
	Content      string `json:"content"`
	Timestamp    string `json:"timestamp"`
	Read         bool   `json:"read"`
	Notify       bool   `json:"notify"`
}

// A Session identifies the signed-in user for the lifetime of a Store. It is
// created at login and torn down at sign-out; the store never reads identity
// from ambient state.
type Session struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Token    string `json:"-"`
}

// A Peer is the display snapshot of a message recipient, captured at send
// time. It is denormalized into the message and not kept in sync with the
// named user afterwards.
type Peer struct {
	ID   string
	Name string
	Role string
}
