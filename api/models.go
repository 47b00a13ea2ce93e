package api

// A User is a back-office account. The password hash never leaves the server.
type User struct {
	Username     string `json:"username"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	PasswordHash string `json:"-"`
}

// messageRecord is the subset of a message body the server validates before
// accepting it into the messages collection. Storage records are otherwise
// schemaless.
type messageRecord struct {
	Sender    string `json:"sender" validate:"required"`
	Receiver  string `json:"receiver" validate:"required"`
	Timestamp string `json:"timestamp" validate:"required"`
}
