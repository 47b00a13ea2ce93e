package postgres

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"

	"github.com/travco-dmc/backoffice-messaging/api"
)

// A user represents a back-office account in the database.
type user struct {
	bun.BaseModel `bun:"table:users"`

	Username     string `bun:",pk"`
	Name         string `bun:",notnull"`
	Role         string `bun:",notnull"`
	PasswordHash string `bun:"password_hash,notnull"`
}

// A record is one entry in a named resource collection. The body is
// schemaless; the id inside the body always mirrors the id column.
type record struct {
	bun.BaseModel `bun:"table:records"`

	ID        string          `bun:",pk"`
	Resource  string          `bun:",notnull"`
	Body      json.RawMessage `bun:"type:jsonb,notnull"`
	CreatedAt time.Time       `bun:",nullzero,default:now()"`
}

func (u user) APIUser() api.User {
	return api.User{
		Username:     u.Username,
		Name:         u.Name,
		Role:         u.Role,
		PasswordHash: u.PasswordHash,
	}
}
