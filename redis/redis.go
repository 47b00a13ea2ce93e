// Package redis provides the durable local cache for the message store. It
// keeps whole JSON arrays under the exact string keys the legacy front end
// used for its browser storage, so an existing deployment's cache keeps
// working across the migration.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/travco-dmc/backoffice-messaging/store"
)

// Legacy cache keys. These are part of the compatibility contract and must not
// change.
const (
	keyMessages     = "travcoMessages"
	keyUnreadPrefix = "unreadMessages_"
	keyToken        = "token"
	keyUser         = "user"
	keyLegacyUser   = "travcoUser"
)

// Cache provides caching in Redis.
type Cache struct {
	cli *redis.Client
}

// Connect connects to the Redis server and pings the server to ensure the
// connection is working.
func Connect(ctx context.Context, addr string) (*Cache, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Cache{
		cli: cli,
	}, nil
}

// GetMessages returns the cached message array. A missing key yields an empty
// list, not an error.
func (c *Cache) GetMessages(ctx context.Context) ([]store.Message, error) {
	val, err := c.cli.Get(ctx, keyMessages).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", keyMessages, err)
	}
	var msgs []store.Message
	if err := json.Unmarshal([]byte(val), &msgs); err != nil {
		return nil, fmt.Errorf("decode cached messages: %w", err)
	}
	return msgs, nil
}

// PutMessages replaces the cached message array. This is a plain overwrite
// with no transactional isolation; concurrent writers are last-write-wins by
// contract.
func (c *Cache) PutMessages(ctx context.Context, msgs []store.Message) error {
	if msgs == nil {
		msgs = []store.Message{}
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	if err := c.cli.Set(ctx, keyMessages, b, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", keyMessages, err)
	}
	return nil
}

// DeleteUnreadIndex drops the per-user legacy unread index.
func (c *Cache) DeleteUnreadIndex(ctx context.Context, username string) error {
	if err := c.cli.Del(ctx, keyUnreadPrefix+username).Err(); err != nil {
		return fmt.Errorf("del unread index: %w", err)
	}
	return nil
}

// SaveSession persists the session identity under the legacy keys so a
// restarted client resumes without logging in again.
func (c *Cache) SaveSession(ctx context.Context, sess store.Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := c.cli.Set(ctx, keyToken, sess.Token, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", keyToken, err)
	}
	if err := c.cli.Set(ctx, keyUser, b, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", keyUser, err)
	}
	if err := c.cli.Set(ctx, keyLegacyUser, sess.Username, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", keyLegacyUser, err)
	}
	return nil
}

// LoadSession restores a previously saved session. A missing session is
// reported as ok=false rather than an error.
func (c *Cache) LoadSession(ctx context.Context) (store.Session, bool, error) {
	val, err := c.cli.Get(ctx, keyUser).Result()
	if errors.Is(err, redis.Nil) {
		return store.Session{}, false, nil
	}
	if err != nil {
		return store.Session{}, false, fmt.Errorf("get %s: %w", keyUser, err)
	}
	var sess store.Session
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return store.Session{}, false, fmt.Errorf("decode session: %w", err)
	}
	token, err := c.cli.Get(ctx, keyToken).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return store.Session{}, false, fmt.Errorf("get %s: %w", keyToken, err)
	}
	sess.Token = token
	return sess, true, nil
}

// ClearSession removes the stored identity, including the per-user unread
// index, as part of sign-out.
func (c *Cache) ClearSession(ctx context.Context, username string) error {
	keys := []string{keyToken, keyUser, keyLegacyUser}
	if username != "" {
		keys = append(keys, keyUnreadPrefix+username)
	}
	if err := c.cli.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("del session keys: %w", err)
	}
	return nil
}
