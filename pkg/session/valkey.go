package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"
)

// ValkeyConfig holds connection options for NewValkeyClient.
type ValkeyConfig struct {
	Address  string
	Password string
	DB       int
}

// NewValkeyClient connects to valkey and pings it.
func NewValkeyClient(ctx context.Context, cfg ValkeyConfig) (valkeylib.Client, error) {
	opts := valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	client, err := valkeylib.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("create valkey client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Do(pingCtx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping valkey: %w", err)
	}
	return client, nil
}

// ValkeyStore keeps encoded sessions under prefixed keys. Keys expire after
// the configured TTL, which is renewed on every save.
type ValkeyStore struct {
	client valkeylib.Client
	prefix string
	ttl    time.Duration
}

// NewValkeyStore creates a store. A ttl of zero keeps keys forever.
func NewValkeyStore(client valkeylib.Client, prefix string, ttl time.Duration) *ValkeyStore {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &ValkeyStore{
		client: client,
		prefix: prefix + "session:",
		ttl:    ttl,
	}
}

func (v *ValkeyStore) key(id string) string {
	return v.prefix + id
}

func (v *ValkeyStore) Load(ctx context.Context, id string) (*Session, error) {
	cmd := v.client.B().Get().Key(v.key(id)).Build()
	data, err := v.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if valkeylib.IsValkeyNil(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session %q: %w", id, err)
	}
	return Decode(data)
}

func (v *ValkeyStore) Save(ctx context.Context, s *Session) error {
	data, err := s.Encode()
	if err != nil {
		return err
	}

	set := v.client.B().Set().Key(v.key(s.ID)).Value(string(data))
	if v.ttl > 0 {
		err = v.client.Do(ctx, set.Ex(v.ttl).Build()).Error()
	} else {
		err = v.client.Do(ctx, set.Build()).Error()
	}
	if err != nil {
		return fmt.Errorf("save session %q: %w", s.ID, err)
	}
	return nil
}

func (v *ValkeyStore) Delete(ctx context.Context, id string) error {
	cmd := v.client.B().Del().Key(v.key(id)).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("delete session %q: %w", id, err)
	}
	return nil
}
