package config

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pitabwire/frame/config"

	"github.com/voicetyped/rivebot/pkg/brain"
	"github.com/voicetyped/rivebot/pkg/session"
)

// Session store backends.
const (
	StoreMemory   = "memory"
	StoreDatabase = "database"
	StoreValkey   = "valkey"
)

// ChatConfig holds configuration for the chat service.
type ChatConfig struct {
	config.ConfigurationDefault

	ScriptDir         string `envDefault:"./scripts"             env:"SCRIPT_DIR"`
	ScriptWatch       bool   `envDefault:"true"                  env:"SCRIPT_WATCH"`
	HistorySize       int    `envDefault:"9"                     env:"HISTORY_SIZE"`
	MaxMatchSteps     int    `envDefault:"10000"                 env:"MAX_MATCH_STEPS"`
	MaxRecursionDepth int    `envDefault:"50"                    env:"MAX_RECURSION_DEPTH"`
	NoMatchReply      string `envDefault:"ERR: No Reply Matched" env:"NO_MATCH_REPLY"`
	RandomSeed        uint64 `envDefault:"0"                     env:"RANDOM_SEED"`
	StrictReload      bool   `envDefault:"false"                 env:"STRICT_RELOAD"`

	SessionStore  string `envDefault:"memory"         env:"SESSION_STORE"`
	SessionTTLMin int    `envDefault:"30"             env:"SESSION_TTL_MIN"`
	ValkeyAddress string `envDefault:"localhost:6379" env:"VALKEY_ADDRESS"`
	ValkeyPass    string `envDefault:""               env:"VALKEY_PASSWORD"`
	ValkeyDB      int    `envDefault:"0"              env:"VALKEY_DB"`
	ValkeyPrefix  string `envDefault:"rivebot:"       env:"VALKEY_PREFIX"`

	HookAllowPrivate bool `envDefault:"false" env:"HOOK_ALLOW_PRIVATE"`
	AuthEnabled      bool `envDefault:"false" env:"AUTH_ENABLED"`
}

// Validate checks the chat settings.
func (c *ChatConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ScriptDir, validation.Required),
		validation.Field(&c.HistorySize, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxMatchSteps, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxRecursionDepth, validation.Required, validation.Min(1)),
		validation.Field(&c.SessionStore, validation.Required, validation.In(StoreMemory, StoreDatabase, StoreValkey)),
		validation.Field(&c.SessionTTLMin, validation.Required, validation.Min(1)),
		validation.Field(&c.ValkeyAddress, validation.When(c.SessionStore == StoreValkey, validation.Required)),
	)
}

// Options maps the settings onto engine options.
func (c *ChatConfig) Options() brain.Options {
	return brain.Options{
		HistorySize:   c.HistorySize,
		MaxMatchSteps: c.MaxMatchSteps,
		MaxDepth:      c.MaxRecursionDepth,
		NoMatchReply:  c.NoMatchReply,
		Seed:          c.RandomSeed,
		StrictReload:  c.StrictReload,
	}
}

// SessionTTL is how long an idle session is kept.
func (c *ChatConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMin) * time.Minute
}

// Valkey returns the valkey connection settings.
func (c *ChatConfig) Valkey() session.ValkeyConfig {
	return session.ValkeyConfig{Address: c.ValkeyAddress, Password: c.ValkeyPass, DB: c.ValkeyDB}
}
