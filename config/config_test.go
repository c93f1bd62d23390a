package config

import (
	"testing"
	"time"
)

func validConfig() ChatConfig {
	return ChatConfig{
		ScriptDir:         "./scripts",
		HistorySize:       9,
		MaxMatchSteps:     10000,
		MaxRecursionDepth: 50,
		NoMatchReply:      "Sorry?",
		RandomSeed:        42,
		StrictReload:      true,
		SessionStore:      StoreMemory,
		SessionTTLMin:     15,
		ValkeyAddress:     "localhost:6379",
		ValkeyDB:          2,
	}
}

func TestOptions(t *testing.T) {
	cfg := validConfig()
	opts := cfg.Options()

	if opts.HistorySize != 9 || opts.MaxMatchSteps != 10000 || opts.MaxDepth != 50 {
		t.Errorf("limits = %+v", opts)
	}
	if opts.NoMatchReply != "Sorry?" || opts.Seed != 42 || !opts.StrictReload {
		t.Errorf("options = %+v", opts)
	}
	if cfg.SessionTTL() != 15*time.Minute {
		t.Errorf("SessionTTL = %v", cfg.SessionTTL())
	}
	if v := cfg.Valkey(); v.Address != "localhost:6379" || v.DB != 2 {
		t.Errorf("Valkey = %+v", v)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ChatConfig)
		wantErr bool
	}{
		{name: "valid", mutate: func(*ChatConfig) {}},
		{name: "database store", mutate: func(c *ChatConfig) { c.SessionStore = StoreDatabase }},
		{name: "unknown store", mutate: func(c *ChatConfig) { c.SessionStore = "redis" }, wantErr: true},
		{name: "valkey without address", mutate: func(c *ChatConfig) {
			c.SessionStore = StoreValkey
			c.ValkeyAddress = ""
		}, wantErr: true},
		{name: "memory without valkey address", mutate: func(c *ChatConfig) { c.ValkeyAddress = "" }},
		{name: "no script dir", mutate: func(c *ChatConfig) { c.ScriptDir = "" }, wantErr: true},
		{name: "zero history", mutate: func(c *ChatConfig) { c.HistorySize = 0 }, wantErr: true},
		{name: "zero ttl", mutate: func(c *ChatConfig) { c.SessionTTLMin = 0 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
