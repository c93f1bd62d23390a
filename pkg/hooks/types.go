package hooks

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Config describes how to call a hook endpoint. It is the YAML body of a
// "webhook" object block.
type Config struct {
	URL        string            `yaml:"url"         json:"url"`
	AuthType   string            `yaml:"auth_type"   json:"auth_type"`   // "bearer", "hmac", "none"
	AuthSecret string            `yaml:"auth_secret" json:"auth_secret"` // token or HMAC key
	TimeoutSec int               `yaml:"timeout_sec" json:"timeout_sec"`
	Headers    map[string]string `yaml:"headers"     json:"headers,omitempty"`
}

// Validate checks the config fields.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.URL, validation.Required),
		validation.Field(&c.AuthType, validation.In("", "none", "bearer", "hmac")),
		validation.Field(&c.AuthSecret, validation.When(c.AuthType == "bearer" || c.AuthType == "hmac", validation.Required)),
		validation.Field(&c.TimeoutSec, validation.Min(0), validation.Max(60)),
	)
}

// ParseConfig decodes and validates an object body.
func ParseConfig(body string) (Config, error) {
	var c Config
	if err := yaml.Unmarshal([]byte(body), &c); err != nil {
		return Config{}, fmt.Errorf("hook config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("hook config: %w", err)
	}
	return c, nil
}

// Request is the payload posted to a hook endpoint.
type Request struct {
	SessionID string            `json:"session_id"`
	Object    string            `json:"object"`
	Topic     string            `json:"topic"`
	Args      []string          `json:"args"`
	Variables map[string]string `json:"variables"`
}

// Response is the expected hook reply. Reply is rendered in place of the
// <call> tag.
type Response struct {
	Reply string         `json:"reply"`
	Data  map[string]any `json:"data,omitempty"`
}
