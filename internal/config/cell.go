package config

import "sync/atomic"

const (
	SourceUser = "user"
	SourceEnv  = "env"
)

// Credential is what an outbound call needs to reach the remote API.
type Credential struct {
	BaseURL string
	APIKey  string
}

func (c Credential) Valid() bool {
	return c.APIKey != ""
}

// Cell is a shared reference to the current credential. Only the settings
// save path writes it; pollers read it on every tick so a saved key is
// picked up without restarting them.
type Cell struct {
	baseURL     string
	fallbackKey string
	userKey     atomic.Pointer[string]
}

func NewCell(baseURL, fallbackKey string) *Cell {
	return &Cell{baseURL: baseURL, fallbackKey: fallbackKey}
}

// Set replaces the user-configured key. An empty key reverts to the fallback.
func (c *Cell) Set(userKey string) {
	c.userKey.Store(&userKey)
}

func (c *Cell) Current() Credential {
	return Credential{BaseURL: c.baseURL, APIKey: c.key()}
}

// Source reports where the current key came from, or "" when there is none.
func (c *Cell) Source() string {
	if p := c.userKey.Load(); p != nil && *p != "" {
		return SourceUser
	}
	if c.fallbackKey != "" {
		return SourceEnv
	}
	return ""
}

func (c *Cell) key() string {
	if p := c.userKey.Load(); p != nil && *p != "" {
		return *p
	}
	return c.fallbackKey
}
