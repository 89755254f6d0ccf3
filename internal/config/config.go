// Package config holds the Frontdesk bot configuration: JSON5 file with env
// overlays for secrets. One config drives any number of bot personas.
package config

import "fmt"

// Config is the root configuration for the Frontdesk bot.
type Config struct {
	LLM       LLMConfig       `json:"llm"`
	Storage   StorageConfig   `json:"storage"`
	Directory DirectoryConfig `json:"directory"`
	Prompts   PromptsConfig   `json:"prompts,omitempty"`
	Personas  []PersonaConfig `json:"personas"`
}

// LLMConfig configures the chat-completion provider.
// APIKey is NEVER read from the config file — env FRONTDESK_OPENAI_API_KEY only.
type LLMConfig struct {
	Provider string `json:"provider,omitempty"` // "openai" or any compatible endpoint name
	APIBase  string `json:"api_base,omitempty"`
	Model    string `json:"model,omitempty"`
	APIKey   string `json:"-"`
}

// StorageConfig selects the durable key-value backend.
// PostgresDSN comes from env FRONTDESK_POSTGRES_DSN only.
type StorageConfig struct {
	Backend     string `json:"backend,omitempty"` // "file" (default), "sqlite", "postgres"
	Dir         string `json:"dir,omitempty"`     // file backend directory
	SQLitePath  string `json:"sqlite_path,omitempty"`
	PostgresDSN string `json:"-"`
}

// DirectoryConfig points at the resident-directory lookup service.
type DirectoryConfig struct {
	BaseURL string `json:"base_url,omitempty"`
}

// PromptsConfig configures the optional persona prompt directory.
// A file {dir}/{persona}.md overrides that persona's inline system prompt and
// is hot-reloaded on change.
type PromptsConfig struct {
	Dir string `json:"dir,omitempty"`
}

// PersonaConfig parameterizes one bot instance (phone number). All personas
// run the same core pipeline; there are no per-persona code paths.
type PersonaConfig struct {
	Name         string        `json:"name"`                  // stable identifier, used in storage keys
	DisplayName  string        `json:"display_name,omitempty"`
	BridgeURL    string        `json:"bridge_url"`            // WhatsApp bridge WebSocket URL
	Admin        bool          `json:"admin,omitempty"`       // persona accepts admin commands
	AdminPeer    string        `json:"admin_peer,omitempty"`  // chat ID treated as the admin channel
	SystemPrompt string        `json:"system_prompt,omitempty"`
	Routing      RoutingConfig `json:"routing"`
	FallbackPhone string       `json:"fallback_phone,omitempty"` // quoted in dispatch-failure apologies
}

// RoutingConfig names the three staff chats tickets are dispatched to.
type RoutingConfig struct {
	General    string `json:"general"`
	Accounting string `json:"accounting"`
	Admin      string `json:"admin"`
}

// Validate checks the parts the bot cannot start without.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("no LLM API key: set FRONTDESK_OPENAI_API_KEY")
	}
	if len(c.Personas) == 0 {
		return fmt.Errorf("no personas configured")
	}
	seen := make(map[string]bool, len(c.Personas))
	for _, p := range c.Personas {
		if p.Name == "" {
			return fmt.Errorf("persona with empty name")
		}
		if p.Name == "mute" {
			return fmt.Errorf("persona name %q is reserved", p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate persona name %q", p.Name)
		}
		seen[p.Name] = true
		if p.BridgeURL == "" {
			return fmt.Errorf("persona %s: bridge_url is required", p.Name)
		}
	}
	switch c.Storage.Backend {
	case "", "file", "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage backend postgres: set FRONTDESK_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

// Persona returns the persona config by name.
func (c *Config) Persona(name string) (PersonaConfig, bool) {
	for _, p := range c.Personas {
		if p.Name == name {
			return p, true
		}
	}
	return PersonaConfig{}, false
}
