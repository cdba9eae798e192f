package model

import "time"

// Provider identifies a supported third-party integration.
// It is a closed enumeration: free-form provider strings are rejected at the
// edge so a typo can never create a dangling credential.
type Provider string

// Supported integration providers.
const (
	ProviderPerplexity Provider = "perplexity"
	ProviderOpenAI     Provider = "openai"
	ProviderAnthropic  Provider = "anthropic"
	ProviderSerpAPI    Provider = "serpapi"
)

// Providers lists all supported providers in display order.
var Providers = []Provider{
	ProviderPerplexity,
	ProviderOpenAI,
	ProviderAnthropic,
	ProviderSerpAPI,
}

// providerLabels maps providers to their human-readable display names.
var providerLabels = map[Provider]string{
	ProviderPerplexity: "Perplexity",
	ProviderOpenAI:     "OpenAI",
	ProviderAnthropic:  "Anthropic",
	ProviderSerpAPI:    "SerpAPI",
}

// ParseProvider converts a raw string into a Provider.
// Returns false for anything outside the enumeration.
func ParseProvider(s string) (Provider, bool) {
	p := Provider(s)
	_, ok := providerLabels[p]
	return p, ok
}

// Label returns the display name for the provider.
func (p Provider) Label() string {
	if label, ok := providerLabels[p]; ok {
		return label
	}
	return string(p)
}

// String implements fmt.Stringer.
func (p Provider) String() string { return string(p) }

// Integration credential statuses exposed to clients.
const (
	IntegrationStatusLinked        = "linked"
	IntegrationStatusRefreshed     = "refreshed"
	IntegrationStatusRemoved       = "removed"
	IntegrationStatusNotConfigured = "not_configured"
)

// IntegrationCredential is a stored API key for one (user, provider) pair.
// The key is encrypted at rest and never serialized.
type IntegrationCredential struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Provider        Provider   `json:"provider"`
	EncryptedKey    string     `json:"-"` // Never serialize
	LastValidatedAt *time.Time `json:"last_validated_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IntegrationState is the derived per-provider view included in user
// payloads. It carries only a connected flag, never key material.
type IntegrationState struct {
	Connected       bool       `json:"connected"`
	Status          string     `json:"status"`
	LastValidatedAt *time.Time `json:"last_validated_at,omitempty"`
}

// IntegrationUpdate reports the outcome of applying a provider key override
// during register, login, or profile update.
type IntegrationUpdate struct {
	Connected       bool       `json:"connected"`
	Status          string     `json:"status"`
	JustLinked      bool       `json:"just_linked"`
	LastValidatedAt *time.Time `json:"last_validated_at,omitempty"`
}

// Integration event actions and statuses for the audit log.
const (
	EventActionValidate = "validate"
	EventActionRemove   = "remove"

	EventStatusSuccess = "success"
	EventStatusError   = "error"
)

// IntegrationEvent is an audit record of integration key activity.
type IntegrationEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Provider  Provider  `json:"provider"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
