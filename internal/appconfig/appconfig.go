package appconfig

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"
)

// Config holds all configuration details
type Config struct {
	Host     string         `yaml:"host"`
	Port     int            `yaml:"port"`
	Keycloak KeycloakConfig `yaml:"keycloak"`
	SSO      SSOConfig      `yaml:"sso"`
	Session  SessionConfig  `yaml:"session"`
}

// KeycloakConfig describes the realm the identity provider runs against. It
// is loaded once at startup and never mutated afterwards.
type KeycloakConfig struct {
	URL          string `yaml:"url"`
	Realm        string `yaml:"realm"`
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`

	// UseUsernameAsID makes the username, rather than the internal
	// Keycloak id, the engine-visible user id.
	UseUsernameAsID bool `yaml:"useUsernameAsId"`

	// UseRolesAsGroups additionally exposes realm roles as groups.
	UseRolesAsGroups bool `yaml:"useRolesAsGroups"`

	// AdminGroups names the groups whose members administer the engine.
	AdminGroups []string `yaml:"adminGroups"`

	// MaxResults bounds candidate listings fetched from the realm.
	MaxResults int `yaml:"maxResults"`

	// Attributes overrides which remote user attribute feeds each field.
	Attributes AttributeMapping `yaml:"attributes"`

	// SelfVisibilityOverridesIDFilters controls whether an authenticated
	// user still sees their own record when an explicit id filter names
	// only other users. The default keeps the exclusion.
	SelfVisibilityOverridesIDFilters bool `yaml:"selfVisibilityOverridesIdFilters"`
}

// AttributeMapping maps custom realm user attributes onto identity fields.
// Empty entries fall back to the built-in Keycloak fields.
type AttributeMapping struct {
	FirstName string `yaml:"firstName"`
	LastName  string `yaml:"lastName"`
	Email     string `yaml:"email"`
}

// SSOConfig defines the OpenID Connect login parameters of the sample app
type SSOConfig struct {
	ClientID     string   `yaml:"clientId"`
	ClientSecret string   `yaml:"clientSecret"`
	RedirectURL  string   `yaml:"redirectUrl"`
	Scopes       []string `yaml:"scopes"`
}

// SessionConfig defines the sample app's session cookie parameters
type SessionConfig struct {
	Secret     string `yaml:"secret"`
	CookieName string `yaml:"cookieName"`
	TTLMinutes int    `yaml:"ttlMinutes"`
}

// ConfigurationError reports a malformed or missing realm parameter. It is
// raised at startup, never per query.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// defaultMaxResults bounds listings when maxResults is left unset.
const defaultMaxResults = 250

// Validate checks the realm parameters and applies defaults.
func (kc *KeycloakConfig) Validate() error {
	if kc.URL == "" {
		return &ConfigurationError{Field: "keycloak.url", Reason: "base URL is required"}
	}
	if kc.Realm == "" {
		return &ConfigurationError{Field: "keycloak.realm", Reason: "realm name is required"}
	}
	if kc.ClientID == "" || kc.ClientSecret == "" {
		return &ConfigurationError{Field: "keycloak.clientId", Reason: "admin client credentials are required"}
	}
	if kc.MaxResults < 0 {
		return &ConfigurationError{Field: "keycloak.maxResults", Reason: "must not be negative"}
	}
	if kc.MaxResults == 0 {
		kc.MaxResults = defaultMaxResults
	}
	return nil
}

// LoadConfig loads and parses the configuration from a given file path
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, &ConfigurationError{Field: "config", Reason: "config file path is required"}
	}

	// Parse the template file
	tmpl, err := template.ParseFiles(path)
	if err != nil {
		log.Error().Err(err).Msg("error parsing config file template")
		return nil, err
	}

	// Create a map of environment variables
	envVars := loadEnvVars()

	// Execute the template with environment variables
	var buf bytes.Buffer
	err = tmpl.Execute(&buf, envVars)
	if err != nil {
		log.Error().Err(err).Msg("error executing config file template")
		return nil, err
	}

	// Load and unmarshal the YAML
	var config Config
	if err := yaml.Unmarshal(buf.Bytes(), &config); err != nil {
		log.Error().Err(err).Msg("failed to unmarshal config YAML")
		return nil, err
	}

	if err := config.Keycloak.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// loadEnvVars loads environment variables into a map
func loadEnvVars() map[string]string {
	envVars := make(map[string]string)
	for _, env := range os.Environ() {
		kv := strings.SplitN(env, "=", 2)
		if len(kv) == 2 {
			envVars[kv[0]] = kv[1]
		}
	}
	return envVars
}
