package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port int
	Host string
	Env  string // "development" or "production"

	// Data directory
	DataDir string

	// Database
	DatabasePath string

	// Workspace directory for chat attachments and shared files
	WorkspaceDir string

	// Agent runtime (upstream)
	RuntimeBaseURL string
	RuntimeAPIKey  string

	// Default feature flags for new turns
	EnableSkills bool
	EnableMCP    bool

	// External services
	MeiliHost   string
	MeiliAPIKey string
	MeiliIndex  string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// OSS backup
	OSSEndpoint        string
	OSSRegion          string
	OSSBucket          string
	OSSAccessKeyID     string
	OSSAccessKeySecret string

	// OAuth settings
	AuthMode              string
	OAuthClientID         string
	OAuthClientSecret     string
	OAuthIssuerURL        string
	OAuthRedirectURI      string
	OAuthExpectedUsername string

	// Debug settings
	DBLogQueries bool
	DebugModules string
}

var (
	cfg  *Config
	once sync.Once
)

// Get returns the global configuration (singleton)
func Get() *Config {
	once.Do(func() {
		cfg = load()
	})
	return cfg
}

// load reads configuration from environment variables
func load() *Config {
	dataDir := getEnv("AGENTDECK_DATA_DIR", "./data")

	return &Config{
		// Server
		Port: getEnvInt("PORT", 8710),
		Host: getEnv("HOST", "0.0.0.0"),
		Env:  getEnv("ENV", "development"),

		// Data
		DataDir:      dataDir,
		DatabasePath: filepath.Join(dataDir, "agentdeck.sqlite"),
		WorkspaceDir: getEnv("AGENTDECK_WORKSPACE_DIR", filepath.Join(dataDir, "workspace")),

		// Agent runtime
		RuntimeBaseURL: getEnv("AGENT_RUNTIME_URL", "http://localhost:8000"),
		RuntimeAPIKey:  getEnv("AGENT_RUNTIME_API_KEY", ""),

		// Feature flags
		EnableSkills: getEnv("AGENTDECK_ENABLE_SKILLS", "") == "1",
		EnableMCP:    getEnv("AGENTDECK_ENABLE_MCP", "") == "1",

		// Meilisearch
		MeiliHost:   getEnv("MEILI_HOST", ""),
		MeiliAPIKey: getEnv("MEILI_API_KEY", ""),
		MeiliIndex:  getEnv("MEILI_INDEX", "agentdeck_messages"),

		// OpenAI
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		// OSS backup
		OSSEndpoint:        getEnv("OSS_ENDPOINT", ""),
		OSSRegion:          getEnv("OSS_REGION", ""),
		OSSBucket:          getEnv("OSS_BUCKET", ""),
		OSSAccessKeyID:     getEnv("OSS_ACCESS_KEY_ID", ""),
		OSSAccessKeySecret: getEnv("OSS_ACCESS_KEY_SECRET", ""),

		// OAuth
		AuthMode:              getEnv("AGENTDECK_AUTH_MODE", "none"),
		OAuthClientID:         getEnv("AGENTDECK_OAUTH_CLIENT_ID", ""),
		OAuthClientSecret:     getEnv("AGENTDECK_OAUTH_CLIENT_SECRET", ""),
		OAuthIssuerURL:        getEnv("AGENTDECK_OAUTH_ISSUER_URL", ""),
		OAuthRedirectURI:      getEnv("AGENTDECK_OAUTH_REDIRECT_URI", ""),
		OAuthExpectedUsername: getEnv("AGENTDECK_OAUTH_EXPECTED_USER", ""),

		// Debug
		DBLogQueries: getEnv("DB_LOG_QUERIES", "") == "1",
		DebugModules: getEnv("DEBUG", ""),
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}

// SearchEnabled reports whether a Meilisearch instance is configured
func (c *Config) SearchEnabled() bool {
	return c.MeiliHost != ""
}

// TitlingEnabled reports whether OpenAI-backed session titling is configured
func (c *Config) TitlingEnabled() bool {
	return c.OpenAIAPIKey != ""
}

// BackupEnabled reports whether OSS archive backup is configured
func (c *Config) BackupEnabled() bool {
	return c.OSSBucket != "" && c.OSSAccessKeyID != ""
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
