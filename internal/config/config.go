package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/blacktop/lipost/internal/share"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all application configuration. Every field is read from the
// environment; a .env file in the working directory is loaded first.
type Config struct {
	LinkedIn struct {
		AccessToken string `env:"LIPOST_LINKEDIN_ACCESS_TOKEN"`
		PersonID    string `env:"LIPOST_LINKEDIN_PERSON_ID"`
		APIURL      string `env:"LIPOST_LINKEDIN_API_URL" env-default:"https://api.linkedin.com"`
	}
	Clerk struct {
		SecretKey     string `env:"LIPOST_CLERK_SECRET_KEY"`
		APIURL        string `env:"LIPOST_CLERK_API_URL" env-default:"https://api.clerk.com"`
		OAuthProvider string `env:"LIPOST_CLERK_OAUTH_PROVIDER" env-default:"oauth_linkedin_oidc"`
	}
	Gemini struct {
		APIKey string `env:"LIPOST_GEMINI_API_KEY"`
		Model  string `env:"LIPOST_GEMINI_MODEL" env-default:"gemini-2.5-pro"`
	}
	Bluesky struct {
		Handle      string `env:"LIPOST_BLUESKY_HANDLE"`
		AppPassword string `env:"LIPOST_BLUESKY_APP_PASSWORD"`
		PDSURL      string `env:"LIPOST_BLUESKY_PDS_URL" env-default:"https://bsky.social"`
	}
	Mastodon struct {
		Server       string `env:"LIPOST_MASTODON_SERVER"`
		AccessToken  string `env:"LIPOST_MASTODON_ACCESS_TOKEN"`
		ClientID     string `env:"LIPOST_MASTODON_CLIENT_ID"`
		ClientSecret string `env:"LIPOST_MASTODON_CLIENT_SECRET"`
	}
	Twitter struct {
		ConsumerKey       string `env:"LIPOST_TWITTER_CONSUMER_KEY"`
		ConsumerSecret    string `env:"LIPOST_TWITTER_CONSUMER_SECRET"`
		AccessToken       string `env:"LIPOST_TWITTER_ACCESS_TOKEN"`
		AccessTokenSecret string `env:"LIPOST_TWITTER_ACCESS_TOKEN_SECRET"`
		Debug             bool   `env:"LIPOST_TWITTER_DEBUG"`
	}
	Server struct {
		Addr           string `env:"LIPOST_ADDR" env-default:":8080"`
		MaxUploadBytes int64  `env:"LIPOST_MAX_UPLOAD_BYTES" env-default:"104857600"`
	}

	// HTTPTimeout bounds every individual upstream call.
	HTTPTimeout time.Duration `env:"LIPOST_HTTP_TIMEOUT" env-default:"30s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if cfg.HTTPTimeout <= 0 {
		return nil, fmt.Errorf("invalid LIPOST_HTTP_TIMEOUT: must be positive")
	}
	return cfg, nil
}

// ValidateFor checks that the credentials a target needs are present. The
// returned error names the missing environment variables.
func (c *Config) ValidateFor(target string) error {
	var fields any
	switch target {
	case "linkedin":
		fields = &c.LinkedIn
	case "clerk":
		fields = &c.Clerk
	case "gemini":
		fields = &c.Gemini
	case "bluesky":
		fields = &c.Bluesky
	case "mastodon":
		fields = &c.Mastodon
	case "twitter":
		fields = &c.Twitter
	default:
		return fmt.Errorf("unknown target %q", target)
	}

	missing := missingVariables(fields, required[target])
	if len(missing) > 0 {
		return share.ConfigurationError{Provider: target, Variables: missing}
	}
	return nil
}

// required lists, per target, the fields that must be non-empty.
var required = map[string][]string{
	"linkedin": {"AccessToken", "PersonID"},
	"clerk":    {"SecretKey"},
	"gemini":   {"APIKey"},
	"bluesky":  {"Handle", "AppPassword", "PDSURL"},
	"mastodon": {"Server", "AccessToken"},
	"twitter":  {"ConsumerKey", "ConsumerSecret", "AccessToken", "AccessTokenSecret"},
}

func missingVariables(section any, fields []string) []string {
	v := reflect.ValueOf(section).Elem()
	t := v.Type()

	var missing []string
	for _, name := range fields {
		sf, ok := t.FieldByName(name)
		if !ok {
			continue
		}
		if strings.TrimSpace(v.FieldByName(name).String()) == "" {
			missing = append(missing, sf.Tag.Get("env"))
		}
	}
	return missing
}
