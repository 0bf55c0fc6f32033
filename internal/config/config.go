package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	firebase "firebase.google.com/go/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"google.golang.org/api/option"
)

const (
	BackendFirebase = "firebase"
	BackendLocal    = "local"
)

// Config is read from the environment (and an optional config.yml).
type Config struct {
	Port           string `mapstructure:"PORT"`
	BindAddr       string `mapstructure:"BIND_ADDR"`
	Backend        string `mapstructure:"BACKEND"`
	DataDir        string `mapstructure:"DATA_DIR"`
	NoAuth         bool   `mapstructure:"NO_AUTH"`
	ProjectID      string `mapstructure:"FIREBASE_PROJECT_ID"`
	StorageBucket  string `mapstructure:"FIREBASE_STORAGE_BUCKET"`
	ServiceAccount string `mapstructure:"FIREBASE_SERVICE_ACCOUNT_JSON"`
	CredentialFile string `mapstructure:"GOOGLE_APPLICATION_CREDENTIALS"`
	AuthEmulator   string `mapstructure:"FIREBASE_AUTH_EMULATOR_HOST"`
	PageSize       int    `mapstructure:"PAGE_SIZE"`
	SurfaceErrors  bool   `mapstructure:"SURFACE_ERRORS"`
	PublicURL      string `mapstructure:"PUBLIC_URL"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	// SeedPosts generates demo posts into an empty local store.
	SeedPosts int `mapstructure:"SEED_POSTS"`
}

var keys = []string{
	"PORT", "BIND_ADDR", "BACKEND", "DATA_DIR", "NO_AUTH", "FIREBASE_PROJECT_ID",
	"FIREBASE_STORAGE_BUCKET", "FIREBASE_SERVICE_ACCOUNT_JSON",
	"GOOGLE_APPLICATION_CREDENTIALS", "FIREBASE_AUTH_EMULATOR_HOST",
	"PAGE_SIZE", "SURFACE_ERRORS", "PUBLIC_URL", "LOG_LEVEL", "SEED_POSTS",
}

// Load reads configuration into a fresh viper instance. A .env file in the
// working directory is applied first; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AutomaticEnv()
	// Unmarshal only sees env values for keys viper already knows about.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// config.yml is optional
	_ = v.ReadInConfig()

	v.SetDefault("PORT", "8088")
	// The session is process-wide, so stay on loopback unless told otherwise.
	v.SetDefault("BIND_ADDR", "127.0.0.1")
	v.SetDefault("BACKEND", BackendFirebase)
	v.SetDefault("DATA_DIR", defaultDataDir())
	v.SetDefault("NO_AUTH", false)
	v.SetDefault("PAGE_SIZE", 20)
	v.SetDefault("SURFACE_ERRORS", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SEED_POSTS", 0)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if cfg.PublicURL == "" {
		cfg.PublicURL = "http://localhost:" + cfg.Port
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func defaultDataDir() string {
	if _, err := os.Stat("/data"); err == nil {
		return "/data"
	}
	return filepath.Join(".", "data")
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.PageSize <= 0 {
		return errors.New("PAGE_SIZE must be positive")
	}
	if c.SeedPosts < 0 {
		return errors.New("SEED_POSTS must not be negative")
	}
	switch c.Backend {
	case BackendLocal:
		if c.DataDir == "" {
			return errors.New("DATA_DIR is required for the local backend")
		}
	case BackendFirebase:
		if c.ProjectID == "" {
			return errors.New("FIREBASE_PROJECT_ID not set")
		}
		if c.StorageBucket == "" {
			return errors.New("FIREBASE_STORAGE_BUCKET not set")
		}
	default:
		return fmt.Errorf("unknown BACKEND %q", c.Backend)
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string { return net.JoinHostPort(c.BindAddr, c.Port) }

// AllowedOrigin is the browser origin of PUBLIC_URL, the only origin
// allowed to make cross-site requests.
func (c *Config) AllowedOrigin() string {
	u, err := url.Parse(c.PublicURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

// Paths are the files used by the local backend.
type Paths struct {
	DataDir      string
	UploadsDir   string
	PostsFile    string
	ProfilesFile string
	UsersFile    string
}

func (c *Config) Paths() Paths {
	return Paths{
		DataDir:      c.DataDir,
		UploadsDir:   filepath.Join(c.DataDir, "uploads"),
		PostsFile:    filepath.Join(c.DataDir, "posts.json"),
		ProfilesFile: filepath.Join(c.DataDir, "profiles.json"),
		UsersFile:    filepath.Join(c.DataDir, "users.json"),
	}
}

func EnsureDir(dir string) error { return os.MkdirAll(dir, 0o755) }

// ClientOptions picks Firebase credentials: inline JSON, then a credentials
// file. With neither set only the auth emulator or NO_AUTH can work.
func (c *Config) ClientOptions() ([]option.ClientOption, error) {
	var opts []option.ClientOption
	switch {
	case c.ServiceAccount != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(c.ServiceAccount)))
	case c.CredentialFile != "":
		if _, err := os.Stat(c.CredentialFile); err != nil {
			return nil, fmt.Errorf("GOOGLE_APPLICATION_CREDENTIALS %q not readable: %w", c.CredentialFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(c.CredentialFile))
	case c.AuthEmulator == "" && !c.NoAuth:
		return nil, errors.New("missing Firebase credentials: set FIREBASE_SERVICE_ACCOUNT_JSON or GOOGLE_APPLICATION_CREDENTIALS, or use FIREBASE_AUTH_EMULATOR_HOST / NO_AUTH=1")
	}
	return opts, nil
}

// NewFirebaseApp initializes the Firebase app used for auth, Firestore and Storage.
func (c *Config) NewFirebaseApp(ctx context.Context) (*firebase.App, error) {
	opts, err := c.ClientOptions()
	if err != nil {
		return nil, err
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:     c.ProjectID,
		StorageBucket: c.StorageBucket,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase init: %w", err)
	}
	return app, nil
}
