package config

import (
	"os"
	"strings"
	"time"

	env "github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// AppConfig is the hrmctl configuration, read from HRM_ prefixed
// environment variables and an optional .env file.
type AppConfig struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	// PhoneRegion is the default region used to parse phone numbers
	// without a country code.
	PhoneRegion string `env:"PHONE_REGION" envDefault:"US"`

	Database DatabaseConfig `envPrefix:"DB_"`
	Auth     AuthConfig     `envPrefix:"AUTH_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	HTTP     HTTPConfig     `envPrefix:"HTTP_"`
}

type DatabaseConfig struct {
	DSN   string `env:"DSN" envDefault:"file:hrm.db?cache=shared&_fk=1"`
	Debug bool   `env:"DEBUG" envDefault:"false"`
}

type AuthConfig struct {
	SigningKey    string        `env:"SIGNING_KEY"`
	Issuer        string        `env:"ISSUER" envDefault:"hrm-local"`
	TokenTTL      time.Duration `env:"TOKEN_TTL" envDefault:"12h"`
	BcryptCost    int           `env:"BCRYPT_COST" envDefault:"10"`
	StorageName   string        `env:"STORAGE_NAME" envDefault:"hrm-auth-storage"`
	SessionRecord string        `env:"SESSION_RECORD" envDefault:"hrm-backend-session"`
}

// RedisConfig enables the cross process session event bus when URL is set
type RedisConfig struct {
	URL     string `env:"URL"`
	Channel string `env:"CHANNEL" envDefault:"hrm:auth:session-events"`
}

func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

type HTTPConfig struct {
	Addr         string        `env:"ADDR" envDefault:":8080"`
	SignInPath   string        `env:"SIGNIN_PATH" envDefault:"/signin"`
	HomePath     string        `env:"HOME_PATH" envDefault:"/"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	Metrics      bool          `env:"METRICS" envDefault:"true"`
}

func (d DatabaseConfig) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.DSN, validation.Required),
	)
}

func (a AuthConfig) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.SigningKey, validation.Required, validation.Length(16, 0)),
		validation.Field(&a.StorageName, validation.Required),
		validation.Field(&a.SessionRecord, validation.Required),
	)
}

// Sanitize clamps values loaded from the environment into usable ranges
func (c *AppConfig) Sanitize() {
	c.PhoneRegion = strings.ToUpper(strings.TrimSpace(c.PhoneRegion))
	if c.PhoneRegion == "" {
		c.PhoneRegion = "US"
	}

	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = 12 * time.Hour
	}

	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		c.Auth.BcryptCost = bcrypt.DefaultCost
	}

	c.HTTP.SignInPath = ensureLeadingSlash(c.HTTP.SignInPath, "/signin")
	c.HTTP.HomePath = ensureLeadingSlash(c.HTTP.HomePath, "/")

	if c.HTTP.ReadTimeout <= 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout <= 0 {
		c.HTTP.WriteTimeout = 10 * time.Second
	}
}

// Validate checks the settings every command needs
func (c AppConfig) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Database),
		validation.Field(&c.Auth),
	)
	if err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid configuration").
			WithTextCode("CONFIG_INVALID")
	}
	return nil
}

// Load reads files (".env" when none are given) into the process
// environment, then parses the HRM_ variables. Missing files are ignored.
func Load(files ...string) (AppConfig, error) {
	for _, file := range dotenvFiles(files) {
		if err := godotenv.Load(file); err != nil {
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) {
				return AppConfig{}, errors.Wrap(err, errors.CategoryInternal, "failed to load env file").
					WithMetadata(map[string]any{"file": file})
			}
		}
	}

	return parse(env.Options{Prefix: "HRM_"})
}

// FromMap parses the configuration from vars instead of the process
// environment.
func FromMap(vars map[string]string) (AppConfig, error) {
	return parse(env.Options{Prefix: "HRM_", Environment: vars})
}

func parse(opts env.Options) (AppConfig, error) {
	var cfg AppConfig
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, errors.Wrap(err, errors.CategoryBadInput, "failed to parse configuration")
	}

	cfg.Sanitize()
	return cfg, nil
}

func dotenvFiles(files []string) []string {
	if len(files) == 0 {
		return []string{".env"}
	}
	return files
}

func ensureLeadingSlash(path, fallback string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return fallback
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}
