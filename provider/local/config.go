package local

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultIssuer        = "hrm-local"
	DefaultTokenTTL      = 12 * time.Hour
	DefaultSessionRecord = "hrm-backend-session"
)

// Config configures the local backend
type Config struct {
	// SigningKey signs session tokens with HS256
	SigningKey []byte
	Issuer     string
	TokenTTL   time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost
	BcryptCost int
	// SessionRecord is the record the session token is kept in
	SessionRecord string
}

func (c Config) withDefaults() Config {
	if c.Issuer == "" {
		c.Issuer = DefaultIssuer
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = DefaultTokenTTL
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
	if c.SessionRecord == "" {
		c.SessionRecord = DefaultSessionRecord
	}
	return c
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.SigningKey, validation.Required, validation.Length(16, 0)),
		validation.Field(&c.BcryptCost, validation.Min(bcrypt.MinCost), validation.Max(bcrypt.MaxCost)),
	)
}
