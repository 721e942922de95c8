package guardware

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/goliatone/go-print"
)

// DefaultRetryAfter is the Retry-After hint, in seconds, sent with the
// loading response
const DefaultRetryAfter = 1

type Config struct {
	// Filter skips the guard when it returns true
	Filter func(*fiber.Ctx) bool
	// Guard decides access. Required.
	Guard *auth.RouteGuard
	// ContextKey is the Locals key the allowed identity is stored under
	ContextKey string
	// LoadingHandler renders the placeholder shown while the session
	// is still resolving
	LoadingHandler fiber.Handler
	// DeniedHandler answers a denied request. The default redirects to
	// the decision destination.
	DeniedHandler func(c *fiber.Ctx, d auth.Decision) error
	// SuccessHandler runs once access is granted
	SuccessHandler fiber.Handler
	Logger         auth.Logger
	RetryAfter     int
}

// New returns a handler gating the routes below it on the guard decision
func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		d := cfg.Guard.Resolve(c.UserContext())
		switch d.State {
		case auth.GuardAllowed:
			c.Locals(cfg.ContextKey, d.Identity)
			return cfg.SuccessHandler(c)
		case auth.GuardDenied:
			cfg.Logger.Debug("guardware denied request", "path", c.Path(), "destination", d.Destination)
			cfg.Guard.RecordDenial(c.UserContext(), d, map[string]any{"path": c.Path()})
			return cfg.DeniedHandler(c, d)
		default:
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(cfg.RetryAfter))
			return cfg.LoadingHandler(c)
		}
	}
}

// GetDefaultConfig fills the unset fields of the first config
func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Guard == nil {
		panic("AUTH: guard middleware configuration: Guard is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "identity"
	}

	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = DefaultRetryAfter
	}

	cfg.Logger = auth.ResolveLogger(cfg.Logger)

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.LoadingHandler == nil {
		cfg.LoadingHandler = func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusOK).SendString("Loading...")
		}
	}

	if cfg.DeniedHandler == nil {
		logger := cfg.Logger
		cfg.DeniedHandler = func(c *fiber.Ctx, d auth.Decision) error {
			if d.Destination == "" {
				logger.Error("guardware denial without destination", "decision", print.MaybePrettyJSON(d))
				return c.SendStatus(fiber.StatusForbidden)
			}
			return c.Redirect(d.Destination, fiber.StatusSeeOther)
		}
	}

	return cfg
}

// Identity returns the identity the guard stored for an allowed request
func Identity(c *fiber.Ctx, key ...string) *auth.Identity {
	k := "identity"
	if len(key) > 0 && key[0] != "" {
		k = key[0]
	}
	identity, _ := c.Locals(k).(*auth.Identity)
	return identity
}
