package csrf

import "github.com/gofiber/fiber/v2"

// RouteConfig controls how the CSRF token bootstrap endpoint behaves.
type RouteConfig struct {
	// Path is the route registered for retrieving the CSRF token.
	Path string
	// ContextKey is the Locals key where the middleware stored the token.
	ContextKey string
	// RouteName is the name assigned to the registered route.
	RouteName string
}

const (
	defaultRoutePath = "/csrf"
	defaultRouteName = "auth.csrf.get"
)

// RegisterRoutes registers a GET endpoint that returns the CSRF token and
// the form field and header names. The CSRF middleware must run first.
func RegisterRoutes(r fiber.Router, cfg ...RouteConfig) {
	conf := routeConfigDefault(cfg...)
	r.Get(conf.Path, tokenHandler(conf)).Name(conf.RouteName)
}

func routeConfigDefault(cfg ...RouteConfig) RouteConfig {
	conf := RouteConfig{
		Path:       defaultRoutePath,
		ContextKey: DefaultContextKey,
		RouteName:  defaultRouteName,
	}
	if len(cfg) == 0 {
		return conf
	}

	c := cfg[0]
	if c.Path != "" {
		conf.Path = c.Path
	}
	if c.ContextKey != "" {
		conf.ContextKey = c.ContextKey
	}
	if c.RouteName != "" {
		conf.RouteName = c.RouteName
	}
	return conf
}

func tokenHandler(cfg RouteConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := Token(c, cfg.ContextKey)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": ErrTokenMissing.Error(),
			})
		}

		c.Set(fiber.HeaderCacheControl, "no-store, max-age=0")
		c.Set(fiber.HeaderPragma, "no-cache")
		c.Set(fiber.HeaderExpires, "0")

		fieldName := DefaultFormFieldName
		if v, ok := c.Locals(cfg.ContextKey + "_field").(string); ok && v != "" {
			fieldName = v
		}

		headerName := DefaultHeaderName
		if v, ok := c.Locals(cfg.ContextKey + "_header").(string); ok && v != "" {
			headerName = v
		}

		return c.JSON(fiber.Map{
			"token":       token,
			"field_name":  fieldName,
			"header_name": headerName,
		})
	}
}
