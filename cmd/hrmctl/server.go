package main

import (
	"crypto/sha256"
	"embed"
	"io/fs"
	"net/http"
	"path"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/template/django/v3"
	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/goliatone/go-dashboard-auth/adapters/promsink"
	"github.com/goliatone/go-dashboard-auth/config"
	"github.com/goliatone/go-dashboard-auth/middleware/csrf"
	"github.com/goliatone/go-dashboard-auth/middleware/guardware"
)

//go:embed views
var viewsFS embed.FS

// console is the dashboard web surface over one auth stack
type console struct {
	service  *auth.AuthService
	store    *auth.SessionStore
	metrics  *promsink.Sink
	activity auth.ActivitySink
	http     config.HTTPConfig
	logger   auth.Logger

	// csrfKey signs form tokens, csrfStorage replaces signing when set
	csrfKey     []byte
	csrfStorage csrf.Storage
}

// csrfKeyFrom derives the form token key from the session signing key
func csrfKeyFrom(signingKey string) []byte {
	sum := sha256.Sum256([]byte("csrf:" + signingKey))
	return sum[:]
}

func newViewEngine() (*django.Engine, error) {
	views, err := fs.Sub(viewsFS, "views")
	if err != nil {
		return nil, err
	}
	return django.NewFileSystem(http.FS(views), ".html"), nil
}

func (s *console) routes() (*fiber.App, error) {
	engine, err := newViewEngine()
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		Views:                 engine,
		ReadTimeout:           s.http.ReadTimeout,
		WriteTimeout:          s.http.WriteTimeout,
		DisableStartupMessage: true,
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "signed_in": s.store.Identity() != nil})
	})

	if s.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}

	app.Use(csrf.New(csrf.Config{
		SecureKey: s.csrfKey,
		Storage:   s.csrfStorage,
	}))
	csrf.RegisterRoutes(app)

	app.Get(s.http.SignInPath, s.signInPage)
	app.Post(s.http.SignInPath, s.signIn)
	app.Post("/signout", s.signOut)

	// every signed in role may open the home page, so denials from the
	// areas below can always land there
	home := s.guard(auth.WithGuardRequiredRoles(auth.GetAllRoles()...))
	app.Get(s.http.HomePath, home, s.homePage)
	app.Post(s.profilePath(), home, s.updateProfile)

	app.Get("/mentor", s.guard(auth.WithGuardRouteClass(auth.RouteMentor)), s.areaPage("Mentor area"))
	app.Get("/admin", s.guard(auth.WithGuardRouteClass(auth.RouteAdmin)), s.areaPage("Admin area"))

	return app, nil
}

func (s *console) profilePath() string {
	return path.Join(s.http.HomePath, "profile")
}

func (s *console) guard(opts ...auth.GuardOption) fiber.Handler {
	opts = append(opts,
		auth.WithGuardSignInPath(s.http.SignInPath),
		auth.WithGuardHomePath(s.http.HomePath),
		auth.WithGuardLogger(s.logger),
		auth.WithGuardActivitySink(s.activity),
	)

	return guardware.New(guardware.Config{
		Guard:  auth.NewRouteGuard(s.store, s.service, opts...),
		Logger: s.logger,
		LoadingHandler: func(c *fiber.Ctx) error {
			return c.Render("loading", fiber.Map{"Path": c.OriginalURL()})
		},
	})
}

func (s *console) signInPage(c *fiber.Ctx) error {
	if s.store.Identity() != nil {
		return c.Redirect(s.http.HomePath, fiber.StatusSeeOther)
	}
	return c.Render("signin", s.view(c, fiber.Map{"Action": s.http.SignInPath}))
}

func (s *console) signIn(c *fiber.Ctx) error {
	email := c.FormValue("email")
	result, err := s.service.SignIn(c.UserContext(), email, c.FormValue("password"))
	if err != nil {
		status := fiber.StatusUnauthorized
		if auth.IsValidationFailure(err) {
			status = fiber.StatusUnprocessableEntity
		}
		return c.Status(status).Render("signin", s.view(c, fiber.Map{
			"Action": s.http.SignInPath,
			"Email":  email,
			"Error":  auth.ErrorMessage(err),
		}))
	}

	if result.NeedsVerification {
		s.logger.Info("signed in with unverified email", "user_id", result.Identity.ID)
	}
	return c.Redirect(s.http.HomePath, fiber.StatusSeeOther)
}

func (s *console) signOut(c *fiber.Ctx) error {
	if err := s.service.SignOut(c.UserContext()); err != nil {
		s.logger.Error("sign out failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).SendString(auth.ErrorMessage(err))
	}
	return c.Redirect(s.http.SignInPath, fiber.StatusSeeOther)
}

func (s *console) homePage(c *fiber.Ctx) error {
	identity := guardware.Identity(c)
	return c.Render("home", s.view(c, fiber.Map{
		"Identity":      newIdentityView(identity),
		"ProfileAction": s.profilePath(),
		"CanMentor":     s.service.CanAccessRoute(auth.RouteMentor),
		"CanAdmin":      s.service.CanAccessRoute(auth.RouteAdmin),
	}))
}

func (s *console) updateProfile(c *fiber.Ctx) error {
	name := c.FormValue("display_name")
	phone := c.FormValue("phone")
	patch := auth.ProfilePatch{DisplayName: &name, Phone: &phone}

	identity, err := s.service.UpdateProfile(c.UserContext(), patch)
	if err != nil {
		current := guardware.Identity(c)
		status := fiber.StatusBadRequest
		if !auth.IsValidationFailure(err) {
			status = fiber.StatusInternalServerError
		}
		return c.Status(status).Render("home", s.view(c, fiber.Map{
			"Identity":      newIdentityView(current),
			"ProfileAction": s.profilePath(),
			"Error":         auth.ErrorMessage(err),
		}))
	}

	s.logger.Debug("profile updated from console", "user_id", identity.ID)
	return c.Redirect(s.http.HomePath, fiber.StatusSeeOther)
}

func (s *console) areaPage(title string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Render("area", s.view(c, fiber.Map{
			"Title":    title,
			"Identity": newIdentityView(guardware.Identity(c)),
		}))
	}
}

// view adds the form token fields to data
func (s *console) view(c *fiber.Ctx, data fiber.Map) fiber.Map {
	for k, v := range csrf.TemplateData(c) {
		data[k] = v
	}
	return data
}
