package main

import (
	"encoding/json"
	"fmt"
	"io"

	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/goliatone/go-dashboard-auth/adapters/zaplog"
	"github.com/goliatone/go-dashboard-auth/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cli holds the state shared by every command of one invocation
type cli struct {
	envFiles []string
	verbose  bool
	asJSON   bool

	cfg    config.AppConfig
	logger *zaplog.Logger
}

func newRootCmd() *cobra.Command {
	return (&cli{}).rootCmd()
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hrmctl",
		Short: "Sign in to and administer the HRM dashboard",
		Long: `hrmctl manages the session of the HRM dashboard against the local
account database: sign in and out, inspect who is signed in, edit the
profile, provision accounts and run the dashboard console.

Configuration comes from HRM_ environment variables, optionally loaded
from an env file (.env by default).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringSliceVar(&c.envFiles, "env-file", nil, "Env file to load (default .env)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&c.asJSON, "json", false, "Print results as JSON")

	root.AddCommand(
		c.loginCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.canAccessCmd(),
		c.profileCmd(),
		c.passwordCmd(),
		c.usersCmd(),
		c.serveCmd(),
	)

	return root
}

func (c *cli) init() error {
	cfg, err := config.Load(c.envFiles...)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg

	if c.logger == nil {
		verbose := c.verbose || cfg.Debug
		if verbose {
			logger, err := zaplog.NewProduction(true)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			c.logger = logger
		} else {
			// commands print their own results, only warnings go to the log
			logger, err := zap.NewProduction(zap.IncreaseLevel(zap.WarnLevel))
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			c.logger = zaplog.New(logger)
		}
	}

	auth.DefaultPhoneRegion = cfg.PhoneRegion
	return nil
}

func (c *cli) print(out io.Writer, v any, text func(io.Writer)) error {
	if c.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(out)
	return nil
}
