package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/goliatone/go-errors"
	"github.com/spf13/cobra"
)

type identityView struct {
	ID                string        `json:"id"`
	Email             string        `json:"email"`
	Role              auth.UserRole `json:"role"`
	DisplayName       string        `json:"display_name,omitempty"`
	Phone             string        `json:"phone,omitempty"`
	NeedsVerification bool          `json:"needs_verification,omitempty"`
}

func newIdentityView(identity *auth.Identity) identityView {
	v := identityView{
		ID:    identity.ID,
		Email: identity.Email,
		Role:  identity.Role,
	}
	if identity.Profile != nil {
		v.DisplayName = identity.Profile.DisplayName
		v.Phone = identity.Profile.Phone
	}
	return v
}

func (v identityView) write(out io.Writer) {
	fmt.Fprintf(out, "%s <%s> role=%s\n", v.ID, v.Email, v.Role)
	if v.DisplayName != "" {
		fmt.Fprintf(out, "  name:  %s\n", v.DisplayName)
	}
	if v.Phone != "" {
		fmt.Fprintf(out, "  phone: %s\n", v.Phone)
	}
	if v.NeedsVerification {
		fmt.Fprintln(out, "  email address not verified yet")
	}
}

func (c *cli) loginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Long: `Signs in against the local account database and caches the identity.
When --password is omitted the password is read from the first line of stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				var err error
				if password, err = readLine(cmd.InOrStdin()); err != nil {
					return err
				}
			}

			return c.withApp(cmd.Context(), func(a *app) error {
				result, err := a.service.SignIn(cmd.Context(), email, password)
				if err != nil {
					return userError(err)
				}

				view := newIdentityView(result.Identity)
				view.NeedsVerification = result.NeedsVerification
				return c.print(cmd.OutOrStdout(), view, func(out io.Writer) {
					fmt.Fprint(out, "signed in as ")
					view.write(out)
				})
			})
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email (required)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the cached identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				if err := a.service.SignOut(cmd.Context()); err != nil {
					return userError(err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "signed out")
				return nil
			})
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Resolve and print the signed in identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				identity, err := a.service.CurrentIdentity(cmd.Context())
				if err != nil {
					return userError(err)
				}
				if identity == nil {
					return c.print(cmd.OutOrStdout(), nil, func(out io.Writer) {
						fmt.Fprintln(out, "not signed in")
					})
				}

				view := newIdentityView(identity)
				return c.print(cmd.OutOrStdout(), view, view.write)
			})
		},
	}
}

func (c *cli) canAccessCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "can-access [public|mentor|admin]",
		Short:     "Report whether the cached identity may open a route class",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(auth.RoutePublic), string(auth.RouteMentor), string(auth.RouteAdmin)},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				class := auth.RouteClass(strings.ToLower(args[0]))
				allowed := a.service.CanAccessRoute(class)
				return c.print(cmd.OutOrStdout(), map[string]any{"route": class, "allowed": allowed}, func(out io.Writer) {
					if allowed {
						fmt.Fprintf(out, "%s: allowed\n", class)
						return
					}
					fmt.Fprintf(out, "%s: denied\n", class)
				})
			})
		},
	}
}

func readLine(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to read password")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// displayError prints the message meant for users and keeps the cause
type displayError struct {
	msg string
	err error
}

func (e *displayError) Error() string { return e.msg }
func (e *displayError) Unwrap() error { return e.err }

func userError(err error) error {
	return &displayError{msg: auth.ErrorMessage(err), err: err}
}
