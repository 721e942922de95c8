package main

import (
	"fmt"
	"io"
	"os"

	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/goliatone/go-dashboard-auth/provider/local"
	"github.com/goliatone/go-errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// seedFile is the layout read by users seed
//
//	users:
//	  - email: admin@example.com
//	    password: change-me-now
//	    role: admin
//	    display_name: Admin
//	    confirmed: true
type seedFile struct {
	Users []local.Registration `yaml:"users"`
}

type seedResult struct {
	Email   string `json:"email"`
	ID      string `json:"id,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
}

func (c *cli) usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Provision local accounts",
	}
	cmd.AddCommand(c.usersAddCmd(), c.usersSeedCmd())
	return cmd
}

func (c *cli) usersAddCmd() *cobra.Command {
	var reg local.Registration
	var role string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg.Role = auth.UserRole(role)
			return c.withApp(cmd.Context(), func(a *app) error {
				user, err := a.provider.Register(cmd.Context(), reg)
				if err != nil {
					return userError(err)
				}

				result := seedResult{Email: user.Email, ID: user.ID.String()}
				return c.print(cmd.OutOrStdout(), result, func(out io.Writer) {
					fmt.Fprintf(out, "created %s (%s) role=%s\n", user.Email, user.ID, user.Role)
				})
			})
		},
	}

	cmd.Flags().StringVarP(&reg.Email, "email", "e", "", "Account email (required)")
	cmd.Flags().StringVarP(&reg.Password, "password", "p", "", "Account password (required)")
	cmd.Flags().StringVarP(&role, "role", "r", string(auth.RoleUser), "user, mentor, admin or superadmin")
	cmd.Flags().StringVar(&reg.DisplayName, "name", "", "Display name")
	cmd.Flags().BoolVar(&reg.Confirmed, "confirmed", false, "Mark the email address as verified")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func (c *cli) usersSeedCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the accounts listed in a YAML file, existing emails are skipped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := readSeedFile(file)
			if err != nil {
				return err
			}

			return c.withApp(cmd.Context(), func(a *app) error {
				results := make([]seedResult, 0, len(seed.Users))
				for _, reg := range seed.Users {
					user, err := a.provider.Register(cmd.Context(), reg)
					if errors.Is(err, local.ErrEmailTaken) {
						results = append(results, seedResult{Email: reg.Email, Skipped: true})
						continue
					}
					if err != nil {
						return errors.Wrap(err, errors.CategoryBadInput, "seed failed").
							WithMetadata(map[string]any{"email": reg.Email})
					}
					results = append(results, seedResult{Email: user.Email, ID: user.ID.String()})
				}

				return c.print(cmd.OutOrStdout(), results, func(out io.Writer) {
					for _, r := range results {
						if r.Skipped {
							fmt.Fprintf(out, "skipped %s (exists)\n", r.Email)
							continue
						}
						fmt.Fprintf(out, "created %s (%s)\n", r.Email, r.ID)
					}
				})
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML seed file (required)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func readSeedFile(path string) (*seedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "failed to read seed file").
			WithMetadata(map[string]any{"file": path})
	}

	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "failed to parse seed file").
			WithMetadata(map[string]any{"file": path})
	}
	return &seed, nil
}
