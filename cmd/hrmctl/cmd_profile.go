package main

import (
	"fmt"
	"io"
	"time"

	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/goliatone/go-errors"
	"github.com/spf13/cobra"
)

func (c *cli) profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Edit the profile of the signed in user",
	}
	cmd.AddCommand(c.profileSetCmd())
	return cmd
}

func (c *cli) profileSetCmd() *cobra.Command {
	var name, avatar, gender, phone, birthdate string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update profile fields, only the flags given are changed",
		Example: `  hrmctl profile set --name "Ana Pérez" --phone "+14155552671"
  hrmctl profile set --phone ""`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			patch := auth.ProfilePatch{}
			if flags.Changed("name") {
				patch.DisplayName = &name
			}
			if flags.Changed("avatar-url") {
				patch.AvatarURL = &avatar
			}
			if flags.Changed("gender") {
				patch.Gender = &gender
			}
			if flags.Changed("phone") {
				patch.Phone = &phone
			}
			if flags.Changed("birthdate") {
				day, err := time.Parse(time.DateOnly, birthdate)
				if err != nil {
					return errors.New("birthdate must look like 2006-01-02", errors.CategoryBadInput)
				}
				patch.Birthdate = &day
			}

			if patch.IsEmpty() {
				return errors.New("nothing to update, pass at least one field flag", errors.CategoryBadInput)
			}

			return c.withApp(cmd.Context(), func(a *app) error {
				if _, err := a.service.CurrentIdentity(cmd.Context()); err != nil {
					return userError(err)
				}

				identity, err := a.service.UpdateProfile(cmd.Context(), patch)
				if err != nil {
					return userError(err)
				}

				view := newIdentityView(identity)
				return c.print(cmd.OutOrStdout(), view, func(out io.Writer) {
					fmt.Fprint(out, "profile updated: ")
					view.write(out)
				})
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&avatar, "avatar-url", "", "Avatar image URL")
	cmd.Flags().StringVar(&gender, "gender", "", "female, male, non-binary, other or prefer-not-to-say")
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number, empty to clear")
	cmd.Flags().StringVar(&birthdate, "birthdate", "", "Birth date as YYYY-MM-DD")

	return cmd
}

func (c *cli) passwordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Manage the password of the signed in user",
	}

	var password string
	set := &cobra.Command{
		Use:   "set",
		Short: "Change the password, read from stdin when --password is omitted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				var err error
				if password, err = readLine(cmd.InOrStdin()); err != nil {
					return err
				}
			}

			return c.withApp(cmd.Context(), func(a *app) error {
				if err := a.service.UpdatePassword(cmd.Context(), password); err != nil {
					return userError(err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "password updated")
				return nil
			})
		},
	}
	set.Flags().StringVarP(&password, "password", "p", "", "New password")

	cmd.AddCommand(set)
	return cmd
}
