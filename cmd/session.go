package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newLoginCmd(flags *rootFlags) *cobra.Command {
	var email, password string

	c := &cobra.Command{
		Use:   "login",
		Short: "Log in with restaurant staff credentials and save the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			st, err := a.repo.Login(ctx, strings.TrimSpace(email), password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (restaurant %s)\n", displayName(st.User.Name, st.User.Email, st.UserID()), st.RestaurantID())
			return nil
		},
	}

	c.Flags().StringVar(&email, "email", "", "staff email")
	c.Flags().StringVar(&password, "password", "", "password (prompted when empty)")
	_ = c.MarkFlagRequired("email")
	return c
}

func newLogoutCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.repo.Logout(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newWhoamiCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.requireLogin(); err != nil {
				return err
			}
			st := a.session.Snapshot()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "user:       %s\n", displayName(st.User.Name, st.User.Email, st.UserID()))
			fmt.Fprintf(out, "user id:    %s\n", st.UserID())
			fmt.Fprintf(out, "restaurant: %s\n", st.RestaurantID())
			return nil
		},
	}
}

func displayName(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return "-"
}
