package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/codepaste/typer/internal/models"
)

const commandTimeout = 30 * time.Second

func newSignupCmd(r *runtime) *cobra.Command {
	return newAuthCmd(r, "signup EMAIL", "Create an account with free trial credits", true)
}

func newLoginCmd(r *runtime) *cobra.Command {
	return newAuthCmd(r, "login EMAIL", "Log in and remember the session", false)
}

func newAuthCmd(r *runtime, use, short string, signup bool) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(cmd, password)
			if err != nil {
				return err
			}
			mgr, err := r.manager()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			var acc *models.Account
			if signup {
				acc, err = mgr.Signup(ctx, args[0], pw)
			} else {
				acc, err = mgr.Login(ctx, args[0], pw)
			}
			if err != nil {
				return err
			}

			if signup {
				fmt.Fprintf(cmd.OutOrStdout(), "Account created for %s with %d credits\n", acc.Email, acc.Credits)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%d credits)\n", acc.Email, acc.Credits)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	return cmd
}

func newLogoutCmd(r *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, err := r.manager()
			if err != nil {
				return err
			}
			if err := mgr.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newBalanceCmd(r *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the credit balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			mgr, err := r.session(ctx)
			if err != nil {
				return err
			}
			balance, err := mgr.Balance(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d credits\n", mgr.Account().Email, balance)
			return nil
		},
	}
}
