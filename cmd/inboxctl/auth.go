package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/rbaliyan/inbox"
	"github.com/spf13/cobra"
)

type credentialFlags struct {
	username string
	password string
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.username, "username", "u", "", "account name")
	cmd.Flags().StringVarP(&f.password, "password", "p", "", "password (read from stdin when omitted)")
	_ = cmd.MarkFlagRequired("username")
}

// credentials reads the password from stdin when no flag was given.
func (f *credentialFlags) credentials(cmd *cobra.Command) (inbox.Credentials, error) {
	creds := inbox.Credentials{Username: f.username, Password: f.password}
	if creds.Password != "" {
		return creds, nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return creds, fmt.Errorf("read password: %w", err)
	}
	creds.Password = strings.TrimRight(line, "\r\n")
	return creds, nil
}

func newLoginCmd() *cobra.Command {
	var flags credentialFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := flags.credentials(cmd)
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, a *app) error {
				u, err := a.client.Login(ctx, creds)
				if err != nil {
					return err
				}
				return printUser(cmd, u, "Logged in as")
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newRegisterCmd() *cobra.Command {
	var flags credentialFlags
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := flags.credentials(cmd)
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, a *app) error {
				u, err := a.client.Register(ctx, creds)
				if err != nil {
					return err
				}
				return printUser(cmd, u, "Registered")
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				a.client.Logout(ctx)
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
				return nil
			})
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				u, err := requireSession(a)
				if err != nil {
					return err
				}
				return printUser(cmd, u, "Logged in as")
			})
		},
	}
}

func printUser(cmd *cobra.Command, u *inbox.User, prefix string) error {
	if jsonOutput() {
		return printJSON(cmd, u)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (id %d)\n", prefix, u.Username, u.ID)
	return nil
}
