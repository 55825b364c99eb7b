package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kbdash/internal/models"
)

// EnvPassword supplies the password when --password is omitted.
const EnvPassword = "KB_PASSWORD"

func passwordFrom(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv(EnvPassword); env != "" {
		return env, nil
	}
	return "", fmt.Errorf("password required: pass --password or set %s", EnvPassword)
}

func printSession(cmd *cobra.Command, opts *rootOptions, session models.Session) error {
	if opts.jsonOutput {
		return printJSON(cmd.OutOrStdout(), session.User)
	}
	name := session.User.Username
	if session.User.FullName != "" {
		name = fmt.Sprintf("%s (%s)", session.User.FullName, session.User.Username)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s <%s>\n", name, session.User.Email)
	return nil
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, err := passwordFrom(password)
			if err != nil {
				return err
			}
			return withApp(opts, false, func(a *app) error {
				session, err := a.gateway.Login(cmd.Context(), username, pass)
				if err != nil {
					return err
				}
				return printSession(cmd, opts, session)
			})
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (or "+EnvPassword+")")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newRegisterCmd(opts *rootOptions) *cobra.Command {
	var req models.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log into it",
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, err := passwordFrom(req.Password)
			if err != nil {
				return err
			}
			req.Password = pass
			return withApp(opts, false, func(a *app) error {
				session, err := a.gateway.Register(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printSession(cmd, opts, session)
			})
		},
	}

	cmd.Flags().StringVarP(&req.Username, "username", "u", "", "account username")
	cmd.Flags().StringVar(&req.Email, "email", "", "email address")
	cmd.Flags().StringVar(&req.FullName, "full-name", "", "display name")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "account password (or "+EnvPassword+")")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, true, func(a *app) error {
				if err := a.gateway.Logout(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
				return nil
			})
		},
	}
}

func newWhoamiCmd(opts *rootOptions) *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, !verify, func(a *app) error {
				if verify {
					session, ok, err := a.gateway.Restore(cmd.Context())
					if err != nil {
						return err
					}
					if !ok {
						return errors.New("not logged in (stored session missing or rejected)")
					}
					return printSession(cmd, opts, session)
				}
				session, ok := a.gateway.Current()
				if !ok {
					return errors.New("not logged in")
				}
				return printSession(cmd, opts, session)
			})
		},
	}

	cmd.Flags().BoolVar(&verify, "verify", false, "validate the token with the backend; a rejected token is cleared")
	return cmd
}
