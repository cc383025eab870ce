package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/spf13/cobra"
)

func newLoginCommand(a *app) *cobra.Command {
	var (
		username      string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the credential pair",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.session()
			if err != nil {
				return err
			}
			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), passwordStdin)
			if err != nil {
				return err
			}

			err = c.Login(cmd.Context(), username, password)
			var le *goSession.LoginError
			switch {
			case errors.As(err, &le):
				return fmt.Errorf("login refused: %s", le.Message)
			case errors.Is(err, goSession.ErrNetworkUnreachable):
				return fmt.Errorf("backend unreachable at %s", a.cfg.BackendURL)
			case err != nil:
				return err
			}

			name := username
			if p, ok := c.Profile(); ok {
				name = p.Username
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Account username")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin instead of prompting")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newSignupCommand(a *app) *cobra.Command {
	var (
		username      string
		email         string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account on the backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.session()
			if err != nil {
				return err
			}
			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), passwordStdin)
			if err != nil {
				return err
			}

			err = c.Signup(cmd.Context(), username, password, email)
			var se *goSession.SignupError
			switch {
			case errors.As(err, &se):
				return fmt.Errorf("signup refused: %s", se.Message)
			case errors.Is(err, goSession.ErrNetworkUnreachable):
				return fmt.Errorf("backend unreachable at %s", a.cfg.BackendURL)
			case err != nil:
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account %s created; run sessionctl login -u %s\n", username, username)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Account username")
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin instead of prompting")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func readPassword(in io.Reader, prompt io.Writer, fromStdin bool) (string, error) {
	if !fromStdin {
		fmt.Fprint(prompt, "Password: ")
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password is required")
	}
	return password, nil
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.session()
			if err != nil {
				return err
			}
			if err := c.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newStatusCommand(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Resolve the stored session and report it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.session()
			if err != nil {
				return err
			}
			if err := c.Bootstrap(cmd.Context()); err != nil {
				return err
			}

			s := c.Session()
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(s)
			}
			fmt.Fprintf(out, "status:    %s\n", s.Status)
			fmt.Fprintf(out, "reachable: %t\n", s.ServerReachable)
			if !s.UnreachableSince.IsZero() {
				fmt.Fprintf(out, "since:     %s\n", s.UnreachableSince.Format(time.RFC3339))
			}
			if s.Profile != nil {
				fmt.Fprintf(out, "user:      %s <%s>\n", s.Profile.Username, s.Profile.Email)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newRefreshCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh credential for a new access credential",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.session()
			if err != nil {
				return err
			}
			if _, err := c.Refresh(cmd.Context()); err != nil {
				var rerr *goSession.RefreshError
				if errors.As(err, &rerr) {
					return fmt.Errorf("refresh failed (%s); log in again", rerr.Reason)
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "access credential refreshed")
			return nil
		},
	}
}

func newTokenCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print the Authorization header value, refreshing first if needed",
		Long: "Print the Authorization header value for the current session.\n" +
			"Example: curl -H \"Authorization: $(sessionctl token)\" ...",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.session()
			if err != nil {
				return err
			}
			header, err := c.AuthorizationHeader(cmd.Context())
			if err != nil {
				return err
			}
			if header == "" {
				return goSession.ErrNotAuthenticated
			}
			fmt.Fprintln(cmd.OutOrStdout(), header)
			return nil
		},
	}
}

func newWhoamiCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Fetch the profile of the logged-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.session()
			if err != nil {
				return err
			}
			p, err := c.FetchProfile(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> (id %d)\n", p.Username, p.Email, p.ID)
			return nil
		},
	}
}
