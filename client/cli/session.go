package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"takahome/client/app"
	"takahome/common/apiclient"
	"takahome/common/transport/httpresp"
)

func LoginCmd(s *session) *cobra.Command {
	var devUser string
	cmd := &cobra.Command{
		Use:   "login [token]",
		Short: "Store an access token for later commands",
		Long: "Stores the given access token in the configured token store. With --dev-user\n" +
			"the token is issued by a development backend for that fixture user.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open(cmd)
			if err != nil {
				return err
			}
			var token string
			switch {
			case devUser != "" && len(args) > 0:
				return errors.New("pass either a token or --dev-user, not both")
			case devUser != "":
				env, err := apiclient.Post[httpresp.TokenResponse](cmd.Context(), a.API, "/dev/token", map[string]string{"userId": devUser})
				if err != nil {
					return fmt.Errorf("issue dev token: %w", err)
				}
				token = env.Data.AccessToken
			case len(args) == 1:
				token = strings.TrimSpace(args[0])
			default:
				return errors.New("token is required")
			}
			if err := a.SaveToken(cmd.Context(), token); err != nil {
				return err
			}
			claims, err := a.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Logged in as %s (%s)\n", orDash(claims.FullName), claims.Principal())
			if a.Config.TokenStore != app.TokenStoreRedis {
				fmt.Fprintln(w, "Note: the memory token store forgets the token on exit; use --token-store redis to keep it.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&devUser, "dev-user", "", "fixture user id to log in as on a development backend")
	return cmd
}

func WhoamiCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the identity carried by the active token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open(cmd)
			if err != nil {
				return err
			}
			claims, err := a.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "User:    %s\n", claims.Principal())
			fmt.Fprintf(w, "Name:    %s\n", orDash(claims.FullName))
			fmt.Fprintf(w, "Role:    %s\n", orDash(claims.Role))
			if claims.ExpiresAt != nil {
				state := "valid"
				if claims.Expired(time.Now()) {
					state = "expired"
				}
				fmt.Fprintf(w, "Expires: %s (%s)\n", claims.ExpiresAt.Time.Local().Format(time.RFC3339), state)
			}
			return nil
		},
	}
}

func LogoutCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.open(cmd)
			if err != nil {
				return err
			}
			if err := a.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}
