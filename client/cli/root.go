package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"takahome/client/app"
	cmnenv "takahome/common/env"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

// session holds the persistent flags and the lazily built client app shared
// by every subcommand.
type session struct {
	apiURL     string
	token      string
	profile    string
	tokenStore string

	app *app.App
}

func (s *session) config() app.Config {
	cfg := app.LoadConfig()
	if strings.TrimSpace(s.apiURL) != "" {
		cfg.APIURLs = cmnenv.SplitCSV(s.apiURL)
	}
	if s.token != "" {
		cfg.Token = s.token
	}
	if s.profile != "" {
		cfg.Profile = s.profile
	}
	if s.tokenStore != "" {
		cfg.TokenStore = strings.ToLower(s.tokenStore)
	}
	return cfg
}

func (s *session) open(cmd *cobra.Command) (*app.App, error) {
	if s.app != nil {
		return s.app, nil
	}
	a, err := app.New(cmd.Context(), s.config())
	if err != nil {
		return nil, err
	}
	s.app = a
	return a, nil
}

func (s *session) close() {
	if s.app != nil {
		s.app.Close()
		s.app = nil
	}
}

// RootCmd builds the takahome command tree.
func RootCmd() *cobra.Command {
	s := &session{}
	root := &cobra.Command{
		Use:           "takahome",
		Short:         "Rental marketplace client: contracts and chat",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			s.close()
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&s.apiURL, "api-url", "", "REST base URL(s), comma separated (env TAKAHOME_API_URL)")
	flags.StringVar(&s.token, "token", "", "access token for this invocation (env TAKAHOME_TOKEN)")
	flags.StringVar(&s.profile, "profile", "", "token profile name (env TAKAHOME_PROFILE)")
	flags.StringVar(&s.tokenStore, "token-store", "", "memory or redis (env TAKAHOME_TOKEN_STORE)")

	root.AddCommand(
		ContractsCmd(s),
		ContractCmd(s),
		ChatCmd(s),
		LoginCmd(s),
		WhoamiCmd(s),
		LogoutCmd(s),
	)
	return root
}

func validOutput(format string) error {
	switch format {
	case outputTable, outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (table, json, yaml)", format)
	}
}

// writeStructured prints v as JSON or YAML. It reports false for the table
// format so the caller renders its own table.
func writeStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	default:
		return false, nil
	}
}
