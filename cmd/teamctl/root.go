package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	apiclient "github.com/splax/skillsync/pkg/api/client"
)

const (
	defaultAPIBase = "http://localhost:4000"
	requestTimeout = 15 * time.Second
)

type cliConfig struct {
	APIBaseURL  string `json:"api_base_url"`
	AccessToken string `json:"access_token"`
}

var (
	flagAPI   string
	flagToken string
)

var rootCmd = &cobra.Command{
	Use:           "teamctl",
	Short:         "Command line client for the skillsync collaboration engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an access token for later commands",
	Long: `Login saves the API address and a bearer token issued by the identity
provider. The token is read from --token or prompted for without echo.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the client version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(buildVersion))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagAPI, "api", "", "API base URL (default "+defaultAPIBase+")")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "bearer token (overrides the saved login)")
	rootCmd.AddCommand(loginCmd, versionCmd)
}

func runLogin(cmd *cobra.Command, _ []string) error {
	secret := strings.TrimSpace(flagToken)
	if secret == "" {
		fmt.Fprint(cmd.OutOrStdout(), "Token: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
		secret = strings.TrimSpace(string(raw))
	}
	if secret == "" {
		return errors.New("a token is required")
	}

	cfg, _ := loadConfig()
	if strings.TrimSpace(flagAPI) != "" {
		cfg.APIBaseURL = flagAPI
	}
	cfg.AccessToken = secret

	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()
	if _, err := client.ListTeams(ctx, secret, false); err != nil {
		return fmt.Errorf("verify token: %w", err)
	}
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "login successful")
	return nil
}

// session resolves the client and token every API command needs.
func session() (*apiclient.Client, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	if strings.TrimSpace(flagAPI) != "" {
		cfg.APIBaseURL = flagAPI
	}
	token := strings.TrimSpace(flagToken)
	if token == "" {
		token = strings.TrimSpace(cfg.AccessToken)
	}
	if token == "" {
		return nil, "", errors.New("please login first using 'teamctl login'")
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return nil, "", err
	}
	return client, token, nil
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: defaultAPIBase}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBase
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "skillsync", "config.json"), nil
}
