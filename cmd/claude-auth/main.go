package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"claude-auth/internal/claudeauth"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "claude-auth",
	Short: "Resolve and inspect Anthropic API credentials",
	Long: `claude-auth resolves a bearer credential from the ordered discovery
cascade (custom OAuth credential file, default OAuth credential file,
API key from the environment) and keeps refreshable OAuth tokens valid.`,
	SilenceUsage: true,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which credential source is in use",
	RunE:  runStatus,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print the resolved credential value",
	Long: `Print the resolved credential value to stdout. For OAuth sources the
token is refreshed first if it is within the refresh threshold of expiry.`,
	RunE: runToken,
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Check every credential source and report problems",
	RunE:  runDiagnose,
}

var validateCmd = &cobra.Command{
	Use:   "validate [credential]",
	Short: "Check a credential's format",
	Long: `Check that a credential is a well-formed Anthropic API key or OAuth
token. With an argument, that value is checked; without one, the credential
resolved from the discovery cascade is checked. Only the format is verified;
no network call is made.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file (json or yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level for diagnostics output")
	rootCmd.AddCommand(statusCmd, tokenCmd, diagnoseCmd, validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup() (claudeauth.Config, *claudeauth.AuthManager, *zap.Logger, error) {
	cfg, err := claudeauth.LoadConfig(configPath)
	if err != nil {
		return cfg, nil, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger, err := claudeauth.NewLogger(cfg.LogLevel)
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, claudeauth.NewAuthManagerFromConfig(cfg, logger), logger, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, auth, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	cred, err := auth.Credential(ctx)
	if err != nil {
		fmt.Println("Authentication: no credentials found")
		for _, a := range auth.Attempts(ctx) {
			fmt.Printf("  %-24s %s\n", a.Source, a.Outcome)
		}
		return errors.New("no usable credential")
	}

	fmt.Println("Authentication: valid")
	fmt.Printf("  Method:  %s\n", cred.Method)
	fmt.Printf("  Source:  %s\n", cred.Source)
	for _, a := range auth.Attempts(ctx) {
		fmt.Printf("  %-24s %s\n", a.Source, a.Outcome)
	}
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	_, auth, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cred, err := auth.Credential(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Println(cred.Value)
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	var value string
	if len(args) == 1 {
		value = args[0]
	} else {
		_, auth, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		cred, err := auth.Credential(cmd.Context())
		if err != nil {
			return err
		}
		value = cred.Value
	}

	method, err := claudeauth.ValidateCredential(value)
	if err != nil {
		fmt.Printf("invalid: %v\n", err)
		return errors.New("credential format is invalid")
	}
	fmt.Printf("valid %s\n", method)
	return nil
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	cfg, _, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ok := true

	customPath := cfg.CredentialsPath
	if env := os.Getenv(claudeauth.EnvCredentialsPath); env != "" {
		customPath = env
	}
	if customPath != claudeauth.DefaultCredentialsPath() {
		ok = diagnoseFile("custom credential file", customPath) && ok
	}
	ok = diagnoseFile("default credential file", claudeauth.DefaultCredentialsPath()) && ok

	if key := os.Getenv(cfg.APIKeyEnv); key != "" {
		fmt.Printf("ok    %s is set\n", cfg.APIKeyEnv)
	} else {
		fmt.Printf("warn  %s is unset (no API key fallback)\n", cfg.APIKeyEnv)
	}

	if !ok {
		return errors.New("problems found")
	}
	return nil
}

func diagnoseFile(label, path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Printf("warn  %s absent: %s\n", label, path)
			return true
		}
		fmt.Printf("fail  %s unreadable: %v\n", label, err)
		return false
	}

	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		fmt.Printf("fail  %s has permissions %#o, want 0600\n", label, perm)
		return false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("fail  %s unreadable: %v\n", label, err)
		return false
	}

	var rec struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresAt    int64  `json:"expires_at"`
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		fmt.Printf("fail  %s is not valid JSON: %v\n", label, err)
		return false
	}
	if rec.AccessToken == "" || rec.RefreshToken == "" || rec.ExpiresAt == 0 {
		fmt.Printf("fail  %s is missing access_token, refresh_token or expires_at\n", label)
		return false
	}

	expires := time.Unix(rec.ExpiresAt, 0)
	if time.Now().After(expires) {
		fmt.Printf("warn  %s token expired %s ago (refresh will be attempted)\n", label, time.Since(expires).Round(time.Second))
	} else {
		fmt.Printf("ok    %s valid until %s\n", label, expires.Format(time.RFC3339))
	}
	return true
}
