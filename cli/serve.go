package cli

import (
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/brightloop/qgateway/internal/keystore"
	"github.com/brightloop/qgateway/internal/logging"
	"github.com/brightloop/qgateway/internal/retry"
	"github.com/brightloop/qgateway/internal/secret"
	"github.com/brightloop/qgateway/internal/server"
	"github.com/brightloop/qgateway/internal/token"
	"github.com/brightloop/qgateway/internal/upstream"
)

func (a *App) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the gateway's HTTP server (also the root command's default behavior)",
		RunE:  a.runServe,
	}
	return cmd
}

func (a *App) runServe(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	credsPath, _ := cmd.Flags().GetString("credentials")
	if credsPath == "" {
		credsPath = token.DefaultCredentialsPath()
	}

	cfg, err := a.loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("cli: load config: %w", err)
	}

	if err := a.seedCredentialsFromVault(credsPath); err != nil {
		return fmt.Errorf("cli: bootstrap credentials: %w", err)
	}

	logger := logging.New()
	hook := logging.TelemetryHook{Logger: logger}

	machineID := cfg.MachineID
	tokens, err := token.NewManager(token.Config{
		CredentialsPath: credsPath,
		Region:          cfg.Region,
		KiroVersion:     cfg.KiroVersion,
		MachineID:       machineID,
	})
	if err != nil {
		return fmt.Errorf("cli: init token manager: %w", err)
	}

	upstreamClient := upstream.NewClient(upstream.ClientConfig{
		Region:        cfg.Region,
		SystemVersion: cfg.SystemVersion,
		NodeVersion:   cfg.NodeVersion,
		MachineID:     machineID,
		RetryPolicy:   retry.New(retry.DefaultConfig()),
	})

	srv := server.New(&server.Server{
		Tokens:    tokens,
		Upstream:  upstreamClient,
		Telemetry: hook,
		Logger:    logger,
		APIKey:    cfg.APIKey,
	})

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	logger.Info("gateway listening", "addr", addr, "region", cfg.Region)
	return http.ListenAndServe(addr, srv)
}

// seedCredentialsFromVault implements SPEC_FULL.md §4.9: on startup, if
// credentials.json is absent or empty, seed it from the bootstrap vault's
// refresh_token entry so the gateway can complete its first refresh.
func (a *App) seedCredentialsFromVault(credsPath string) error {
	return a.seedCredentialsFromVaultAt(credsPath, keystore.DefaultPath())
}

// seedCredentialsFromVaultAt is seedCredentialsFromVault with an explicit
// vault path, a seam so tests don't depend on keystore.DefaultPath's
// $HOME resolution.
func (a *App) seedCredentialsFromVaultAt(credsPath, vaultPath string) error {
	info, statErr := os.Stat(credsPath)
	if statErr == nil && info.Size() > 0 {
		return nil // already has real credentials
	}
	if statErr != nil && !os.IsNotExist(statErr) {
		return statErr
	}

	if _, err := os.Stat(vaultPath); os.IsNotExist(err) {
		return nil // no vault to seed from; serve then fails when the token manager cannot load credentials
	}

	ks := a.newKeystore(vaultPath, keystore.EnvMasterKeySource{VarName: "QGATEWAY_MASTER_KEY"})
	refreshToken, err := ks.Get("refresh_token")
	if err != nil {
		return nil // vault exists but has no seed entry yet; not fatal
	}
	profileARN, _ := ks.Get("profile_arn")

	return token.SaveCredentials(credsPath, token.Credentials{
		RefreshToken: secret.New(refreshToken),
		ProfileARN:   profileARN,
		ExpiresAt:    "1970-01-01T00:00:00Z", // already expired: forces an immediate refresh
		AuthMethod:   "refresh_token",
		Provider:     "kiro",
	})
}
