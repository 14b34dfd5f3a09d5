// Package cli builds the gateway's Cobra command tree: the default
// `serve` behavior plus `keys` (bootstrap vault) and `version`
// subcommands.
package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/brightloop/qgateway/internal/config"
	"github.com/brightloop/qgateway/internal/keystore"
)

// ConfigLoader loads the gateway config from a path.
type ConfigLoader func(path string) (config.Config, error)

// KeystoreFactory builds a keystore.Keystore rooted at path, deriving its
// encryption key from masterKeys.
type KeystoreFactory func(path string, masterKeys keystore.MasterKeySource) keystore.Keystore

// AppOption customizes App's injected dependencies.
type AppOption func(*App)

// WithConfigLoader injects a config loader, bypassing the filesystem in
// tests.
func WithConfigLoader(loader ConfigLoader) AppOption {
	return func(a *App) {
		if loader != nil {
			a.loadConfig = loader
		}
	}
}

// WithKeystoreFactory injects a keystore factory, bypassing the
// filesystem and master-key prompt in tests.
func WithKeystoreFactory(factory KeystoreFactory) AppOption {
	return func(a *App) {
		if factory != nil {
			a.newKeystore = factory
		}
	}
}

// WithIO injects process I/O streams.
func WithIO(stdin io.Reader, stdout, stderr io.Writer) AppOption {
	return func(a *App) {
		if stdin != nil {
			a.stdin = stdin
		}
		if stdout != nil {
			a.stdout = stdout
		}
		if stderr != nil {
			a.stderr = stderr
		}
	}
}

// App holds the CLI's injected runtime dependencies.
type App struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	loadConfig  ConfigLoader
	newKeystore KeystoreFactory

	version string
}

// NewApp returns an App wired to real stdio, the real config loader, and
// the real on-disk keystore, with opts applied on top.
func NewApp(version string, opts ...AppOption) *App {
	a := &App{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		loadConfig: config.Load,
		newKeystore: func(path string, masterKeys keystore.MasterKeySource) keystore.Keystore {
			return keystore.NewFileKeystore(path, masterKeys)
		},
		version: version,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Execute builds the root command and runs it against os.Args.
func (a *App) Execute() error {
	return a.rootCommand().Execute()
}

// rootCommand assembles the full command tree. The root command itself
// runs the server (spec §6: the gateway is a single-purpose binary, not
// a multi-tool SDK CLI).
func (a *App) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "qgateway",
		Short:        "Anthropic-compatible gateway over a Kiro-style upstream",
		RunE:         a.runServe,
		SilenceUsage: true,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringP("config", "c", "", "path to config.json (default: $QGATEWAY_CONFIG or ./config.json)")
	root.PersistentFlags().StringP("credentials", "C", "", "path to credentials.json (default: $QGATEWAY_CREDENTIALS or ./credentials.json)")

	root.AddCommand(a.serveCommand())
	root.AddCommand(a.keysCommand())
	root.AddCommand(a.versionCommand())
	return root
}
