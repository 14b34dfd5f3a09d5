package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/brightloop/qgateway/internal/keystore"
)

// keysCommand implements the bootstrap-vault management commands of
// SPEC_FULL.md §4.9, adapted from the teacher's provider-API-key vault
// commands: vault entries here are keyed by credential field name
// (refresh_token, profile_arn) instead of provider name.
func (a *App) keysCommand() *cobra.Command {
	var vaultPath string

	keys := &cobra.Command{
		Use:   "keys",
		Short: "manage the local encrypted bootstrap vault",
	}
	keys.PersistentFlags().StringVar(&vaultPath, "vault", "", "path to the vault file (default: ~/.qgateway/keys.enc)")

	keys.AddCommand(a.keysSetCommand(&vaultPath))
	keys.AddCommand(a.keysListCommand(&vaultPath))
	keys.AddCommand(a.keysDeleteCommand(&vaultPath))
	return keys
}

func (a *App) resolveVaultPath(vaultPath string) string {
	if vaultPath != "" {
		return vaultPath
	}
	return keystore.DefaultPath()
}

func (a *App) masterKeySource() keystore.MasterKeySource {
	return keystore.FallbackMasterKeySource{Sources: []keystore.MasterKeySource{
		keystore.EnvMasterKeySource{VarName: "QGATEWAY_MASTER_KEY"},
		keystore.PromptMasterKeySource{Prompt: a.promptMasterKey},
	}}
}

// promptMasterKey reads a master key from the controlling terminal
// without echoing it, falling back to a plain line read when stdin is
// not a terminal (e.g. piped input in tests).
func (a *App) promptMasterKey() (string, error) {
	fmt.Fprint(a.stdout, "vault master key: ")
	if f, ok := a.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		keyBytes, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		fmt.Fprintln(a.stdout) // newline after hidden input
		return strings.TrimSpace(string(keyBytes)), nil
	}

	reader := bufio.NewReader(a.stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (a *App) keysSetCommand(vaultPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> <value>",
		Short: "write an entry into the vault (e.g. refresh_token, profile_arn)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ks := a.newKeystore(a.resolveVaultPath(*vaultPath), a.masterKeySource())
			if err := ks.Set(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "set %s\n", args[0])
			return nil
		},
	}
}

func (a *App) keysListCommand(vaultPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list the entry names stored in the vault",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ks := a.newKeystore(a.resolveVaultPath(*vaultPath), a.masterKeySource())
			names, err := ks.List()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(a.stdout, n)
			}
			return nil
		},
	}
}

func (a *App) keysDeleteCommand(vaultPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "remove an entry from the vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ks := a.newKeystore(a.resolveVaultPath(*vaultPath), a.masterKeySource())
			if err := ks.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "deleted %s\n", args[0])
			return nil
		},
	}
}
