package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brightloop/qgateway/internal/config"
	"github.com/brightloop/qgateway/internal/keystore"
	"github.com/brightloop/qgateway/internal/token"
)

// memKeystore is an in-memory keystore.Keystore fake for CLI tests,
// avoiding any real vault file or master-key prompt.
type memKeystore struct {
	entries map[string]string
}

func newMemKeystore() *memKeystore { return &memKeystore{entries: map[string]string{}} }

func (k *memKeystore) Set(name, value string) error { k.entries[name] = value; return nil }
func (k *memKeystore) Get(name string) (string, error) {
	v, ok := k.entries[name]
	if !ok {
		return "", keystore.ErrKeyNotFound
	}
	return v, nil
}
func (k *memKeystore) Delete(name string) error {
	if _, ok := k.entries[name]; !ok {
		return keystore.ErrKeyNotFound
	}
	delete(k.entries, name)
	return nil
}
func (k *memKeystore) List() ([]string, error) {
	names := make([]string, 0, len(k.entries))
	for n := range k.entries {
		names = append(names, n)
	}
	return names, nil
}

func newTestApp(t *testing.T, backing *memKeystore) (*App, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	app := NewApp("test-version",
		WithIO(strings.NewReader(""), &out, &out),
		WithKeystoreFactory(func(path string, masterKeys keystore.MasterKeySource) keystore.Keystore {
			return backing
		}),
		WithConfigLoader(func(path string) (config.Config, error) {
			return config.Config{}, nil
		}),
	)
	return app, &out
}

func TestVersionCommandPrintsVersion(t *testing.T) {
	app, out := newTestApp(t, newMemKeystore())
	cmd := app.rootCommand()
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "test-version") {
		t.Fatalf("expected version in output, got %q", out.String())
	}
}

func TestKeysSetGetViaList(t *testing.T) {
	backing := newMemKeystore()
	app, out := newTestApp(t, backing)
	cmd := app.rootCommand()
	cmd.SetArgs([]string{"keys", "set", "refresh_token", "r-abc123"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute set: %v", err)
	}

	out.Reset()
	cmd = app.rootCommand()
	cmd.SetArgs([]string{"keys", "list"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute list: %v", err)
	}
	if !strings.Contains(out.String(), "refresh_token") {
		t.Fatalf("expected refresh_token in list output, got %q", out.String())
	}
}

func TestKeysDeleteRemovesEntry(t *testing.T) {
	backing := newMemKeystore()
	backing.entries["refresh_token"] = "r-abc"
	app, _ := newTestApp(t, backing)

	cmd := app.rootCommand()
	cmd.SetArgs([]string{"keys", "delete", "refresh_token"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute delete: %v", err)
	}
	if _, ok := backing.entries["refresh_token"]; ok {
		t.Fatal("expected refresh_token to be removed")
	}
}

func TestSeedCredentialsFromVaultSeedsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	credsPath := filepath.Join(dir, "credentials.json")

	backing := newMemKeystore()
	backing.entries["refresh_token"] = "r-seed-value"
	backing.entries["profile_arn"] = "arn:aws:codewhisperer:us-east-1:111122223333:profile/ABC"

	vaultPath := filepath.Join(dir, "keys.enc")
	if err := os.WriteFile(vaultPath, []byte("placeholder"), 0o600); err != nil {
		t.Fatalf("write vault placeholder: %v", err)
	}
	app, _ := newTestApp(t, backing)

	if err := app.seedCredentialsFromVaultAt(credsPath, vaultPath); err != nil {
		t.Fatalf("seedCredentialsFromVaultAt: %v", err)
	}

	creds, err := token.LoadCredentials(credsPath)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if creds.RefreshToken.Expose() != "r-seed-value" {
		t.Fatalf("expected seeded refresh token, got %q", creds.RefreshToken.Expose())
	}
	if creds.ProfileARN == "" {
		t.Fatal("expected seeded profile arn")
	}
}

func TestSeedCredentialsFromVaultSkipsWhenCredentialsExist(t *testing.T) {
	dir := t.TempDir()
	credsPath := filepath.Join(dir, "credentials.json")
	if err := token.SaveCredentials(credsPath, token.Credentials{ExpiresAt: "2099-01-01T00:00:00Z"}); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}

	backing := newMemKeystore()
	backing.entries["refresh_token"] = "should-not-be-used"
	app, _ := newTestApp(t, backing)

	vaultPath := filepath.Join(dir, "keys.enc")
	if err := os.WriteFile(vaultPath, []byte("placeholder"), 0o600); err != nil {
		t.Fatalf("write vault placeholder: %v", err)
	}

	if err := app.seedCredentialsFromVaultAt(credsPath, vaultPath); err != nil {
		t.Fatalf("seedCredentialsFromVaultAt: %v", err)
	}

	creds, err := token.LoadCredentials(credsPath)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if creds.ExpiresAt != "2099-01-01T00:00:00Z" {
		t.Fatal("expected existing credentials to be left untouched")
	}
}
