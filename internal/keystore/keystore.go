// Package keystore implements the encrypted bootstrap vault (spec §4.9):
// a local file where an operator stashes a refresh token before the
// gateway's own credentials.json exists.
package keystore

import (
	"errors"
	"os"
	"path/filepath"
)

// DefaultPath returns the default vault file location under the user's
// home directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".qgateway/keys.enc"
	}
	return filepath.Join(home, ".qgateway", "keys.enc")
}

// ErrKeyNotFound is returned by Get/Delete for a missing name.
var ErrKeyNotFound = errors.New("keystore: key not found")

// Keystore stores secrets by name.
type Keystore interface {
	Set(name, value string) error
	Get(name string) (string, error)
	Delete(name string) error
	List() ([]string, error)
}

// MasterKeySource resolves the master key used to derive the vault's
// encryption key.
type MasterKeySource interface {
	MasterKey() (string, error)
}

// EnvMasterKeySource reads the master key from an environment variable.
type EnvMasterKeySource struct {
	VarName string
}

func (s EnvMasterKeySource) MasterKey() (string, error) {
	v, ok := os.LookupEnv(s.VarName)
	if !ok || v == "" {
		return "", errors.New("keystore: " + s.VarName + " not set")
	}
	return v, nil
}

// PromptMasterKeySource reads the master key interactively.
type PromptMasterKeySource struct {
	Prompt func() (string, error)
}

func (s PromptMasterKeySource) MasterKey() (string, error) {
	return s.Prompt()
}

// FallbackMasterKeySource tries each source in order, returning the
// first success.
type FallbackMasterKeySource struct {
	Sources []MasterKeySource
}

func (s FallbackMasterKeySource) MasterKey() (string, error) {
	var lastErr error
	for _, src := range s.Sources {
		key, err := src.MasterKey()
		if err == nil {
			return key, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("keystore: no master key source configured")
	}
	return "", lastErr
}
