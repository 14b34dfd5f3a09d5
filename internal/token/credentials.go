package token

import (
	"encoding/json"
	"os"
	"time"

	"github.com/brightloop/qgateway/internal/secret"
)

// DefaultCredentialsPath mirrors config.DefaultPath for the gateway's own
// credentials file: $QGATEWAY_CREDENTIALS if set, otherwise
// ./credentials.json.
func DefaultCredentialsPath() string {
	if p := os.Getenv("QGATEWAY_CREDENTIALS"); p != "" {
		return p
	}
	return "./credentials.json"
}

// Credentials is the on-disk JSON shape of spec §3/§6. ExpiresAt is
// ISO-8601 UTC.
type Credentials struct {
	AccessToken  secret.String `json:"accessToken,omitempty"`
	RefreshToken secret.String `json:"refreshToken"`
	ProfileARN   string        `json:"profileArn,omitempty"`
	ExpiresAt    string        `json:"expiresAt,omitempty"`
	AuthMethod   string        `json:"authMethod,omitempty"`
	Provider     string        `json:"provider,omitempty"`
}

// credentialsFile is a JSON-plaintext load shape where AccessToken and
// RefreshToken are read as bare strings (the file on disk is plaintext
// per spec §6; secret.String only redacts in-memory serialization).
type credentialsFile struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken"`
	ProfileARN   string `json:"profileArn,omitempty"`
	ExpiresAt    string `json:"expiresAt,omitempty"`
	AuthMethod   string `json:"authMethod,omitempty"`
	Provider     string `json:"provider,omitempty"`
}

func (c Credentials) toFile() credentialsFile {
	return credentialsFile{
		AccessToken:  c.AccessToken.Expose(),
		RefreshToken: c.RefreshToken.Expose(),
		ProfileARN:   c.ProfileARN,
		ExpiresAt:    c.ExpiresAt,
		AuthMethod:   c.AuthMethod,
		Provider:     c.Provider,
	}
}

func fromFile(f credentialsFile) Credentials {
	return Credentials{
		AccessToken:  secret.New(f.AccessToken),
		RefreshToken: secret.New(f.RefreshToken),
		ProfileARN:   f.ProfileARN,
		ExpiresAt:    f.ExpiresAt,
		AuthMethod:   f.AuthMethod,
		Provider:     f.Provider,
	}
}

// LoadCredentials reads and parses the credentials file at path.
func LoadCredentials(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, err
	}
	var f credentialsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Credentials{}, err
	}
	return fromFile(f), nil
}

// SaveCredentials rewrites the credentials file at path in whole, per
// spec §4.6 step 4 / §6.
func SaveCredentials(path string, c Credentials) error {
	data, err := json.MarshalIndent(c.toFile(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Expired reports whether now + 5 minutes is at or past expiresAt, or
// expiresAt can't be parsed, per spec §4.6.
func Expired(expiresAt string, now time.Time) bool {
	t, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return true
	}
	return !now.Add(5 * time.Minute).Before(t)
}

// ExpiringSoon reports whether now + 10 minutes is at or past expiresAt,
// per spec §4.6.
func ExpiringSoon(expiresAt string, now time.Time) bool {
	t, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return true
	}
	return !now.Add(10 * time.Minute).Before(t)
}
