// Package token implements OAuth access-token expiry tracking,
// single-flight refresh, and on-disk credential persistence (spec §4.6).
package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/brightloop/qgateway/internal/apierr"
	"github.com/brightloop/qgateway/internal/secret"
)

// Manager is the single entry point for valid-access-token retrieval. It
// is the only shared-mutable object in the gateway (spec §5): its mutex
// guards expiry check, HTTP refresh, credential mutation, and disk
// persistence so that concurrent callers collapse into one refresh.
type Manager struct {
	mu sync.Mutex

	creds Credentials
	path  string

	region      string
	kiroVersion string
	machineID   string
	httpClient  *http.Client

	// refreshBaseURL overrides the "https://prod.{region}.auth.desktop.kiro.dev"
	// base for tests; empty uses the real upstream host.
	refreshBaseURL string

	now func() time.Time
}

// Config parameterizes a Manager.
type Config struct {
	CredentialsPath string
	Region          string
	KiroVersion     string
	MachineID       string // optional 64-char override
	HTTPClient      *http.Client

	// RefreshBaseURL overrides the refresh endpoint's scheme+host, for
	// tests. Production callers leave this empty.
	RefreshBaseURL string
}

// NewManager loads credentials from cfg.CredentialsPath and returns a
// ready-to-use Manager.
func NewManager(cfg Config) (*Manager, error) {
	creds, err := LoadCredentials(cfg.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("token: load credentials: %w", err)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Manager{
		creds:          creds,
		path:           cfg.CredentialsPath,
		region:         cfg.Region,
		kiroVersion:    cfg.KiroVersion,
		machineID:      cfg.MachineID,
		httpClient:     client,
		refreshBaseURL: cfg.RefreshBaseURL,
		now:            time.Now,
	}, nil
}

// EnsureValidToken returns a currently-valid access token, refreshing
// under Manager's mutex if the token is expired or about to expire. At
// most one refresh is in flight at a time (spec §4.6, §5, §9).
func (m *Manager) EnsureValidToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if Expired(m.creds.ExpiresAt, now) || ExpiringSoon(m.creds.ExpiresAt, now) {
		if err := m.refreshLocked(ctx); err != nil {
			return "", err
		}
	}
	return m.creds.AccessToken.Expose(), nil
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ProfileARN   string `json:"profileArn,omitempty"`
	ExpiresIn    int    `json:"expiresIn,omitempty"`
}

// refreshLocked performs the refresh procedure of spec §4.6. Callers
// must hold m.mu.
func (m *Manager) refreshLocked(ctx context.Context) error {
	refreshToken := m.creds.RefreshToken.Expose()
	if err := validateRefreshToken(refreshToken); err != nil {
		return apierr.Wrap(apierr.KindAuthentication, "refresh token invalid", err)
	}

	host := fmt.Sprintf("prod.%s.auth.desktop.kiro.dev", m.region)
	base := "https://" + host
	if m.refreshBaseURL != "" {
		base = m.refreshBaseURL
	}
	url := base + "/refreshToken"
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	machineID := DeriveMachineID(m.machineID, m.creds.ProfileARN, refreshToken)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", fmt.Sprintf("KiroIDE-%s-%s", m.kiroVersion, machineID))
	req.Header.Set("Accept-Encoding", "gzip, compress, deflate, br")
	req.Header.Set("Host", host)
	req.Header.Set("Connection", "close")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return apierr.Wrap(apierr.KindOverloaded, "refresh token request failed", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		kind := apierr.FromUpstreamStatus(resp.StatusCode)
		return apierr.New(kind, fmt.Sprintf("refresh token request failed with status %d", resp.StatusCode))
	}

	var rr refreshResponse
	if err := json.Unmarshal(respBody, &rr); err != nil {
		return apierr.Wrap(apierr.KindAPIError, "refresh token response decode failed", err)
	}

	newRefresh := rr.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}
	newProfileARN := rr.ProfileARN
	if newProfileARN == "" {
		newProfileARN = m.creds.ProfileARN
	}
	expiresIn := rr.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	m.creds = Credentials{
		AccessToken:  secret.New(rr.AccessToken),
		RefreshToken: secret.New(newRefresh),
		ProfileARN:   newProfileARN,
		ExpiresAt:    m.now().Add(time.Duration(expiresIn) * time.Second).UTC().Format(time.RFC3339),
		AuthMethod:   m.creds.AuthMethod,
		Provider:     m.creds.Provider,
	}

	return SaveCredentials(m.path, m.creds)
}

// validateRefreshToken enforces spec §4.6 step 1: non-empty, length >=
// 100, not a truncated value (containing or ending with "...").
func validateRefreshToken(token string) error {
	if token == "" {
		return fmt.Errorf("token: refresh token is empty")
	}
	if len(token) < 100 {
		return fmt.Errorf("token: refresh token too short (%d chars)", len(token))
	}
	if strings.Contains(token, "...") {
		return fmt.Errorf("token: refresh token appears truncated")
	}
	return nil
}
