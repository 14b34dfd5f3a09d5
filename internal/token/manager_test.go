package token

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brightloop/qgateway/internal/secret"
)

func longToken(suffix string) string {
	return strings.Repeat("a", 100-len(suffix)) + suffix
}

func writeCreds(t *testing.T, path string, c credentialsFile) {
	t.Helper()
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestEnsureValidTokenSkipsRefreshWhenValid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	writeCreds(t, path, credentialsFile{
		AccessToken:  "A1",
		RefreshToken: longToken("r1"),
		ExpiresAt:    time.Now().Add(1 * time.Hour).UTC().Format(time.RFC3339),
	})

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(500)
	}))
	defer srv.Close()

	m, err := NewManager(Config{
		CredentialsPath: path,
		Region:          "us-east-1",
		KiroVersion:     "1.0",
		HTTPClient:      srv.Client(),
		RefreshBaseURL:  srv.URL,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	tok, err := m.EnsureValidToken(context.Background())
	if err != nil {
		t.Fatalf("EnsureValidToken: %v", err)
	}
	if tok != "A1" {
		t.Fatalf("expected unchanged token A1, got %q", tok)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatal("expected no refresh HTTP call for a valid token")
	}
}

func TestEnsureValidTokenRefreshesWhenExpired(t *testing.T) {
	// spec §8 end-to-end scenario 4
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	writeCreds(t, path, credentialsFile{
		AccessToken:  "A1",
		RefreshToken: longToken("r1"),
		ExpiresAt:    time.Now().Add(-1 * time.Hour).UTC().Format(time.RFC3339),
	})

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(refreshResponse{AccessToken: "A2", ExpiresIn: 3600})
	}))
	defer srv.Close()

	m, err := NewManager(Config{
		CredentialsPath: path,
		Region:          "us-east-1",
		KiroVersion:     "1.0",
		HTTPClient:      srv.Client(),
		RefreshBaseURL:  srv.URL,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	tok, err := m.EnsureValidToken(context.Background())
	if err != nil {
		t.Fatalf("EnsureValidToken: %v", err)
	}
	if tok != "A2" {
		t.Fatalf("expected refreshed token A2, got %q", tok)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly 1 refresh call, got %d", calls)
	}

	onDisk, err := LoadCredentials(path)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if onDisk.AccessToken.Expose() != "A2" {
		t.Fatalf("expected persisted access token A2, got %q", onDisk.AccessToken.Expose())
	}
	expiresAt, err := time.Parse(time.RFC3339, onDisk.ExpiresAt)
	if err != nil {
		t.Fatalf("bad expiresAt: %v", err)
	}
	wantAround := time.Now().Add(3600 * time.Second)
	if diff := expiresAt.Sub(wantAround); diff > 5*time.Second || diff < -5*time.Second {
		t.Fatalf("expiresAt %v not within 5s of %v", expiresAt, wantAround)
	}
}

func TestEnsureValidTokenSingleFlightRefresh(t *testing.T) {
	// Token manager property: N concurrent callers with an initially
	// expired token perform exactly one refresh HTTP call and all
	// observe the same new access token.
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	writeCreds(t, path, credentialsFile{
		AccessToken:  "A1",
		RefreshToken: longToken("r1"),
		ExpiresAt:    time.Now().Add(-1 * time.Hour).UTC().Format(time.RFC3339),
	})

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond) // widen the race window
		json.NewEncoder(w).Encode(refreshResponse{AccessToken: "A2", ExpiresIn: 3600})
	}))
	defer srv.Close()

	m, err := NewManager(Config{
		CredentialsPath: path,
		Region:          "us-east-1",
		KiroVersion:     "1.0",
		HTTPClient:      srv.Client(),
		RefreshBaseURL:  srv.URL,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := m.EnsureValidToken(context.Background())
			if err != nil {
				t.Errorf("EnsureValidToken: %v", err)
				return
			}
			results[i] = tok
		}(i)
	}
	wg.Wait()

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly 1 refresh call, got %d", calls)
	}
	for _, r := range results {
		if r != "A2" {
			t.Fatalf("expected all callers to see A2, got %q", r)
		}
	}
}

func TestValidateRefreshTokenRejectsTruncated(t *testing.T) {
	cases := []struct {
		name  string
		token string
		ok    bool
	}{
		{"empty", "", false},
		{"too_short", "short", false},
		{"truncated_marker", strings.Repeat("a", 150) + "...", false},
		{"valid", longToken("xyz"), true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := validateRefreshToken(c.token)
			if c.ok && err != nil {
				t.Fatalf("expected valid, got error: %v", err)
			}
			if !c.ok && err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestDeriveMachineIDStability(t *testing.T) {
	id1 := DeriveMachineID("", "", longToken("same"))
	id2 := DeriveMachineID("", "", longToken("same"))
	if id1 != id2 || len(id1) != 64 {
		t.Fatalf("expected stable 64-char fingerprint, got %q / %q", id1, id2)
	}
	id3 := DeriveMachineID("", "arn:aws:iam::1234:profile/dev", "irrelevant-token")
	if len(id3) != 64 {
		t.Fatalf("expected 64-char fingerprint from profileArn, got %q", id3)
	}
	override := strings.Repeat("f", 64)
	if got := DeriveMachineID(override, "", ""); got != override {
		t.Fatalf("expected override to take precedence, got %q", got)
	}
}

func TestEnsureValidTokenSingleFlightUnderMutex(t *testing.T) {
	// N concurrent calls on an already-valid token all succeed and all
	// observe the same, unchanged access token.
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	writeCreds(t, path, credentialsFile{
		AccessToken:  "A1",
		RefreshToken: longToken("r1"),
		ExpiresAt:    time.Now().Add(1 * time.Hour).UTC().Format(time.RFC3339),
	})
	m, err := NewManager(Config{CredentialsPath: path, Region: "us-east-1", KiroVersion: "1.0"})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := m.EnsureValidToken(context.Background())
			if err != nil {
				t.Errorf("EnsureValidToken: %v", err)
				return
			}
			results[i] = tok
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		if r != "A1" {
			t.Fatalf("expected all callers to see A1, got %q", r)
		}
	}
}

func TestCredentialsRoundtripToDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	c := Credentials{
		AccessToken:  secret.New("A2"),
		RefreshToken: secret.New(longToken("r2")),
		ExpiresAt:    time.Now().Add(1 * time.Hour).UTC().Format(time.RFC3339),
	}
	if err := SaveCredentials(path, c); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}
	loaded, err := LoadCredentials(path)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if loaded.AccessToken.Expose() != "A2" {
		t.Fatalf("unexpected roundtrip access token: %q", loaded.AccessToken.Expose())
	}
	if loaded.ExpiresAt != c.ExpiresAt {
		t.Fatalf("unexpected roundtrip expiresAt: %q vs %q", loaded.ExpiresAt, c.ExpiresAt)
	}
}
