package gcal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/ultimaforsan/ultima/internal/tokenfile"
)

const installedCredentials = `{"installed": {
	"client_id": "client-abc.apps.googleusercontent.com",
	"client_secret": "secret",
	"auth_uri": "https://accounts.google.com/o/oauth2/auth",
	"token_uri": "https://oauth2.googleapis.com/token",
	"redirect_uris": ["http://localhost"]
}}`

// newTokenServer serves a fixed token response at /token.
func newTokenServer(t *testing.T, body string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token" {
			http.NotFound(w, r)
			return
		}

		writeJSON(w, http.StatusOK, body)
	}))
	t.Cleanup(srv.Close)

	return srv
}

func testOAuthConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client-abc",
		ClientSecret: "secret",
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://example.invalid/auth",
			TokenURL: tokenURL,
		},
	}
}

func TestOAuthConfig_FromInstalledCredentials(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(installedCredentials), 0o600))

	cfg, err := OAuthConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "client-abc.apps.googleusercontent.com", cfg.ClientID)
	assert.Equal(t, Scopes, cfg.Scopes)
	assert.Equal(t, "https://oauth2.googleapis.com/token", cfg.Endpoint.TokenURL)
}

func TestOAuthConfig_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := OAuthConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading credentials")
}

func TestOAuthConfig_InvalidJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	_, err := OAuthConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing credentials")
}

func TestHandleOAuthCallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		query    string
		wantCode string
		wantErr  string
		status   int
	}{
		{name: "success", query: "?state=s1&code=abc", wantCode: "abc", status: http.StatusOK},
		{name: "state mismatch", query: "?state=evil&code=abc", wantErr: "state mismatch", status: http.StatusBadRequest},
		{name: "provider error", query: "?state=s1&error=access_denied", wantErr: "access_denied", status: http.StatusBadRequest},
		{name: "missing code", query: "?state=s1", wantErr: "missing authorization code", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resultCh := make(chan callbackResult, 1)
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)

			handleOAuthCallback(rec, req, "s1", resultCh)

			assert.Equal(t, tt.status, rec.Code)

			result := <-resultCh
			if tt.wantErr != "" {
				require.Error(t, result.err)
				assert.Contains(t, result.err.Error(), tt.wantErr)

				return
			}

			require.NoError(t, result.err)
			assert.Equal(t, tt.wantCode, result.code)
		})
	}
}

func TestHandleOAuthCallback_SecondHitDropped(t *testing.T) {
	t.Parallel()

	resultCh := make(chan callbackResult, 1)

	handleOAuthCallback(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/?state=s&code=one", nil), "s", resultCh)
	handleOAuthCallback(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/?state=s&code=two", nil), "s", resultCh)

	result := <-resultCh
	assert.Equal(t, "one", result.code)
	assert.Empty(t, resultCh)
}

func TestWaitForCallback_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := waitForCallback(ctx, make(chan callbackResult))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExchangeAndSave(t *testing.T) {
	t.Parallel()

	srv := newTokenServer(t, `{"access_token":"at-1","refresh_token":"rt-1","token_type":"Bearer","expires_in":3600}`)
	cfg := testOAuthConfig(srv.URL + "/token")
	path := filepath.Join(t.TempDir(), "token.json")

	ts, err := exchangeAndSave(context.Background(), cfg, path, "code", oauth2.GenerateVerifier(), testLogger(t))
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "at-1", tok.AccessToken)

	tf, err := tokenfile.Load(path)
	require.NoError(t, err)
	require.NotNil(t, tf)
	assert.Equal(t, "rt-1", tf.Token.RefreshToken)
	assert.Equal(t, Scopes, tf.Scopes)
}

func TestTokenSourceFromPath_NoFile(t *testing.T) {
	t.Parallel()

	cfg := testOAuthConfig("http://127.0.0.1:1/token")

	_, err := TokenSourceFromPath(context.Background(), cfg, filepath.Join(t.TempDir(), "token.json"), testLogger(t))
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestTokenSourceFromPath_ScopeMismatch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, tokenfile.Save(path, &oauth2.Token{AccessToken: "a"}, []string{"other-scope"}))

	cfg := testOAuthConfig("http://127.0.0.1:1/token")

	_, err := TokenSourceFromPath(context.Background(), cfg, path, testLogger(t))
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestTokenSourceFromPath_ValidToken(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "token.json")
	tok := &oauth2.Token{AccessToken: "still-good", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
	require.NoError(t, tokenfile.Save(path, tok, Scopes))

	cfg := testOAuthConfig("http://127.0.0.1:1/token")

	ts, err := TokenSourceFromPath(context.Background(), cfg, path, testLogger(t))
	require.NoError(t, err)

	got, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "still-good", got.AccessToken)
}

func TestTokenSourceFromPath_RefreshPersists(t *testing.T) {
	t.Parallel()

	srv := newTokenServer(t, `{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`)
	path := filepath.Join(t.TempDir(), "token.json")

	expired := &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "rt-1",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Hour),
	}
	require.NoError(t, tokenfile.Save(path, expired, Scopes))

	ts, err := TokenSourceFromPath(context.Background(), testOAuthConfig(srv.URL+"/token"), path, testLogger(t))
	require.NoError(t, err)

	got, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.AccessToken)

	tf, err := tokenfile.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fresh", tf.Token.AccessToken)
	// The refresher carries the old refresh token forward when none is returned.
	assert.Equal(t, "rt-1", tf.Token.RefreshToken)
}

func TestPersistingSource_ErrorIsRemoteUnavailable(t *testing.T) {
	t.Parallel()

	ps := newPersistingSource(failingSource{}, nil, filepath.Join(t.TempDir(), "t.json"), Scopes, testLogger(t))

	_, err := ps.Token()
	assert.ErrorIs(t, err, ErrRemoteUnavailable)
}

func TestLogout(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, tokenfile.Save(path, &oauth2.Token{AccessToken: "a"}, Scopes))

	require.NoError(t, Logout(path, testLogger(t)))
	assert.NoFileExists(t, path)

	// Second logout is a no-op.
	require.NoError(t, Logout(path, testLogger(t)))
}

func TestGenerateState(t *testing.T) {
	t.Parallel()

	a, err := generateState()
	require.NoError(t, err)

	b, err := generateState()
	require.NoError(t, err)

	assert.Len(t, a, stateTokenBytes*2)
	assert.NotEqual(t, a, b)
}
