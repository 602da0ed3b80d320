package auth

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*OAuthServer, *SQLiteClientStore) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteClientStore(context.Background(), db)
	require.NoError(t, err)

	keys, err := NewKeySet()
	require.NoError(t, err)

	return &OAuthServer{
		Store:          store,
		Keys:           keys,
		Issuer:         "confidential-ledger",
		AccessTokenTTL: time.Minute,
	}, store
}

func requestToken(t *testing.T, srv *OAuthServer, clientID, secret, scope string) *httptest.ResponseRecorder {
	t.Helper()

	form := url.Values{"grant_type": {"client_credentials"}}
	if scope != "" {
		form.Set("scope", scope)
	}
	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(clientID, secret)

	rec := httptest.NewRecorder()
	srv.TokenHandler(rec, req)
	return rec
}

func TestTokenIssuanceAndValidation(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	err := store.RegisterClient(ctx, "operator-cli", "s3cret", []string{"accounts:read", "accounts:write", "proofs:write"})
	require.NoError(t, err)

	rec := requestToken(t, srv, "operator-cli", "s3cret", "accounts:read proofs:write")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "access_token")

	body := rec.Body.String()
	start := strings.Index(body, `"access_token":"`) + len(`"access_token":"`)
	end := strings.Index(body[start:], `"`)
	token := body[start : start+end]

	v := &JWTValidator{KeySet: srv.Keys, Issuer: "confidential-ledger"}
	claims, err := v.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "operator-cli", claims.ClientID)
	assert.ElementsMatch(t, []string{"accounts:read", "proofs:write"}, claims.Scopes)
}

func TestTokenRejectsBadSecret(t *testing.T) {
	srv, store := newTestServer(t)
	require.NoError(t, store.RegisterClient(context.Background(), "operator-cli", "s3cret", []string{"accounts:read"}))

	rec := requestToken(t, srv, "operator-cli", "wrong", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenRejectsUnknownClient(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := requestToken(t, srv, "ghost", "s3cret", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenRejectsForeignScope(t *testing.T) {
	srv, store := newTestServer(t)
	require.NoError(t, store.RegisterClient(context.Background(), "operator-cli", "s3cret", []string{"accounts:read"}))

	rec := requestToken(t, srv, "operator-cli", "s3cret", "signers:write")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireScopes(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, store.RegisterClient(ctx, "operator-cli", "s3cret", []string{"settlements:write"}))

	rec := requestToken(t, srv, "operator-cli", "s3cret", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	start := strings.Index(body, `"access_token":"`) + len(`"access_token":"`)
	end := strings.Index(body[start:], `"`)
	token := body[start : start+end]

	onError := func(w http.ResponseWriter, r *http.Request, status int, code string) {
		w.WriteHeader(status)
	}
	v := &JWTValidator{KeySet: srv.Keys, Issuer: "confidential-ledger"}

	ok := false
	handler := Authenticate(v, onError)(
		RequireScopes(onError, "settlements:write")(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ai, found := AuthInfoFromContext(r.Context())
				require.True(t, found)
				assert.Equal(t, "operator-cli", ai.ClientID)
				ok = true
			})))

	req := httptest.NewRequest(http.MethodGet, "/v1/settlements", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.True(t, ok)

	// Same token lacks signers:write.
	denied := Authenticate(v, onError)(
		RequireScopes(onError, "signers:write")(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not run without scope")
			})))
	w = httptest.NewRecorder()
	denied.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
