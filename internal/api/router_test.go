package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/confidential-ledger/internal/auth"
	"github.com/example/confidential-ledger/internal/crypto"
	"github.com/example/confidential-ledger/internal/ledger"
	"github.com/example/confidential-ledger/internal/proofs"
	"github.com/example/confidential-ledger/internal/signing"
	"github.com/example/confidential-ledger/pkg/audit"
)

type testServer struct {
	router http.Handler
	store  ledger.Store
	trail  *audit.ChainLogger
	tokens map[string]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	kms, err := crypto.NewFileBasedKMS(crypto.FileBasedKMSConfig{KeyStorePath: t.TempDir()})
	require.NoError(t, err)
	encryptor := crypto.NewAEADEncryptor(kms)

	store, err := ledger.NewSQLiteStore(db, encryptor)
	require.NoError(t, err)

	signers, err := signing.NewDBManager(db, encryptor)
	require.NoError(t, err)

	clients, err := auth.NewSQLiteClientStore(context.Background(), db)
	require.NoError(t, err)

	keys, err := auth.NewKeySet()
	require.NoError(t, err)

	oauth := &auth.OAuthServer{
		Store:          clients,
		Keys:           keys,
		Issuer:         "confidential-ledger",
		AccessTokenTTL: time.Minute,
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	trail := audit.NewChainLogger()

	router, err := NewRouter(Dependencies{
		Logger:       logger,
		OAuth:        oauth,
		JWTValidator: &auth.JWTValidator{KeySet: keys, Issuer: "confidential-ledger"},
		Store:        store,
		Engine:       proofs.NewEngine(store, logger, rand.Reader),
		Signers:      signers,
		Auditor:      trail,
		MaxBodyBytes: 1 << 20,
	})
	require.NoError(t, err)

	ts := &testServer{router: router, store: store, trail: trail, tokens: map[string]string{}}

	scopes := map[string][]string{
		"full":      {"accounts:read", "accounts:write", "proofs:read", "proofs:write", "settlements:read", "settlements:write", "signers:read", "signers:write"},
		"read-only": {"accounts:read"},
	}
	for id, sc := range scopes {
		require.NoError(t, clients.RegisterClient(context.Background(), id, "s3cret", sc))
		ts.tokens[id] = ts.fetchToken(t, id, "s3cret")
	}
	return ts
}

func (ts *testServer) fetchToken(t *testing.T, clientID, secret string) string {
	t.Helper()

	form := url.Values{"grant_type": {"client_credentials"}}
	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(clientID, secret)

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var tr auth.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	return tr.AccessToken
}

func (ts *testServer) do(t *testing.T, token, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.RemoteAddr = "127.0.0.1:55555"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, "", http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "confidential_ledger_api_requests_total")
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "", http.MethodGet, "/v1/accounts", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, "garbage", http.MethodGet, "/v1/accounts", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestScopeEnforcement(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, ts.tokens["read-only"], http.MethodGet, "/v1/accounts", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, ts.tokens["read-only"], http.MethodPost, "/v1/accounts", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUserLifecycle(t *testing.T) {
	ts := newTestServer(t)
	token := ts.tokens["full"]

	rec := ts.do(t, token, http.MethodPost, "/v1/users", map[string]any{"username": "alice"})
	require.Equal(t, http.StatusCreated, rec.Code)
	user := decodeBody[ledger.User](t, rec)
	assert.Equal(t, "alice", user.Username)

	rec = ts.do(t, token, http.MethodGet, "/v1/users/alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, token, http.MethodGet, "/v1/users/nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")
}

func TestSchemaValidation(t *testing.T) {
	ts := newTestServer(t)
	token := ts.tokens["full"]

	// Lowercase ticker violates the schema.
	rec := ts.do(t, token, http.MethodPost, "/v1/assets", map[string]any{"ticker": "acme"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation_error")

	// Unknown fields are rejected.
	rec = ts.do(t, token, http.MethodPost, "/v1/users", map[string]any{"username": "bob", "admin": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfidentialTransferFlow(t *testing.T) {
	ts := newTestServer(t)
	token := ts.tokens["full"]

	rec := ts.do(t, token, http.MethodPost, "/v1/assets", map[string]any{"ticker": "ACME"})
	require.Equal(t, http.StatusCreated, rec.Code)
	asset := decodeBody[ledger.Asset](t, rec)

	rec = ts.do(t, token, http.MethodPost, "/v1/accounts", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	sender := decodeBody[ledger.Account](t, rec)

	rec = ts.do(t, token, http.MethodPost, "/v1/accounts", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	receiver := decodeBody[ledger.Account](t, rec)

	senderBase := fmt.Sprintf("/v1/accounts/%s/assets/%s", sender.PublicKey, asset.ID)
	receiverBase := fmt.Sprintf("/v1/accounts/%s/assets/%s", receiver.PublicKey, asset.ID)

	rec = ts.do(t, token, http.MethodPost, senderBase, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = ts.do(t, token, http.MethodPost, receiverBase, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, token, http.MethodPost, senderBase+"/mint", map[string]any{"amount": 1000})
	require.Equal(t, http.StatusOK, rec.Code)
	minted := decodeBody[ledger.AccountAsset](t, rec)
	assert.Equal(t, uint64(1000), minted.Balance)

	rec = ts.do(t, token, http.MethodPost, senderBase+"/send", map[string]any{
		"receiver_public_key": receiver.PublicKey.String(),
		"amount":              400,
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	sent := decodeBody[sendResponse](t, rec)
	assert.Equal(t, uint64(600), sent.AccountAsset.Balance)
	require.NotEmpty(t, sent.Proof)

	// Receiver checks the claimed amount against the proof.
	rec = ts.do(t, token, http.MethodPost, receiverBase+"/receiver_verify", map[string]any{
		"proof":  sent.Proof.String(),
		"amount": 400,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeBody[proofs.VerifyResult](t, rec)
	assert.True(t, res.IsValid)
	require.NotNil(t, res.Amount)
	assert.Equal(t, uint64(400), *res.Amount)

	// Wrong claimed amount is invalid, not an error.
	rec = ts.do(t, token, http.MethodPost, receiverBase+"/receiver_verify", map[string]any{
		"proof":  sent.Proof.String(),
		"amount": 401,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	res = decodeBody[proofs.VerifyResult](t, rec)
	assert.False(t, res.IsValid)

	// Sending more than the balance fails before any write.
	rec = ts.do(t, token, http.MethodPost, senderBase+"/send", map[string]any{
		"receiver_public_key": receiver.PublicKey.String(),
		"amount":              601,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient_balance")

	// Decrypt the sender's stored ciphertext.
	rec = ts.do(t, token, http.MethodGet, senderBase, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	row := decodeBody[ledger.AccountAsset](t, rec)
	rec = ts.do(t, token, http.MethodPost, senderBase+"/decrypt", map[string]any{
		"ciphertext": row.EncBalance.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	dec := decodeBody[decryptResponse](t, rec)
	assert.Equal(t, uint64(600), dec.Amount)
}

func TestBurnFlow(t *testing.T) {
	ts := newTestServer(t)
	token := ts.tokens["full"]

	rec := ts.do(t, token, http.MethodPost, "/v1/assets", map[string]any{"ticker": "GOLD"})
	require.Equal(t, http.StatusCreated, rec.Code)
	asset := decodeBody[ledger.Asset](t, rec)

	rec = ts.do(t, token, http.MethodPost, "/v1/accounts", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	account := decodeBody[ledger.Account](t, rec)

	base := fmt.Sprintf("/v1/accounts/%s/assets/%s", account.PublicKey, asset.ID)
	rec = ts.do(t, token, http.MethodPost, base, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = ts.do(t, token, http.MethodPost, base+"/mint", map[string]any{"amount": 500})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, token, http.MethodPost, base+"/burn", map[string]any{"amount": 200})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	burned := decodeBody[sendResponse](t, rec)
	assert.Equal(t, uint64(300), burned.AccountAsset.Balance)
}

func TestSignerRoutes(t *testing.T) {
	ts := newTestServer(t)
	token := ts.tokens["full"]

	rec := ts.do(t, token, http.MethodPost, "/v1/signers", map[string]any{"name": "operator"})
	require.Equal(t, http.StatusCreated, rec.Code)
	info := decodeBody[signing.SignerInfo](t, rec)
	assert.Equal(t, "operator", info.Name)
	assert.NotEmpty(t, info.PublicKey)

	rec = ts.do(t, token, http.MethodGet, "/v1/signers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	infos := decodeBody[[]signing.SignerInfo](t, rec)
	assert.Len(t, infos, 1)

	rec = ts.do(t, token, http.MethodGet, "/v1/signers/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChainRoutesUnavailableWithoutNode(t *testing.T) {
	ts := newTestServer(t)
	token := ts.tokens["full"]

	rec := ts.do(t, token, http.MethodPost, "/v1/tx/venues", map[string]any{"signer": "operator"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "chain_unavailable")

	rec = ts.do(t, token, http.MethodGet, "/v1/tx/settlements", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuditTrailRecordsRequests(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, ts.tokens["full"], http.MethodGet, "/v1/accounts", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	entries := ts.trail.Entries()
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, "http_request", last.Kind)
	assert.Contains(t, last.Payload, "path=/v1/accounts")
	assert.True(t, audit.VerifyChain(entries))
}

func TestBodySizeLimit(t *testing.T) {
	ts := newTestServer(t)
	token := ts.tokens["full"]

	big := strings.Repeat("x", 2<<20)
	rec := ts.do(t, token, http.MethodPost, "/v1/users", map[string]any{"username": big})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "payload_too_large")
}
