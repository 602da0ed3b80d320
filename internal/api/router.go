package api

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/confidential-ledger/internal/auth"
	"github.com/example/confidential-ledger/internal/ledger"
	"github.com/example/confidential-ledger/internal/proofs"
	"github.com/example/confidential-ledger/internal/security"
	"github.com/example/confidential-ledger/internal/settlement"
	"github.com/example/confidential-ledger/internal/signing"
)

// Dependencies wires the HTTP layer to the rest of the service.
// Coordinator and Records are nil when no chain node is configured; the
// /tx routes then answer 503 chain_unavailable.
type Dependencies struct {
	Logger       *slog.Logger
	OAuth        *auth.OAuthServer
	JWTValidator *auth.JWTValidator

	Store       ledger.Store
	Engine      *proofs.Engine
	Signers     signing.Manager
	Coordinator *settlement.Coordinator
	Records     settlement.RecordStore

	Auditor      Auditor
	RateLimiter  *security.RedisTokenBucket
	IPAllowlist  []*net.IPNet
	MaxBodyBytes int64
}

type validators struct {
	byName map[string]*security.JSONSchemaValidator
}

func compileValidators() (*validators, error) {
	schemas := map[string]string{
		"create_user":          createUserSchema,
		"create_asset":         createAssetSchema,
		"amount":               amountSchema,
		"send":                 sendSchema,
		"burn":                 burnSchema,
		"receiver_verify":      receiverVerifySchema,
		"auditor_verify":       auditorVerifySchema,
		"verify":               verifySchema,
		"decrypt":              decryptSchema,
		"update_balance":       updateBalanceSchema,
		"create_signer":        createSignerSchema,
		"signer_only":          signerOnlySchema,
		"tx_init_account":      txInitAccountSchema,
		"tx_create_asset":      txCreateAssetSchema,
		"tx_mint":              txMintSchema,
		"tx_allow_venues":      txAllowVenuesSchema,
		"tx_create_settlement": txCreateSettlementSchema,
		"tx_affirm":            txAffirmSchema,
		"tx_batch_affirm":      txBatchAffirmSchema,
	}

	v := &validators{byName: make(map[string]*security.JSONSchemaValidator, len(schemas))}
	for name, schema := range schemas {
		compiled, err := security.NewJSONSchemaValidator(schema)
		if err != nil {
			return nil, err
		}
		v.byName[name] = compiled
	}
	return v, nil
}

func (v *validators) mw(name string) func(http.Handler) http.Handler {
	return v.byName[name].Middleware
}

// NewRouter assembles the full middleware chain and route table.
func NewRouter(deps Dependencies) (http.Handler, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	v, err := compileValidators()
	if err != nil {
		return nil, err
	}

	onAuthError := func(w http.ResponseWriter, r *http.Request, status int, code string) {
		security.WriteJSONError(w, r, status, code)
	}
	scoped := func(scope string) func(http.Handler) http.Handler {
		return auth.RequireScopes(onAuthError, scope)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(security.CorrelationID)
	r.Use(RequestLogger(deps.Logger))
	r.Use(metricsMiddleware)
	r.Use(security.BodySizeLimit(deps.MaxBodyBytes))
	r.Use(security.IPAllowlist(deps.IPAllowlist))
	if deps.RateLimiter != nil {
		r.Use(security.RateLimitMiddleware(deps.RateLimiter, rateLimitKeyByIP))
	}
	if deps.Auditor != nil {
		r.Use(AuditMiddleware(deps.Auditor))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if deps.OAuth != nil {
		r.Post("/oauth/token", deps.OAuth.TokenHandler)
		r.Get("/oauth/jwks.json", deps.OAuth.JWKSHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Authenticate(deps.JWTValidator, onAuthError))

		r.Route("/users", func(r chi.Router) {
			r.With(scoped("accounts:read")).Get("/", handleListUsers(deps))
			r.With(scoped("accounts:read")).Get("/{username}", handleGetUser(deps))
			r.With(scoped("accounts:write"), v.mw("create_user")).Post("/", handleCreateUser(deps))
		})

		r.Route("/assets", func(r chi.Router) {
			r.With(scoped("accounts:read")).Get("/", handleListAssets(deps))
			r.With(scoped("accounts:read")).Get("/{assetID}", handleGetAsset(deps))
			r.With(scoped("accounts:write"), v.mw("create_asset")).Post("/", handleCreateAsset(deps))
		})

		r.Route("/accounts", func(r chi.Router) {
			r.With(scoped("accounts:read")).Get("/", handleListAccounts(deps))
			r.With(scoped("accounts:write")).Post("/", handleCreateAccount(deps))

			r.Route("/{publicKey}", func(r chi.Router) {
				r.With(scoped("accounts:read")).Get("/", handleGetAccount(deps))
				r.With(scoped("accounts:read")).Get("/assets", handleListAccountAssets(deps))

				r.Route("/assets/{assetID}", func(r chi.Router) {
					r.With(scoped("accounts:read")).Get("/", handleGetAccountAsset(deps))
					r.With(scoped("accounts:write")).Post("/", handleInitAccountAsset(deps))

					r.With(scoped("proofs:write"), v.mw("amount")).Post("/mint", handleMint(deps))
					r.With(scoped("proofs:write"), v.mw("send")).Post("/send", handleSend(deps))
					r.With(scoped("proofs:write"), v.mw("burn")).Post("/burn", handleBurn(deps))
					r.With(scoped("proofs:read"), v.mw("receiver_verify")).Post("/receiver_verify", handleReceiverVerify(deps))
					r.With(scoped("proofs:read"), v.mw("auditor_verify")).Post("/auditor_verify", handleAuditorVerify(deps))
					r.With(scoped("proofs:read"), v.mw("decrypt")).Post("/decrypt", handleDecrypt(deps))
					r.With(scoped("proofs:write"), v.mw("update_balance")).Post("/update_balance", handleUpdateBalance(deps))
				})
			})
		})

		r.With(scoped("proofs:read"), v.mw("verify")).Post("/verify", handleVerifyProof(deps))

		r.Route("/signers", func(r chi.Router) {
			r.With(scoped("signers:read")).Get("/", handleListSigners(deps))
			r.With(scoped("signers:read")).Get("/{name}", handleGetSigner(deps))
			r.With(scoped("signers:write"), v.mw("create_signer")).Post("/", handleCreateSigner(deps))
		})

		r.Route("/tx", func(r chi.Router) {
			r.With(scoped("settlements:write"), v.mw("tx_init_account")).Post("/accounts", handleTxInitAccount(deps))
			r.With(scoped("settlements:write"), v.mw("tx_create_asset")).Post("/assets", handleTxCreateAsset(deps))
			r.With(scoped("settlements:write"), v.mw("tx_mint")).Post("/assets/{assetID}/mint", handleTxMint(deps))
			r.With(scoped("settlements:write"), v.mw("tx_allow_venues")).Post("/assets/{assetID}/venues", handleTxAllowVenues(deps))
			r.With(scoped("settlements:write"), v.mw("signer_only")).Post("/venues", handleTxCreateVenue(deps))

			r.With(scoped("settlements:read")).Get("/settlements", handleListSettlements(deps))
			r.With(scoped("settlements:read")).Get("/settlements/{transactionID}", handleGetSettlement(deps))
			r.With(scoped("settlements:read")).Get("/settlements/{transactionID}/events", handleListSettlementEvents(deps))
			r.With(scoped("settlements:write"), v.mw("tx_create_settlement")).Post("/settlements", handleTxCreateSettlement(deps))
			r.With(scoped("settlements:write"), v.mw("signer_only")).Post("/settlements/{transactionID}/execute", handleTxExecuteSettlement(deps))

			r.With(scoped("settlements:write"), v.mw("tx_affirm")).Post("/affirm/sender", handleTxAffirm(deps, settlement.PartySender))
			r.With(scoped("settlements:write"), v.mw("tx_affirm")).Post("/affirm/receiver", handleTxAffirm(deps, settlement.PartyReceiver))
			r.With(scoped("settlements:write"), v.mw("tx_affirm")).Post("/affirm/mediator", handleTxAffirm(deps, settlement.PartyMediator))
			r.With(scoped("settlements:write"), v.mw("tx_batch_affirm")).Post("/affirm/batch", handleTxBatchAffirm(deps))

			r.With(scoped("settlements:read")).Get("/accounts/{publicKey}/incoming", handleTxIncomingList(deps))
			r.With(scoped("settlements:read")).Get("/accounts/{publicKey}/incoming/{assetID}", handleTxIncomingGet(deps))
			r.With(scoped("settlements:write"), v.mw("signer_only")).Post("/accounts/{publicKey}/incoming/apply", handleTxApplyAllIncoming(deps))
			r.With(scoped("settlements:write"), v.mw("signer_only")).Post("/accounts/{publicKey}/incoming/{assetID}/apply", handleTxApplyIncoming(deps))
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusNotFound, "not_found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	return r, nil
}

func rateLimitKeyByIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	return "ip:" + host
}
