package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/example/confidential-ledger/internal/ledger"
	"github.com/example/confidential-ledger/internal/security"
	"github.com/example/confidential-ledger/internal/settlement"
)

func parseHex(s string) ([]byte, bool) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(b) == 0 {
		return nil, false
	}
	return b, true
}

func parseHexList(in []string) ([][]byte, bool) {
	out := make([][]byte, 0, len(in))
	for _, s := range in {
		b, ok := parseHex(s)
		if !ok {
			return nil, false
		}
		out = append(out, b)
	}
	return out, true
}

func accountKeyParam(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	pk, ok := parseHex(chi.URLParam(r, "publicKey"))
	if !ok {
		security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_public_key")
		return nil, false
	}
	return pk, true
}

// --- users ---

func handleCreateUser(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		user, err := deps.Store.CreateUser(r.Context(), req.Username)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, user)
	}
}

func handleListUsers(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := deps.Store.ListUsers(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, users)
	}
}

func handleGetUser(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := deps.Store.GetUser(r.Context(), chi.URLParam(r, "username"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, user)
	}
}

// --- assets ---

func handleCreateAsset(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Ticker string `json:"ticker"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		asset, err := deps.Store.CreateAsset(r.Context(), uuid.NewString(), req.Ticker)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, asset)
	}
}

func handleListAssets(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assets, err := deps.Store.ListAssets(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, assets)
	}
}

func handleGetAsset(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "assetID")
		asset, err := deps.Store.GetAsset(r.Context(), id)
		var nf *ledger.NotFoundError
		if err != nil && errors.As(err, &nf) {
			// Ticker fallback so both forms of asset identity resolve.
			asset, err = deps.Store.GetAssetByTicker(r.Context(), id)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, asset)
	}
}

// --- accounts ---

func handleCreateAccount(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, err := deps.Store.CreateAccount(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, account)
	}
}

func handleListAccounts(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts, err := deps.Store.ListAccounts(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, accounts)
	}
}

func handleGetAccount(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pk, ok := accountKeyParam(w, r)
		if !ok {
			return
		}
		account, err := deps.Store.GetAccount(r.Context(), pk)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, account)
	}
}

// --- account assets ---

func handleInitAccountAsset(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pk, ok := accountKeyParam(w, r)
		if !ok {
			return
		}
		aa, err := deps.Store.InitAccountAsset(r.Context(), pk, chi.URLParam(r, "assetID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, aa)
	}
}

func handleListAccountAssets(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pk, ok := accountKeyParam(w, r)
		if !ok {
			return
		}
		rows, err := deps.Store.ListAccountAssets(r.Context(), pk)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, rows)
	}
}

func handleGetAccountAsset(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pk, ok := accountKeyParam(w, r)
		if !ok {
			return
		}
		aa, err := deps.Store.GetAccountAsset(r.Context(), pk, chi.URLParam(r, "assetID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, aa)
	}
}

// --- proof operations ---

// withAccountAsset loads the balance row with its secret key, runs fn,
// and wipes the key before returning.
func withAccountAsset(deps Dependencies, w http.ResponseWriter, r *http.Request, fn func(aa *ledger.AccountAssetWithSecret)) {
	pk, ok := accountKeyParam(w, r)
	if !ok {
		return
	}
	aa, err := deps.Engine.AccountAsset(r.Context(), pk, chi.URLParam(r, "assetID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer aa.Account.Wipe()
	fn(aa)
}

func handleMint(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Amount uint64 `json:"amount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		withAccountAsset(deps, w, r, func(aa *ledger.AccountAssetWithSecret) {
			update, err := deps.Engine.Mint(r.Context(), aa, req.Amount)
			if err != nil {
				writeError(w, r, err)
				return
			}
			row, err := deps.Engine.Commit(r.Context(), update, false)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, r, http.StatusOK, row)
		})
	}
}

type sendResponse struct {
	AccountAsset *ledger.AccountAsset `json:"account_asset"`
	Proof        ledger.HexBytes      `json:"proof"`
}

func handleSend(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ReceiverPublicKey string   `json:"receiver_public_key"`
			AuditorPublicKeys []string `json:"auditor_public_keys"`
			Amount            uint64   `json:"amount"`
			PriorEncBalance   string   `json:"prior_enc_balance"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		receiverPK, ok := parseHex(req.ReceiverPublicKey)
		if !ok {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_public_key")
			return
		}
		auditorPKs, ok := parseHexList(req.AuditorPublicKeys)
		if !ok {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_public_key")
			return
		}
		var prior []byte
		if req.PriorEncBalance != "" {
			if prior, ok = parseHex(req.PriorEncBalance); !ok {
				security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_ciphertext")
				return
			}
		}

		withAccountAsset(deps, w, r, func(aa *ledger.AccountAssetWithSecret) {
			update, proof, err := deps.Engine.CreateSendProof(r.Context(), aa, prior, receiverPK, auditorPKs, req.Amount)
			if err != nil {
				writeError(w, r, err)
				return
			}
			row, err := deps.Engine.Commit(r.Context(), update, false)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, r, http.StatusOK, sendResponse{AccountAsset: row, Proof: proof.Encode()})
		})
	}
}

func handleBurn(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AuditorPublicKeys []string `json:"auditor_public_keys"`
			Amount            uint64   `json:"amount"`
			PriorEncBalance   string   `json:"prior_enc_balance"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		auditorPKs, ok := parseHexList(req.AuditorPublicKeys)
		if !ok {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_public_key")
			return
		}
		var prior []byte
		if req.PriorEncBalance != "" {
			if prior, ok = parseHex(req.PriorEncBalance); !ok {
				security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_ciphertext")
				return
			}
		}

		withAccountAsset(deps, w, r, func(aa *ledger.AccountAssetWithSecret) {
			update, proof, err := deps.Engine.CreateBurnProof(r.Context(), aa, prior, auditorPKs, req.Amount)
			if err != nil {
				writeError(w, r, err)
				return
			}
			row, err := deps.Engine.Commit(r.Context(), update, false)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, r, http.StatusOK, sendResponse{AccountAsset: row, Proof: proof.Encode()})
		})
	}
}

func handleReceiverVerify(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Proof  string `json:"proof"`
			Amount uint64 `json:"amount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}
		proofBytes, ok := parseHex(req.Proof)
		if !ok {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_proof")
			return
		}

		withAccountAsset(deps, w, r, func(aa *ledger.AccountAssetWithSecret) {
			res := deps.Engine.ReceiverVerify(r.Context(), proofBytes, aa, req.Amount)
			writeJSON(w, r, http.StatusOK, res)
		})
	}
}

func handleAuditorVerify(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Proof        string  `json:"proof"`
			AuditorIndex int     `json:"auditor_index"`
			Amount       *uint64 `json:"amount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}
		proofBytes, ok := parseHex(req.Proof)
		if !ok {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_proof")
			return
		}

		withAccountAsset(deps, w, r, func(aa *ledger.AccountAssetWithSecret) {
			res := deps.Engine.AuditorVerify(r.Context(), proofBytes, aa, req.AuditorIndex, req.Amount)
			writeJSON(w, r, http.StatusOK, res)
		})
	}
}

func handleVerifyProof(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Proof             string   `json:"proof"`
			SenderPublicKey   string   `json:"sender_public_key"`
			SenderEncBalance  string   `json:"sender_enc_balance"`
			ReceiverPublicKey string   `json:"receiver_public_key"`
			AuditorPublicKeys []string `json:"auditor_public_keys"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}
		proofBytes, ok := parseHex(req.Proof)
		if !ok {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_proof")
			return
		}

		var senderPK, senderBalance, receiverPK []byte
		if req.SenderPublicKey != "" {
			if senderPK, ok = parseHex(req.SenderPublicKey); !ok {
				security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_public_key")
				return
			}
		}
		if req.SenderEncBalance != "" {
			if senderBalance, ok = parseHex(req.SenderEncBalance); !ok {
				security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_ciphertext")
				return
			}
		}
		if req.ReceiverPublicKey != "" {
			if receiverPK, ok = parseHex(req.ReceiverPublicKey); !ok {
				security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_public_key")
				return
			}
		}
		auditorPKs, ok := parseHexList(req.AuditorPublicKeys)
		if !ok {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_public_key")
			return
		}

		res := deps.Engine.VerifySendProof(senderPK, senderBalance, receiverPK, auditorPKs, proofBytes)
		writeJSON(w, r, http.StatusOK, res)
	}
}

type decryptResponse struct {
	Amount uint64 `json:"amount"`
}

func handleDecrypt(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Ciphertext string `json:"ciphertext"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}
		ct, ok := parseHex(req.Ciphertext)
		if !ok {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_ciphertext")
			return
		}

		withAccountAsset(deps, w, r, func(aa *ledger.AccountAssetWithSecret) {
			amount, err := deps.Engine.Decrypt(aa, ct)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, r, http.StatusOK, decryptResponse{Amount: amount})
		})
	}
}

func handleUpdateBalance(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			EncBalance string `json:"enc_balance"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}
		enc, ok := parseHex(req.EncBalance)
		if !ok {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_ciphertext")
			return
		}

		withAccountAsset(deps, w, r, func(aa *ledger.AccountAssetWithSecret) {
			update, err := deps.Engine.UpdateBalance(r.Context(), aa, enc)
			if err != nil {
				writeError(w, r, err)
				return
			}
			row, err := deps.Engine.Commit(r.Context(), update, true)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, r, http.StatusOK, row)
		})
	}
}

// --- signers ---

func handleCreateSigner(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		info, err := deps.Signers.CreateSigner(r.Context(), req.Name)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, info)
	}
}

func handleListSigners(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		infos, err := deps.Signers.ListSigners(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, infos)
	}
}

func handleGetSigner(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := deps.Signers.GetSignerInfo(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, info)
	}
}

// --- settlement (chain) routes ---

func requireCoordinator(deps Dependencies, w http.ResponseWriter, r *http.Request) bool {
	if deps.Coordinator == nil {
		security.WriteJSONError(w, r, http.StatusServiceUnavailable, "chain_unavailable")
		return false
	}
	return true
}

func handleTxInitAccount(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireCoordinator(deps, w, r) {
			return
		}
		var req struct {
			Signer    string `json:"signer"`
			PublicKey string `json:"public_key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}
		pk, ok := parseHex(req.PublicKey)
		if !ok {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_public_key")
			return
		}

		res, err := deps.Coordinator.InitAccount(r.Context(), req.Signer, pk)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, res)
	}
}

func handleTxCreateAsset(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireCoordinator(deps, w, r) {
			return
		}
		var req struct {
			Signer             string   `json:"signer"`
			Ticker             string   `json:"ticker"`
			AuditorPublicKeys  []string `json:"auditor_public_keys"`
			MediatorPublicKeys []string `json:"mediator_public_keys"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}
		auditors, ok := parseHexList(req.AuditorPublicKeys)
		if !ok {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_public_key")
			return
		}
		mediators, ok := parseHexList(req.MediatorPublicKeys)
		if !ok {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_public_key")
			return
		}

		res, err := deps.Coordinator.CreateAsset(r.Context(), req.Signer, req.Ticker, auditors, mediators)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, res)
	}
}

func handleTxMint(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireCoordinator(deps, w, r) {
			return
		}
		var req struct {
			Signer    string `json:"signer"`
			PublicKey string `json:"public_key"`
			Amount    uint64 `json:"amount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}
		pk, ok := parseHex(req.PublicKey)
		if !ok {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_public_key")
			return
		}

		res, err := deps.Coordinator.Mint(r.Context(), req.Signer, pk, chi.URLParam(r, "assetID"), req.Amount)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, res)
	}
}

func handleTxCreateVenue(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireCoordinator(deps, w, r) {
			return
		}
		var req struct {
			Signer string `json:"signer"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		res, err := deps.Coordinator.CreateVenue(r.Context(), req.Signer)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, res)
	}
}

func handleTxAllowVenues(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireCoordinator(deps, w, r) {
			return
		}
		var req struct {
			Signer string   `json:"signer"`
			Venues []uint64 `json:"venues"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		res, err := deps.Coordinator.AllowVenues(r.Context(), req.Signer, chi.URLParam(r, "assetID"), req.Venues)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, res)
	}
}

type settlementLegRequest struct {
	Sender    string   `json:"sender"`
	Receiver  string   `json:"receiver"`
	Mediators []string `json:"mediators"`
	Auditors  []string `json:"auditors"`
	AssetIDs  []string `json:"asset_ids"`
}

func handleTxCreateSettlement(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireCoordinator(deps, w, r) {
			return
		}
		var req struct {
			Signer  string                 `json:"signer"`
			VenueID uint64                 `json:"venue_id"`
			Memo    string                 `json:"memo"`
			Legs    []settlementLegRequest `json:"legs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		legs := make([]settlement.LegInput, 0, len(req.Legs))
		for _, l := range req.Legs {
			sender, ok1 := parseHex(l.Sender)
			receiver, ok2 := parseHex(l.Receiver)
			mediators, ok3 := parseHexList(l.Mediators)
			auditors, ok4 := parseHexList(l.Auditors)
			if !ok1 || !ok2 || !ok3 || !ok4 {
				security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_public_key")
				return
			}
			legs = append(legs, settlement.LegInput{
				Sender:    sender,
				Receiver:  receiver,
				Mediators: mediators,
				Auditors:  auditors,
				AssetIDs:  l.AssetIDs,
			})
		}

		res, err := deps.Coordinator.CreateSettlement(r.Context(), req.Signer, req.VenueID, legs, req.Memo)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, res)
	}
}

func handleTxExecuteSettlement(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireCoordinator(deps, w, r) {
			return
		}
		id, err := strconv.ParseUint(chi.URLParam(r, "transactionID"), 10, 64)
		if err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_transaction_id")
			return
		}
		var req struct {
			Signer string `json:"signer"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		res, err := deps.Coordinator.ExecuteSettlement(r.Context(), req.Signer, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, res)
	}
}

type affirmLegRequest struct {
	TransactionID uint64                   `json:"transaction_id"`
	LegID         uint32                   `json:"leg_id"`
	Party         string                   `json:"party"`
	Amounts       []settlement.AssetAmount `json:"amounts"`
}

func handleTxAffirm(deps Dependencies, party settlement.Party) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireCoordinator(deps, w, r) {
			return
		}
		var req struct {
			Signer    string           `json:"signer"`
			PublicKey string           `json:"public_key"`
			Leg       affirmLegRequest `json:"leg"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}
		pk, ok := parseHex(req.PublicKey)
		if !ok {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_public_key")
			return
		}

		leg := settlement.AffirmLeg{
			TransactionID: req.Leg.TransactionID,
			LegID:         req.Leg.LegID,
			Party:         party,
			Amounts:       req.Leg.Amounts,
		}

		var res any
		var err error
		switch party {
		case settlement.PartySender:
			res, err = deps.Coordinator.AffirmAsSender(r.Context(), req.Signer, pk, leg)
		case settlement.PartyReceiver:
			res, err = deps.Coordinator.AffirmAsReceiver(r.Context(), req.Signer, pk, leg)
		default:
			res, err = deps.Coordinator.AffirmAsMediator(r.Context(), req.Signer, pk, leg)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, res)
	}
}

func handleTxBatchAffirm(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireCoordinator(deps, w, r) {
			return
		}
		var req struct {
			Signer    string             `json:"signer"`
			PublicKey string             `json:"public_key"`
			Legs      []affirmLegRequest `json:"legs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}
		pk, ok := parseHex(req.PublicKey)
		if !ok {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_public_key")
			return
		}

		legs := make([]settlement.AffirmLeg, 0, len(req.Legs))
		for _, l := range req.Legs {
			if l.Party == "" {
				security.WriteJSONError(w, r, http.StatusBadRequest, "missing_party")
				return
			}
			legs = append(legs, settlement.AffirmLeg{
				TransactionID: l.TransactionID,
				LegID:         l.LegID,
				Party:         settlement.Party(l.Party),
				Amounts:       l.Amounts,
			})
		}

		res, err := deps.Coordinator.AffirmTransactions(r.Context(), req.Signer, pk, legs)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, res)
	}
}

func handleTxIncomingList(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireCoordinator(deps, w, r) {
			return
		}
		pk, ok := accountKeyParam(w, r)
		if !ok {
			return
		}
		views, err := deps.Coordinator.GetIncomingBalances(r.Context(), pk)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, views)
	}
}

func handleTxIncomingGet(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireCoordinator(deps, w, r) {
			return
		}
		pk, ok := accountKeyParam(w, r)
		if !ok {
			return
		}
		view, err := deps.Coordinator.GetIncomingBalance(r.Context(), pk, chi.URLParam(r, "assetID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, view)
	}
}

func handleTxApplyIncoming(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireCoordinator(deps, w, r) {
			return
		}
		pk, ok := accountKeyParam(w, r)
		if !ok {
			return
		}
		var req struct {
			Signer string `json:"signer"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		row, err := deps.Coordinator.ApplyIncoming(r.Context(), req.Signer, pk, chi.URLParam(r, "assetID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, row)
	}
}

func handleTxApplyAllIncoming(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireCoordinator(deps, w, r) {
			return
		}
		pk, ok := accountKeyParam(w, r)
		if !ok {
			return
		}
		var req struct {
			Signer string `json:"signer"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		rows, err := deps.Coordinator.ApplyAllIncoming(r.Context(), req.Signer, pk)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, rows)
	}
}

func handleListSettlements(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Records == nil {
			security.WriteJSONError(w, r, http.StatusServiceUnavailable, "chain_unavailable")
			return
		}
		recs, err := deps.Records.ListSettlements(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, recs)
	}
}

func handleGetSettlement(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Records == nil {
			security.WriteJSONError(w, r, http.StatusServiceUnavailable, "chain_unavailable")
			return
		}
		id, err := strconv.ParseUint(chi.URLParam(r, "transactionID"), 10, 64)
		if err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_transaction_id")
			return
		}
		rec, err := deps.Records.GetSettlement(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, rec)
	}
}

func handleListSettlementEvents(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Records == nil {
			security.WriteJSONError(w, r, http.StatusServiceUnavailable, "chain_unavailable")
			return
		}
		id, err := strconv.ParseUint(chi.URLParam(r, "transactionID"), 10, 64)
		if err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_transaction_id")
			return
		}
		events, err := deps.Records.ListSettlementEvents(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, events)
	}
}
