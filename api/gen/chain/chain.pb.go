package chain

type SubscribeBlocksRequest struct {
	StartHeight uint64 `protobuf:"varint,1,opt,name=start_height"`
}

type Block struct {
	Height     uint64 `protobuf:"varint,1,opt,name=height"`
	Hash       []byte `protobuf:"bytes,2,opt,name=hash"`
	ParentHash []byte `protobuf:"bytes,3,opt,name=parent_hash"`
	Timestamp  string `protobuf:"bytes,4,opt,name=timestamp"`
}

type GetBlockEventsRequest struct {
	BlockHash []byte `protobuf:"bytes,1,opt,name=block_hash"`
}

type GetBlockEventsResponse struct {
	Events []*Event `protobuf:"bytes,1,rep,name=events"`
}

type Event struct {
	Index          uint32 `protobuf:"varint,1,opt,name=index"`
	Kind           string `protobuf:"bytes,2,opt,name=kind"`
	Account        []byte `protobuf:"bytes,3,opt,name=account"`
	AssetID        string `protobuf:"bytes,4,opt,name=asset_id"`
	EncAmount      []byte `protobuf:"bytes,5,opt,name=enc_amount"`
	TransactionID  uint64 `protobuf:"varint,6,opt,name=transaction_id"`
	LegID          uint32 `protobuf:"varint,7,opt,name=leg_id"`
	PendingAffirms uint32 `protobuf:"varint,8,opt,name=pending_affirms"`
	Memo           string `protobuf:"bytes,9,opt,name=memo"`
}

type GetAccountBalanceRequest struct {
	Account []byte `protobuf:"bytes,1,opt,name=account"`
	AssetID string `protobuf:"bytes,2,opt,name=asset_id"`
}

type GetAccountBalanceResponse struct {
	EncBalance []byte `protobuf:"bytes,1,opt,name=enc_balance"`
}

type GetIncomingBalanceRequest struct {
	Account []byte `protobuf:"bytes,1,opt,name=account"`
	AssetID string `protobuf:"bytes,2,opt,name=asset_id"`
}

type GetIncomingBalanceResponse struct {
	EncIncoming []byte `protobuf:"bytes,1,opt,name=enc_incoming"`
}

type ListIncomingBalancesRequest struct {
	Account []byte `protobuf:"bytes,1,opt,name=account"`
}

type ListIncomingBalancesResponse struct {
	Entries []*IncomingBalance `protobuf:"bytes,1,rep,name=entries"`
}

type IncomingBalance struct {
	AssetID     string `protobuf:"bytes,1,opt,name=asset_id"`
	EncIncoming []byte `protobuf:"bytes,2,opt,name=enc_incoming"`
}

type GetTransactionLegRequest struct {
	TransactionID uint64 `protobuf:"varint,1,opt,name=transaction_id"`
	LegID         uint32 `protobuf:"varint,2,opt,name=leg_id"`
}

type GetTransactionLegResponse struct {
	Leg *TransactionLeg `protobuf:"bytes,1,opt,name=leg"`
}

type TransactionLeg struct {
	TransactionID uint64   `protobuf:"varint,1,opt,name=transaction_id"`
	LegID         uint32   `protobuf:"varint,2,opt,name=leg_id"`
	Sender        []byte   `protobuf:"bytes,3,opt,name=sender"`
	Receiver      []byte   `protobuf:"bytes,4,opt,name=receiver"`
	Mediators     [][]byte `protobuf:"bytes,5,rep,name=mediators"`
	Auditors      [][]byte `protobuf:"bytes,6,rep,name=auditors"`
	AssetIDs      []string `protobuf:"bytes,7,rep,name=asset_ids"`
}

type GetAssetDetailsRequest struct {
	AssetID string `protobuf:"bytes,1,opt,name=asset_id"`
}

type GetAssetDetailsResponse struct {
	AssetID     string   `protobuf:"bytes,1,opt,name=asset_id"`
	Owner       []byte   `protobuf:"bytes,2,opt,name=owner"`
	Auditors    [][]byte `protobuf:"bytes,3,rep,name=auditors"`
	Mediators   [][]byte `protobuf:"bytes,4,rep,name=mediators"`
	TotalSupply uint64   `protobuf:"varint,5,opt,name=total_supply"`
}

type GetAccountIdentityRequest struct {
	Account []byte `protobuf:"bytes,1,opt,name=account"`
}

type GetAccountIdentityResponse struct {
	Identity []byte `protobuf:"bytes,1,opt,name=identity"`
}

type SubmitRequest struct {
	Call          []byte `protobuf:"bytes,1,opt,name=call"`
	Signer        []byte `protobuf:"bytes,2,opt,name=signer"`
	Signature     []byte `protobuf:"bytes,3,opt,name=signature"`
	WaitFinalized bool   `protobuf:"varint,4,opt,name=wait_finalized"`
}

type SubmitResponse struct {
	Success            bool                 `protobuf:"varint,1,opt,name=success"`
	BlockHash          []byte               `protobuf:"bytes,2,opt,name=block_hash"`
	Finalized          bool                 `protobuf:"varint,3,opt,name=finalized"`
	Error              string               `protobuf:"bytes,4,opt,name=error"`
	BalanceUpdates     []*BalanceUpdate     `protobuf:"bytes,5,rep,name=balance_updates"`
	AffirmationUpdates []*AffirmationUpdate `protobuf:"bytes,6,rep,name=affirmation_updates"`
}

type BalanceUpdate struct {
	Account    []byte `protobuf:"bytes,1,opt,name=account"`
	AssetID    string `protobuf:"bytes,2,opt,name=asset_id"`
	EncBalance []byte `protobuf:"bytes,3,opt,name=enc_balance"`
}

type AffirmationUpdate struct {
	TransactionID  uint64 `protobuf:"varint,1,opt,name=transaction_id"`
	PendingAffirms uint32 `protobuf:"varint,2,opt,name=pending_affirms"`
}
