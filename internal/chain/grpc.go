package chain

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	chainpb "github.com/example/confidential-ledger/api/gen/chain"
)

// GRPCClient implements Client against a chain node's gRPC API.
type GRPCClient struct {
	conn   *grpc.ClientConn
	client chainpb.ChainServiceClient
}

// Dial connects to a chain node.
func Dial(addr string) (*GRPCClient, error) {
	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to dial chain node %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn, client: chainpb.NewChainServiceClient(conn)}, nil
}

// Close tears down the connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

type grpcBlockStream struct {
	stream chainpb.ChainService_SubscribeBlocksClient
}

func (s *grpcBlockStream) Recv() (*Block, error) {
	b, err := s.stream.Recv()
	if err != nil {
		return nil, err
	}
	return &Block{Height: b.Height, Hash: b.Hash, ParentHash: b.ParentHash}, nil
}

func (c *GRPCClient) SubscribeBlocks(ctx context.Context, startHeight uint64) (BlockStream, error) {
	stream, err := c.client.SubscribeBlocks(ctx, &chainpb.SubscribeBlocksRequest{StartHeight: startHeight})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to blocks: %w", err)
	}
	return &grpcBlockStream{stream: stream}, nil
}

func (c *GRPCClient) GetBlockEvents(ctx context.Context, blockHash []byte) ([]*Event, error) {
	resp, err := c.client.GetBlockEvents(ctx, &chainpb.GetBlockEventsRequest{BlockHash: blockHash})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch block events: %w", err)
	}
	events := make([]*Event, 0, len(resp.Events))
	for _, ev := range resp.Events {
		events = append(events, &Event{
			Index:          ev.Index,
			Kind:           EventKind(ev.Kind),
			Account:        ev.Account,
			AssetID:        ev.AssetID,
			EncAmount:      ev.EncAmount,
			TransactionID:  ev.TransactionID,
			LegID:          ev.LegID,
			PendingAffirms: ev.PendingAffirms,
			Memo:           ev.Memo,
		})
	}
	return events, nil
}

func (c *GRPCClient) GetAccountBalance(ctx context.Context, account []byte, assetID string) ([]byte, error) {
	resp, err := c.client.GetAccountBalance(ctx, &chainpb.GetAccountBalanceRequest{Account: account, AssetID: assetID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account balance: %w", err)
	}
	return resp.EncBalance, nil
}

func (c *GRPCClient) GetIncomingBalance(ctx context.Context, account []byte, assetID string) ([]byte, error) {
	resp, err := c.client.GetIncomingBalance(ctx, &chainpb.GetIncomingBalanceRequest{Account: account, AssetID: assetID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch incoming balance: %w", err)
	}
	return resp.EncIncoming, nil
}

func (c *GRPCClient) ListIncomingBalances(ctx context.Context, account []byte) ([]IncomingBalance, error) {
	resp, err := c.client.ListIncomingBalances(ctx, &chainpb.ListIncomingBalancesRequest{Account: account})
	if err != nil {
		return nil, fmt.Errorf("failed to list incoming balances: %w", err)
	}
	out := make([]IncomingBalance, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		out = append(out, IncomingBalance{AssetID: e.AssetID, EncIncoming: e.EncIncoming})
	}
	return out, nil
}

func (c *GRPCClient) GetTransactionLeg(ctx context.Context, transactionID uint64, legID uint32) (*TransactionLeg, error) {
	resp, err := c.client.GetTransactionLeg(ctx, &chainpb.GetTransactionLegRequest{TransactionID: transactionID, LegID: legID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction leg: %w", err)
	}
	if resp.Leg == nil {
		return nil, fmt.Errorf("transaction leg %d/%d not found", transactionID, legID)
	}
	return &TransactionLeg{
		TransactionID: resp.Leg.TransactionID,
		LegID:         resp.Leg.LegID,
		Sender:        resp.Leg.Sender,
		Receiver:      resp.Leg.Receiver,
		Mediators:     resp.Leg.Mediators,
		Auditors:      resp.Leg.Auditors,
		AssetIDs:      resp.Leg.AssetIDs,
	}, nil
}

func (c *GRPCClient) GetAssetDetails(ctx context.Context, assetID string) (*AssetDetails, error) {
	resp, err := c.client.GetAssetDetails(ctx, &chainpb.GetAssetDetailsRequest{AssetID: assetID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch asset details: %w", err)
	}
	return &AssetDetails{
		AssetID:     resp.AssetID,
		Owner:       resp.Owner,
		Auditors:    resp.Auditors,
		Mediators:   resp.Mediators,
		TotalSupply: resp.TotalSupply,
	}, nil
}

func (c *GRPCClient) GetAccountIdentity(ctx context.Context, account []byte) ([]byte, error) {
	resp, err := c.client.GetAccountIdentity(ctx, &chainpb.GetAccountIdentityRequest{Account: account})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account identity: %w", err)
	}
	return resp.Identity, nil
}

func (c *GRPCClient) SubmitAndWatch(ctx context.Context, call *Call, signer Signer, wait WaitMode) (*TransactionResult, error) {
	payload, err := call.Encode()
	if err != nil {
		return nil, err
	}
	signature, err := signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to sign call: %w", err)
	}
	resp, err := c.client.Submit(ctx, &chainpb.SubmitRequest{
		Call:          payload,
		Signer:        signer.AccountIdentity(),
		Signature:     signature,
		WaitFinalized: wait == WaitFinalized,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit call: %w", err)
	}
	result := &TransactionResult{
		Success:   resp.Success,
		InBlock:   resp.BlockHash,
		Finalized: resp.Finalized,
		Err:       resp.Error,
	}
	for _, bu := range resp.BalanceUpdates {
		result.BalanceUpdates = append(result.BalanceUpdates, BalanceUpdate{
			Account:    bu.Account,
			AssetID:    bu.AssetID,
			EncBalance: bu.EncBalance,
		})
	}
	for _, au := range resp.AffirmationUpdates {
		result.AffirmationUpdates = append(result.AffirmationUpdates, AffirmationUpdate{
			TransactionID:  au.TransactionID,
			PendingAffirms: au.PendingAffirms,
		})
	}
	return result, nil
}
