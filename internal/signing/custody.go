package signing

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	custodypb "github.com/example/confidential-ledger/api/gen/custody"
)

// CustodyManager is a Manager backed by a remote custody service. Key
// material never leaves the custody side: Sign round-trips the payload over
// gRPC and only public records cross the wire.
type CustodyManager struct {
	conn    *grpc.ClientConn
	client  custodypb.CustodyServiceClient
	timeout time.Duration
}

// DialCustody connects to a custody service.
func DialCustody(addr string) (*CustodyManager, error) {
	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to dial custody service %s: %w", addr, err)
	}
	m := NewCustodyManager(custodypb.NewCustodyServiceClient(conn))
	m.conn = conn
	return m, nil
}

// NewCustodyManager wraps an existing custody client.
func NewCustodyManager(client custodypb.CustodyServiceClient) *CustodyManager {
	return &CustodyManager{client: client, timeout: 10 * time.Second}
}

// Close tears down the connection when the manager owns one.
func (m *CustodyManager) Close() error {
	if m.conn == nil {
		return nil
	}
	return m.conn.Close()
}

// CreateSigner asks the custody service to generate a key under the name.
func (m *CustodyManager) CreateSigner(ctx context.Context, name string) (*SignerInfo, error) {
	resp, err := m.client.CreateKey(ctx, &custodypb.CreateKeyRequest{Name: name})
	if err != nil {
		return nil, fmt.Errorf("failed to create custody key: %w", err)
	}
	if resp.Key == nil {
		return nil, fmt.Errorf("custody service returned no key for %q", name)
	}
	return keyToInfo(resp.Key), nil
}

// GetSigner resolves the named key and returns a Signer that signs remotely.
func (m *CustodyManager) GetSigner(ctx context.Context, name string) (Signer, error) {
	info, err := m.GetSignerInfo(ctx, name)
	if err != nil {
		return nil, err
	}
	return &custodySigner{
		client:  m.client,
		name:    name,
		public:  info.PublicKey,
		timeout: m.timeout,
	}, nil
}

// GetSignerInfo returns the public record for a key name.
func (m *CustodyManager) GetSignerInfo(ctx context.Context, name string) (*SignerInfo, error) {
	resp, err := m.client.GetKey(ctx, &custodypb.GetKeyRequest{Name: name})
	if err != nil {
		return nil, fmt.Errorf("failed to query custody key: %w", err)
	}
	if resp.Key == nil {
		return nil, ErrNotFound
	}
	return keyToInfo(resp.Key), nil
}

// ListSigners returns the public records of every custody key.
func (m *CustodyManager) ListSigners(ctx context.Context) ([]*SignerInfo, error) {
	resp, err := m.client.ListKeys(ctx, &custodypb.ListKeysRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list custody keys: %w", err)
	}
	out := make([]*SignerInfo, 0, len(resp.Keys))
	for _, key := range resp.Keys {
		out = append(out, keyToInfo(key))
	}
	return out, nil
}

func keyToInfo(key *custodypb.KeyInfo) *SignerInfo {
	created, err := time.Parse(time.RFC3339, key.CreatedAt)
	if err != nil {
		created = time.Time{}
	}
	return &SignerInfo{Name: key.Name, PublicKey: key.PublicKey, CreatedAt: created}
}

// custodySigner signs through the custody service. Signer has no context
// parameter, so each call runs under the manager's timeout.
type custodySigner struct {
	client  custodypb.CustodyServiceClient
	name    string
	public  []byte
	timeout time.Duration
}

func (s *custodySigner) AccountIdentity() []byte {
	return s.public
}

func (s *custodySigner) Sign(payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	resp, err := s.client.Sign(ctx, &custodypb.SignRequest{Name: s.name, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("custody signing failed: %w", err)
	}
	return resp.Signature, nil
}
