package signing

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	custodypb "github.com/example/confidential-ledger/api/gen/custody"
)

// fakeCustodyService holds real ed25519 keys so signatures verify; the
// private halves stay inside the fake, mirroring the custody contract.
type fakeCustodyService struct {
	keys    map[string]ed25519.PrivateKey
	names   []string
	signed  int
	created time.Time
}

func newFakeCustodyService() *fakeCustodyService {
	return &fakeCustodyService{
		keys:    make(map[string]ed25519.PrivateKey),
		created: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeCustodyService) keyInfo(name string) *custodypb.KeyInfo {
	private, ok := f.keys[name]
	if !ok {
		return nil
	}
	return &custodypb.KeyInfo{
		Name:      name,
		PublicKey: private.Public().(ed25519.PublicKey),
		CreatedAt: f.created.Format(time.RFC3339),
	}
}

func (f *fakeCustodyService) CreateKey(ctx context.Context, in *custodypb.CreateKeyRequest, opts ...grpc.CallOption) (*custodypb.CreateKeyResponse, error) {
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	f.keys[in.Name] = private
	f.names = append(f.names, in.Name)
	return &custodypb.CreateKeyResponse{Key: f.keyInfo(in.Name)}, nil
}

func (f *fakeCustodyService) GetKey(ctx context.Context, in *custodypb.GetKeyRequest, opts ...grpc.CallOption) (*custodypb.GetKeyResponse, error) {
	return &custodypb.GetKeyResponse{Key: f.keyInfo(in.Name)}, nil
}

func (f *fakeCustodyService) ListKeys(ctx context.Context, in *custodypb.ListKeysRequest, opts ...grpc.CallOption) (*custodypb.ListKeysResponse, error) {
	resp := &custodypb.ListKeysResponse{}
	for _, name := range f.names {
		resp.Keys = append(resp.Keys, f.keyInfo(name))
	}
	return resp, nil
}

func (f *fakeCustodyService) Sign(ctx context.Context, in *custodypb.SignRequest, opts ...grpc.CallOption) (*custodypb.SignResponse, error) {
	private, ok := f.keys[in.Name]
	if !ok {
		return nil, ErrNotFound
	}
	f.signed++
	return &custodypb.SignResponse{Signature: ed25519.Sign(private, in.Payload)}, nil
}

func TestCustodyCreateAndSign(t *testing.T) {
	fake := newFakeCustodyService()
	manager := NewCustodyManager(fake)
	ctx := context.Background()

	info, err := manager.CreateSigner(ctx, "treasury")
	require.NoError(t, err)
	assert.Equal(t, "treasury", info.Name)
	assert.Len(t, info.PublicKey, ed25519.PublicKeySize)
	assert.Equal(t, fake.created, info.CreatedAt)

	signer, err := manager.GetSigner(ctx, "treasury")
	require.NoError(t, err)
	assert.Equal(t, info.PublicKey, signer.AccountIdentity())

	payload := []byte("canonical call encoding")
	sig, err := signer.Sign(payload)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(ed25519.PublicKey(info.PublicKey), payload, sig))
	assert.Equal(t, 1, fake.signed)
}

func TestCustodyGetSignerNotFound(t *testing.T) {
	manager := NewCustodyManager(newFakeCustodyService())
	ctx := context.Background()

	_, err := manager.GetSigner(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = manager.GetSignerInfo(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCustodyListSigners(t *testing.T) {
	manager := NewCustodyManager(newFakeCustodyService())
	ctx := context.Background()

	_, err := manager.CreateSigner(ctx, "alice")
	require.NoError(t, err)
	_, err = manager.CreateSigner(ctx, "bob")
	require.NoError(t, err)

	signers, err := manager.ListSigners(ctx)
	require.NoError(t, err)
	require.Len(t, signers, 2)
	assert.Equal(t, "alice", signers[0].Name)
	assert.Equal(t, "bob", signers[1].Name)
}

// Both backends satisfy Manager, so deployments swap them by configuration.
var (
	_ Manager = (*DBManager)(nil)
	_ Manager = (*CustodyManager)(nil)
)
