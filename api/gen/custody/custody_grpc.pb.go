package custody

import (
    context "context"
    grpc "google.golang.org/grpc"
)

type CustodyServiceClient interface {
    CreateKey(ctx context.Context, in *CreateKeyRequest, opts ...grpc.CallOption) (*CreateKeyResponse, error)
    GetKey(ctx context.Context, in *GetKeyRequest, opts ...grpc.CallOption) (*GetKeyResponse, error)
    ListKeys(ctx context.Context, in *ListKeysRequest, opts ...grpc.CallOption) (*ListKeysResponse, error)
    Sign(ctx context.Context, in *SignRequest, opts ...grpc.CallOption) (*SignResponse, error)
}

type custodyServiceClient struct {
    cc grpc.ClientConnInterface
}

func NewCustodyServiceClient(cc grpc.ClientConnInterface) CustodyServiceClient {
    return &custodyServiceClient{cc: cc}
}

func (c *custodyServiceClient) CreateKey(ctx context.Context, in *CreateKeyRequest, opts ...grpc.CallOption) (*CreateKeyResponse, error) {
    out := new(CreateKeyResponse)
    err := c.cc.Invoke(ctx, "/custody.CustodyService/CreateKey", in, out, opts...)
    if err != nil {
        return nil, err
    }
    return out, nil
}

func (c *custodyServiceClient) GetKey(ctx context.Context, in *GetKeyRequest, opts ...grpc.CallOption) (*GetKeyResponse, error) {
    out := new(GetKeyResponse)
    err := c.cc.Invoke(ctx, "/custody.CustodyService/GetKey", in, out, opts...)
    if err != nil {
        return nil, err
    }
    return out, nil
}

func (c *custodyServiceClient) ListKeys(ctx context.Context, in *ListKeysRequest, opts ...grpc.CallOption) (*ListKeysResponse, error) {
    out := new(ListKeysResponse)
    err := c.cc.Invoke(ctx, "/custody.CustodyService/ListKeys", in, out, opts...)
    if err != nil {
        return nil, err
    }
    return out, nil
}

func (c *custodyServiceClient) Sign(ctx context.Context, in *SignRequest, opts ...grpc.CallOption) (*SignResponse, error) {
    out := new(SignResponse)
    err := c.cc.Invoke(ctx, "/custody.CustodyService/Sign", in, out, opts...)
    if err != nil {
        return nil, err
    }
    return out, nil
}

type CustodyServiceServer interface {
    CreateKey(context.Context, *CreateKeyRequest) (*CreateKeyResponse, error)
    GetKey(context.Context, *GetKeyRequest) (*GetKeyResponse, error)
    ListKeys(context.Context, *ListKeysRequest) (*ListKeysResponse, error)
    Sign(context.Context, *SignRequest) (*SignResponse, error)
    MustEmbedUnimplementedCustodyServiceServer()
}

type UnimplementedCustodyServiceServer struct{}

func (UnimplementedCustodyServiceServer) CreateKey(context.Context, *CreateKeyRequest) (*CreateKeyResponse, error) {
    return nil, nil
}
func (UnimplementedCustodyServiceServer) GetKey(context.Context, *GetKeyRequest) (*GetKeyResponse, error) {
    return nil, nil
}
func (UnimplementedCustodyServiceServer) ListKeys(context.Context, *ListKeysRequest) (*ListKeysResponse, error) {
    return nil, nil
}
func (UnimplementedCustodyServiceServer) Sign(context.Context, *SignRequest) (*SignResponse, error) {
    return nil, nil
}
func (UnimplementedCustodyServiceServer) MustEmbedUnimplementedCustodyServiceServer() {}

type UnsafeCustodyServiceServer interface {
    MustEmbedUnimplementedCustodyServiceServer()
}

func RegisterCustodyServiceServer(s grpc.ServiceRegistrar, srv CustodyServiceServer) {
    _ = srv
    _ = s
}
