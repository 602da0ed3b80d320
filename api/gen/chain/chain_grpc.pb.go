package chain

import (
    context "context"
    grpc "google.golang.org/grpc"
)

type ChainServiceClient interface {
    SubscribeBlocks(ctx context.Context, in *SubscribeBlocksRequest, opts ...grpc.CallOption) (ChainService_SubscribeBlocksClient, error)
    GetBlockEvents(ctx context.Context, in *GetBlockEventsRequest, opts ...grpc.CallOption) (*GetBlockEventsResponse, error)
    GetAccountBalance(ctx context.Context, in *GetAccountBalanceRequest, opts ...grpc.CallOption) (*GetAccountBalanceResponse, error)
    GetIncomingBalance(ctx context.Context, in *GetIncomingBalanceRequest, opts ...grpc.CallOption) (*GetIncomingBalanceResponse, error)
    ListIncomingBalances(ctx context.Context, in *ListIncomingBalancesRequest, opts ...grpc.CallOption) (*ListIncomingBalancesResponse, error)
    GetTransactionLeg(ctx context.Context, in *GetTransactionLegRequest, opts ...grpc.CallOption) (*GetTransactionLegResponse, error)
    GetAssetDetails(ctx context.Context, in *GetAssetDetailsRequest, opts ...grpc.CallOption) (*GetAssetDetailsResponse, error)
    GetAccountIdentity(ctx context.Context, in *GetAccountIdentityRequest, opts ...grpc.CallOption) (*GetAccountIdentityResponse, error)
    Submit(ctx context.Context, in *SubmitRequest, opts ...grpc.CallOption) (*SubmitResponse, error)
}

type chainServiceClient struct {
    cc grpc.ClientConnInterface
}

func NewChainServiceClient(cc grpc.ClientConnInterface) ChainServiceClient {
    return &chainServiceClient{cc: cc}
}

func (c *chainServiceClient) SubscribeBlocks(ctx context.Context, in *SubscribeBlocksRequest, opts ...grpc.CallOption) (ChainService_SubscribeBlocksClient, error) {
    stream, err := c.cc.NewStream(ctx, &grpc.StreamDesc{StreamName: "SubscribeBlocks", ServerStreams: true}, "/chain.ChainService/SubscribeBlocks", opts...)
    if err != nil {
        return nil, err
    }
    x := &chainServiceSubscribeBlocksClient{stream}
    if err := x.ClientStream.SendMsg(in); err != nil {
        return nil, err
    }
    if err := x.ClientStream.CloseSend(); err != nil {
        return nil, err
    }
    return x, nil
}

type ChainService_SubscribeBlocksClient interface {
    Recv() (*Block, error)
    grpc.ClientStream
}

type chainServiceSubscribeBlocksClient struct {
    grpc.ClientStream
}

func (x *chainServiceSubscribeBlocksClient) Recv() (*Block, error) {
    m := new(Block)
    if err := x.ClientStream.RecvMsg(m); err != nil {
        return nil, err
    }
    return m, nil
}

func (c *chainServiceClient) GetBlockEvents(ctx context.Context, in *GetBlockEventsRequest, opts ...grpc.CallOption) (*GetBlockEventsResponse, error) {
    out := new(GetBlockEventsResponse)
    err := c.cc.Invoke(ctx, "/chain.ChainService/GetBlockEvents", in, out, opts...)
    if err != nil {
        return nil, err
    }
    return out, nil
}

func (c *chainServiceClient) GetAccountBalance(ctx context.Context, in *GetAccountBalanceRequest, opts ...grpc.CallOption) (*GetAccountBalanceResponse, error) {
    out := new(GetAccountBalanceResponse)
    err := c.cc.Invoke(ctx, "/chain.ChainService/GetAccountBalance", in, out, opts...)
    if err != nil {
        return nil, err
    }
    return out, nil
}

func (c *chainServiceClient) GetIncomingBalance(ctx context.Context, in *GetIncomingBalanceRequest, opts ...grpc.CallOption) (*GetIncomingBalanceResponse, error) {
    out := new(GetIncomingBalanceResponse)
    err := c.cc.Invoke(ctx, "/chain.ChainService/GetIncomingBalance", in, out, opts...)
    if err != nil {
        return nil, err
    }
    return out, nil
}

func (c *chainServiceClient) ListIncomingBalances(ctx context.Context, in *ListIncomingBalancesRequest, opts ...grpc.CallOption) (*ListIncomingBalancesResponse, error) {
    out := new(ListIncomingBalancesResponse)
    err := c.cc.Invoke(ctx, "/chain.ChainService/ListIncomingBalances", in, out, opts...)
    if err != nil {
        return nil, err
    }
    return out, nil
}

func (c *chainServiceClient) GetTransactionLeg(ctx context.Context, in *GetTransactionLegRequest, opts ...grpc.CallOption) (*GetTransactionLegResponse, error) {
    out := new(GetTransactionLegResponse)
    err := c.cc.Invoke(ctx, "/chain.ChainService/GetTransactionLeg", in, out, opts...)
    if err != nil {
        return nil, err
    }
    return out, nil
}

func (c *chainServiceClient) GetAssetDetails(ctx context.Context, in *GetAssetDetailsRequest, opts ...grpc.CallOption) (*GetAssetDetailsResponse, error) {
    out := new(GetAssetDetailsResponse)
    err := c.cc.Invoke(ctx, "/chain.ChainService/GetAssetDetails", in, out, opts...)
    if err != nil {
        return nil, err
    }
    return out, nil
}

func (c *chainServiceClient) GetAccountIdentity(ctx context.Context, in *GetAccountIdentityRequest, opts ...grpc.CallOption) (*GetAccountIdentityResponse, error) {
    out := new(GetAccountIdentityResponse)
    err := c.cc.Invoke(ctx, "/chain.ChainService/GetAccountIdentity", in, out, opts...)
    if err != nil {
        return nil, err
    }
    return out, nil
}

func (c *chainServiceClient) Submit(ctx context.Context, in *SubmitRequest, opts ...grpc.CallOption) (*SubmitResponse, error) {
    out := new(SubmitResponse)
    err := c.cc.Invoke(ctx, "/chain.ChainService/Submit", in, out, opts...)
    if err != nil {
        return nil, err
    }
    return out, nil
}

type ChainServiceServer interface {
    GetBlockEvents(context.Context, *GetBlockEventsRequest) (*GetBlockEventsResponse, error)
    GetAccountBalance(context.Context, *GetAccountBalanceRequest) (*GetAccountBalanceResponse, error)
    GetIncomingBalance(context.Context, *GetIncomingBalanceRequest) (*GetIncomingBalanceResponse, error)
    ListIncomingBalances(context.Context, *ListIncomingBalancesRequest) (*ListIncomingBalancesResponse, error)
    GetTransactionLeg(context.Context, *GetTransactionLegRequest) (*GetTransactionLegResponse, error)
    GetAssetDetails(context.Context, *GetAssetDetailsRequest) (*GetAssetDetailsResponse, error)
    GetAccountIdentity(context.Context, *GetAccountIdentityRequest) (*GetAccountIdentityResponse, error)
    Submit(context.Context, *SubmitRequest) (*SubmitResponse, error)
    MustEmbedUnimplementedChainServiceServer()
}

type UnimplementedChainServiceServer struct{}

func (UnimplementedChainServiceServer) GetBlockEvents(context.Context, *GetBlockEventsRequest) (*GetBlockEventsResponse, error) {
    return nil, nil
}
func (UnimplementedChainServiceServer) GetAccountBalance(context.Context, *GetAccountBalanceRequest) (*GetAccountBalanceResponse, error) {
    return nil, nil
}
func (UnimplementedChainServiceServer) GetIncomingBalance(context.Context, *GetIncomingBalanceRequest) (*GetIncomingBalanceResponse, error) {
    return nil, nil
}
func (UnimplementedChainServiceServer) ListIncomingBalances(context.Context, *ListIncomingBalancesRequest) (*ListIncomingBalancesResponse, error) {
    return nil, nil
}
func (UnimplementedChainServiceServer) GetTransactionLeg(context.Context, *GetTransactionLegRequest) (*GetTransactionLegResponse, error) {
    return nil, nil
}
func (UnimplementedChainServiceServer) GetAssetDetails(context.Context, *GetAssetDetailsRequest) (*GetAssetDetailsResponse, error) {
    return nil, nil
}
func (UnimplementedChainServiceServer) GetAccountIdentity(context.Context, *GetAccountIdentityRequest) (*GetAccountIdentityResponse, error) {
    return nil, nil
}
func (UnimplementedChainServiceServer) Submit(context.Context, *SubmitRequest) (*SubmitResponse, error) {
    return nil, nil
}
func (UnimplementedChainServiceServer) MustEmbedUnimplementedChainServiceServer() {}

type UnsafeChainServiceServer interface {
    MustEmbedUnimplementedChainServiceServer()
}

func RegisterChainServiceServer(s grpc.ServiceRegistrar, srv ChainServiceServer) {
    _ = srv
    _ = s
}
