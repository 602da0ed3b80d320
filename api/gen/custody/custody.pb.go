package custody

type KeyInfo struct {
	Name      string `protobuf:"bytes,1,opt,name=name"`
	PublicKey []byte `protobuf:"bytes,2,opt,name=public_key"`
	CreatedAt string `protobuf:"bytes,3,opt,name=created_at"`
}

type CreateKeyRequest struct {
	Name string `protobuf:"bytes,1,opt,name=name"`
}

type CreateKeyResponse struct {
	Key *KeyInfo `protobuf:"bytes,1,opt,name=key"`
}

type GetKeyRequest struct {
	Name string `protobuf:"bytes,1,opt,name=name"`
}

type GetKeyResponse struct {
	Key *KeyInfo `protobuf:"bytes,1,opt,name=key"`
}

type ListKeysRequest struct{}

type ListKeysResponse struct {
	Keys []*KeyInfo `protobuf:"bytes,1,rep,name=keys"`
}

type SignRequest struct {
	Name    string `protobuf:"bytes,1,opt,name=name"`
	Payload []byte `protobuf:"bytes,2,opt,name=payload"`
}

type SignResponse struct {
	Signature []byte `protobuf:"bytes,1,opt,name=signature"`
}
