package grpc

import (
	"bytes"
	"encoding/gob"

	"google.golang.org/grpc/encoding"

	"github.com/quorumdb/raft/pkg/raft"
	"github.com/quorumdb/raft/pkg/rateless"
)

// codecName is the gRPC content-subtype this package registers under.
// Every call in this package sets grpc.CallContentSubtype(codecName),
// so the server picks this codec instead of grpc's built-in protobuf
// codec. There is no protoc step in this build, so envelopes travel as
// gob rather than as generated protobuf messages; grpc.Server/ClientConn
// neither know nor care which codec framed the bytes on the wire.
const codecName = "gob"

func init() {
	gob.Register(raft.ProposalReq{})
	gob.Register(raft.ReplicateReq{})
	gob.Register(raft.ReplicateAck{})
	gob.Register(raft.ReplicateRej{})
	gob.Register(raft.VoteReq{})
	gob.Register(raft.VoteAck{})
	gob.Register(raft.VoteRej{})
	gob.Register(rateless.ReplicateReq{})

	encoding.RegisterCodec(gobCodec{})
}

// gobCodec implements google.golang.org/grpc/encoding.Codec, letting
// grpc frame raft.Envelope values (whose Body field is the raft.Message
// interface) without a protoc-generated message type.
type gobCodec struct{}

func (gobCodec) Name() string { return codecName }

func (gobCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
