package wire

import "google.golang.org/protobuf/encoding/protowire"

// V1FrameType enumerates the location.nearby.connections.V1Frame.FrameType
// values this implementation round-trips.
type V1FrameType int32

const (
	FrameUnknown           V1FrameType = 0
	FrameConnectionRequest V1FrameType = 1
	FrameConnectionResp    V1FrameType = 2
	FramePayloadTransfer   V1FrameType = 3
	FrameKeepAlive         V1FrameType = 5
	FrameDisconnection     V1FrameType = 6
)

// ConnectionResponseStatus mirrors the status codes carried in a
// ConnectionResponseFrame.
type ConnectionResponseStatus int32

const (
	StatusUnknown                   ConnectionResponseStatus = 0
	StatusAccept                    ConnectionResponseStatus = 1
	StatusReject                    ConnectionResponseStatus = 2
	StatusNotEnoughSpace             ConnectionResponseStatus = 3
	StatusUnsupportedAttachmentType ConnectionResponseStatus = 4
	StatusTimedOut                  ConnectionResponseStatus = 5
)

// OfflineFrame is the top-level location.nearby.connections.OfflineFrame:
// a version tag wrapping exactly one V1Frame payload.
type OfflineFrame struct {
	Version int32
	V1      *V1Frame
}

// V1Frame carries exactly one of the variant payloads selected by Type.
type V1Frame struct {
	Type              V1FrameType
	ConnectionRequest *ConnectionRequestFrame
	ConnectionResp    *ConnectionResponseFrame
	PayloadTransfer   *PayloadTransferFrame
	KeepAlive         *KeepAliveFrame
	Disconnection     *DisconnectionFrame
}

// ConnectionRequestFrame opens an endpoint-to-endpoint connection, carrying
// the advertiser's endpoint id, display name and raw EndpointInfo bytes.
type ConnectionRequestFrame struct {
	EndpointID   string
	EndpointName string
	EndpointInfo []byte
}

// ConnectionResponseFrame answers a ConnectionRequestFrame.
type ConnectionResponseFrame struct {
	Status ConnectionResponseStatus
}

// PayloadChunkFlag bits set on a PayloadTransferFrame's chunk.
type PayloadChunkFlag int32

const (
	// ChunkFlagLastChunk marks the final chunk of a payload; its Body is
	// typically empty and only the flag itself is meaningful.
	ChunkFlagLastChunk PayloadChunkFlag = 1
)

// PayloadType distinguishes byte-stream transfers from control payloads.
type PayloadType int32

const (
	PayloadTypeUnknown PayloadType = 0
	PayloadTypeBytes   PayloadType = 1
	PayloadTypeFile    PayloadType = 2
)

// PacketType distinguishes a PayloadTransferFrame carrying the initial
// header from one carrying a data chunk.
type PacketType int32

const (
	PacketUnknown PacketType = 0
	PacketData    PacketType = 1
	PacketControl PacketType = 2
)

// PayloadTransferFrame carries either a PayloadHeader (first frame for a
// payload id) or a PayloadChunk (one offset-addressed slice of data).
type PayloadTransferFrame struct {
	PacketType PacketType
	Header     *PayloadHeader
	Chunk      *PayloadChunk
}

// PayloadHeader announces a new payload transfer and its declared total size.
type PayloadHeader struct {
	ID        int64
	Type      PayloadType
	TotalSize int64
}

// PayloadChunk carries one offset-addressed slice of payload data.
type PayloadChunk struct {
	PayloadID int64
	Offset    int64
	Flags     int32
	Body      []byte
}

// KeepAliveFrame is sent periodically to hold the connection open and
// optionally acknowledge the peer's last keep-alive.
type KeepAliveFrame struct {
	Ack bool
}

// DisconnectionFrame requests a graceful connection teardown.
type DisconnectionFrame struct {
	RequestSafeToDisconnect bool
}

const (
	tagOfflineVersion = protowire.Number(1)
	tagOfflineV1      = protowire.Number(2)

	tagV1Type              = protowire.Number(1)
	tagV1ConnectionRequest = protowire.Number(2)
	tagV1ConnectionResp    = protowire.Number(3)
	tagV1PayloadTransfer   = protowire.Number(4)
	tagV1KeepAlive         = protowire.Number(6)
	tagV1Disconnection     = protowire.Number(7)

	tagCRTEndpointID   = protowire.Number(1)
	tagCRTEndpointName = protowire.Number(2)
	tagCRTEndpointInfo = protowire.Number(3)

	tagCRPStatus = protowire.Number(1)

	tagPTFPacketType = protowire.Number(1)
	tagPTFHeader     = protowire.Number(2)
	tagPTFChunk      = protowire.Number(3)

	tagPHID        = protowire.Number(1)
	tagPHType      = protowire.Number(2)
	tagPHTotalSize = protowire.Number(3)

	tagPCPayloadID = protowire.Number(1)
	tagPCOffset    = protowire.Number(2)
	tagPCFlags     = protowire.Number(3)
	tagPCBody      = protowire.Number(4)

	tagKAAck = protowire.Number(1)

	tagDFRequestSafe = protowire.Number(1)
)

// Marshal encodes the OfflineFrame to protobuf wire bytes.
func (f *OfflineFrame) Marshal() []byte {
	var buf []byte
	buf = appendVarintField(buf, tagOfflineVersion, uint64(f.Version))
	if f.V1 != nil {
		buf = appendBytesField(buf, tagOfflineV1, f.V1.marshal())
	}
	return buf
}

// UnmarshalOfflineFrame decodes an OfflineFrame from protobuf wire bytes.
func UnmarshalOfflineFrame(b []byte) (*OfflineFrame, error) {
	fields, err := parseFields("OfflineFrame", b)
	if err != nil {
		return nil, err
	}
	f := &OfflineFrame{}
	if v, ok := firstVarint(fields, tagOfflineVersion); ok {
		f.Version = int32(v)
	}
	if raw := firstBytes(fields, tagOfflineV1); raw != nil {
		v1, err := unmarshalV1Frame(raw)
		if err != nil {
			return nil, err
		}
		f.V1 = v1
	}
	if f.V1 == nil {
		return nil, malformed("OfflineFrame", "missing v1 frame")
	}
	return f, nil
}

func (v *V1Frame) marshal() []byte {
	var buf []byte
	buf = appendVarintField(buf, tagV1Type, uint64(v.Type))
	if v.ConnectionRequest != nil {
		buf = appendBytesField(buf, tagV1ConnectionRequest, v.ConnectionRequest.marshal())
	}
	if v.ConnectionResp != nil {
		buf = appendBytesField(buf, tagV1ConnectionResp, v.ConnectionResp.marshal())
	}
	if v.PayloadTransfer != nil {
		buf = appendBytesField(buf, tagV1PayloadTransfer, v.PayloadTransfer.marshal())
	}
	if v.KeepAlive != nil {
		buf = appendBytesField(buf, tagV1KeepAlive, v.KeepAlive.marshal())
	}
	if v.Disconnection != nil {
		buf = appendBytesField(buf, tagV1Disconnection, v.Disconnection.marshal())
	}
	return buf
}

func unmarshalV1Frame(b []byte) (*V1Frame, error) {
	fields, err := parseFields("V1Frame", b)
	if err != nil {
		return nil, err
	}
	v := &V1Frame{}
	if t, ok := firstVarint(fields, tagV1Type); ok {
		v.Type = V1FrameType(t)
	}
	if raw := firstBytes(fields, tagV1ConnectionRequest); raw != nil {
		cr, err := unmarshalConnectionRequestFrame(raw)
		if err != nil {
			return nil, err
		}
		v.ConnectionRequest = cr
	}
	if raw := firstBytes(fields, tagV1ConnectionResp); raw != nil {
		cr, err := unmarshalConnectionResponseFrame(raw)
		if err != nil {
			return nil, err
		}
		v.ConnectionResp = cr
	}
	if raw := firstBytes(fields, tagV1PayloadTransfer); raw != nil {
		pt, err := unmarshalPayloadTransferFrame(raw)
		if err != nil {
			return nil, err
		}
		v.PayloadTransfer = pt
	}
	if raw := firstBytes(fields, tagV1KeepAlive); raw != nil {
		v.KeepAlive = unmarshalKeepAliveFrame(raw)
	}
	if raw := firstBytes(fields, tagV1Disconnection); raw != nil {
		v.Disconnection = unmarshalDisconnectionFrame(raw)
	}
	return v, nil
}

func (c *ConnectionRequestFrame) marshal() []byte {
	var buf []byte
	buf = appendStringField(buf, tagCRTEndpointID, c.EndpointID)
	buf = appendStringField(buf, tagCRTEndpointName, c.EndpointName)
	buf = appendBytesField(buf, tagCRTEndpointInfo, c.EndpointInfo)
	return buf
}

func unmarshalConnectionRequestFrame(b []byte) (*ConnectionRequestFrame, error) {
	fields, err := parseFields("ConnectionRequestFrame", b)
	if err != nil {
		return nil, err
	}
	return &ConnectionRequestFrame{
		EndpointID:   string(firstBytes(fields, tagCRTEndpointID)),
		EndpointName: string(firstBytes(fields, tagCRTEndpointName)),
		EndpointInfo: firstBytes(fields, tagCRTEndpointInfo),
	}, nil
}

func (c *ConnectionResponseFrame) marshal() []byte {
	var buf []byte
	buf = appendVarintField(buf, tagCRPStatus, uint64(c.Status))
	return buf
}

func unmarshalConnectionResponseFrame(b []byte) (*ConnectionResponseFrame, error) {
	fields, err := parseFields("ConnectionResponseFrame", b)
	if err != nil {
		return nil, err
	}
	status, _ := firstVarint(fields, tagCRPStatus)
	return &ConnectionResponseFrame{Status: ConnectionResponseStatus(status)}, nil
}

func (p *PayloadTransferFrame) marshal() []byte {
	var buf []byte
	buf = appendVarintField(buf, tagPTFPacketType, uint64(p.PacketType))
	if p.Header != nil {
		buf = appendBytesField(buf, tagPTFHeader, p.Header.marshal())
	}
	if p.Chunk != nil {
		buf = appendBytesField(buf, tagPTFChunk, p.Chunk.marshal())
	}
	return buf
}

func unmarshalPayloadTransferFrame(b []byte) (*PayloadTransferFrame, error) {
	fields, err := parseFields("PayloadTransferFrame", b)
	if err != nil {
		return nil, err
	}
	p := &PayloadTransferFrame{}
	if t, ok := firstVarint(fields, tagPTFPacketType); ok {
		p.PacketType = PacketType(t)
	}
	if raw := firstBytes(fields, tagPTFHeader); raw != nil {
		h, err := unmarshalPayloadHeader(raw)
		if err != nil {
			return nil, err
		}
		p.Header = h
	}
	if raw := firstBytes(fields, tagPTFChunk); raw != nil {
		c, err := unmarshalPayloadChunk(raw)
		if err != nil {
			return nil, err
		}
		p.Chunk = c
	}
	return p, nil
}

func (h *PayloadHeader) marshal() []byte {
	var buf []byte
	buf = appendVarintField(buf, tagPHID, uint64(h.ID))
	buf = appendVarintField(buf, tagPHType, uint64(h.Type))
	buf = appendVarintField(buf, tagPHTotalSize, uint64(h.TotalSize))
	return buf
}

func unmarshalPayloadHeader(b []byte) (*PayloadHeader, error) {
	fields, err := parseFields("PayloadHeader", b)
	if err != nil {
		return nil, err
	}
	id, _ := firstVarint(fields, tagPHID)
	typ, _ := firstVarint(fields, tagPHType)
	size, _ := firstVarint(fields, tagPHTotalSize)
	return &PayloadHeader{ID: int64(id), Type: PayloadType(typ), TotalSize: int64(size)}, nil
}

func (c *PayloadChunk) marshal() []byte {
	var buf []byte
	buf = appendVarintField(buf, tagPCPayloadID, uint64(c.PayloadID))
	// Offset 0 is a valid and common value (the first chunk), so it must be
	// encoded explicitly rather than omitted like the other varint fields.
	buf = protowire.AppendTag(buf, tagPCOffset, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(c.Offset))
	buf = appendVarintField(buf, tagPCFlags, uint64(c.Flags))
	buf = appendBytesField(buf, tagPCBody, c.Body)
	return buf
}

func unmarshalPayloadChunk(b []byte) (*PayloadChunk, error) {
	fields, err := parseFields("PayloadChunk", b)
	if err != nil {
		return nil, err
	}
	id, _ := firstVarint(fields, tagPCPayloadID)
	offset, _ := firstVarint(fields, tagPCOffset)
	flags, _ := firstVarint(fields, tagPCFlags)
	return &PayloadChunk{
		PayloadID: int64(id),
		Offset:    int64(offset),
		Flags:     int32(flags),
		Body:      firstBytes(fields, tagPCBody),
	}, nil
}

func (k *KeepAliveFrame) marshal() []byte {
	var buf []byte
	buf = appendBoolField(buf, tagKAAck, k.Ack)
	return buf
}

func unmarshalKeepAliveFrame(b []byte) *KeepAliveFrame {
	fields, err := parseFields("KeepAliveFrame", b)
	if err != nil {
		return &KeepAliveFrame{}
	}
	ack, _ := firstVarint(fields, tagKAAck)
	return &KeepAliveFrame{Ack: ack != 0}
}

func (d *DisconnectionFrame) marshal() []byte {
	var buf []byte
	buf = appendBoolField(buf, tagDFRequestSafe, d.RequestSafeToDisconnect)
	return buf
}

func unmarshalDisconnectionFrame(b []byte) *DisconnectionFrame {
	fields, err := parseFields("DisconnectionFrame", b)
	if err != nil {
		return &DisconnectionFrame{}
	}
	v, _ := firstVarint(fields, tagDFRequestSafe)
	return &DisconnectionFrame{RequestSafeToDisconnect: v != 0}
}

// NewConnectionRequestOfflineFrame is a convenience constructor used by the
// offline phase of the session state machine.
func NewConnectionRequestOfflineFrame(endpointID, endpointName string, endpointInfo []byte) *OfflineFrame {
	return &OfflineFrame{
		Version: 1,
		V1: &V1Frame{
			Type: FrameConnectionRequest,
			ConnectionRequest: &ConnectionRequestFrame{
				EndpointID:   endpointID,
				EndpointName: endpointName,
				EndpointInfo: endpointInfo,
			},
		},
	}
}

// NewConnectionResponseOfflineFrame builds the ConnectionResponse offline
// frame for the given status.
func NewConnectionResponseOfflineFrame(status ConnectionResponseStatus) *OfflineFrame {
	return &OfflineFrame{
		Version: 1,
		V1: &V1Frame{
			Type:           FrameConnectionResp,
			ConnectionResp: &ConnectionResponseFrame{Status: status},
		},
	}
}

// NewPayloadHeaderOfflineFrame wraps a PayloadHeader in its OfflineFrame envelope.
func NewPayloadHeaderOfflineFrame(h *PayloadHeader) *OfflineFrame {
	return &OfflineFrame{
		Version: 1,
		V1: &V1Frame{
			Type:            FramePayloadTransfer,
			PayloadTransfer: &PayloadTransferFrame{PacketType: PacketControl, Header: h},
		},
	}
}

// NewPayloadChunkOfflineFrame wraps a PayloadChunk in its OfflineFrame envelope.
func NewPayloadChunkOfflineFrame(c *PayloadChunk) *OfflineFrame {
	return &OfflineFrame{
		Version: 1,
		V1: &V1Frame{
			Type:            FramePayloadTransfer,
			PayloadTransfer: &PayloadTransferFrame{PacketType: PacketData, Chunk: c},
		},
	}
}

// NewKeepAliveOfflineFrame builds a KeepAlive offline frame.
func NewKeepAliveOfflineFrame(ack bool) *OfflineFrame {
	return &OfflineFrame{
		Version: 1,
		V1:      &V1Frame{Type: FrameKeepAlive, KeepAlive: &KeepAliveFrame{Ack: ack}},
	}
}

// NewDisconnectionOfflineFrame builds a Disconnection offline frame.
func NewDisconnectionOfflineFrame(requestSafe bool) *OfflineFrame {
	return &OfflineFrame{
		Version: 1,
		V1: &V1Frame{
			Type:          FrameDisconnection,
			Disconnection: &DisconnectionFrame{RequestSafeToDisconnect: requestSafe},
		},
	}
}
