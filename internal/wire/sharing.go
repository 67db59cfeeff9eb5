package wire

import "google.golang.org/protobuf/encoding/protowire"

// SharingV1FrameType enumerates sharing.nearby.V1Frame.FrameType: the
// application-layer dialogue carried as payload bytes over an established
// NearbySocket connection.
type SharingV1FrameType int32

const (
	SharingFrameUnknown            SharingV1FrameType = 0
	SharingFrameIntroduction       SharingV1FrameType = 1
	SharingFramePairedKeyEncryption SharingV1FrameType = 6
	SharingFramePairedKeyResult    SharingV1FrameType = 7
)

// PairedKeyResultStatus enumerates sharing.nearby.PairedKeyResultFrame.Status.
// This implementation never completes real contact verification and always
// reports Unable.
type PairedKeyResultStatus int32

const (
	PairedKeyResultUnable PairedKeyResultStatus = 1
	PairedKeyResultSuccess PairedKeyResultStatus = 2
)

// FileMetadataType enumerates sharing.nearby.FileMetadata.Type.
type FileMetadataType int32

const (
	FileMetadataUnknown FileMetadataType = 0
	FileMetadataImage   FileMetadataType = 1
	FileMetadataVideo   FileMetadataType = 2
	FileMetadataApp     FileMetadataType = 3
	FileMetadataAudio   FileMetadataType = 4
	FileMetadataDocument FileMetadataType = 6
)

// SharingFrame is the top-level sharing.nearby.Frame: a version tag wrapping
// a SharingV1Frame payload, sent as the body of a payload transfer.
type SharingFrame struct {
	Version int32
	V1      *SharingV1Frame
}

// SharingV1Frame carries exactly one of the variant payloads selected by Type.
type SharingV1Frame struct {
	Type                SharingV1FrameType
	Introduction        *IntroductionFrame
	PairedKeyEncryption *PairedKeyEncryptionFrame
	PairedKeyResult     *PairedKeyResultFrame
}

// IntroductionFrame announces the files (and other attachments) offered in
// a transfer, one FileMetadata entry per file.
type IntroductionFrame struct {
	FileMetadata []*FileMetadata
}

// FileMetadata describes one file offered in an IntroductionFrame.
type FileMetadata struct {
	ID        int64
	Name      string
	Type      FileMetadataType
	PayloadID int64
	Size      int64
	MimeType  string
}

// PairedKeyEncryptionFrame carries the contact-verification handshake this
// implementation always answers as unable to verify.
type PairedKeyEncryptionFrame struct {
	SecretIDHash []byte
	SignedData   []byte
}

// PairedKeyResultFrame answers a PairedKeyEncryptionFrame.
type PairedKeyResultFrame struct {
	Status PairedKeyResultStatus
}

const (
	tagSFVersion = protowire.Number(1)
	tagSFV1      = protowire.Number(2)

	tagSV1Type           = protowire.Number(1)
	tagSV1Introduction   = protowire.Number(2)
	tagSV1PairedKeyEnc   = protowire.Number(6)
	tagSV1PairedKeyResult = protowire.Number(7)

	tagIFFileMetadata = protowire.Number(1)

	tagFMID        = protowire.Number(1)
	tagFMName      = protowire.Number(2)
	tagFMType      = protowire.Number(3)
	tagFMPayloadID = protowire.Number(4)
	tagFMSize      = protowire.Number(5)
	tagFMMimeType  = protowire.Number(6)

	tagPKESecretIDHash = protowire.Number(1)
	tagPKESignedData   = protowire.Number(2)

	tagPKRStatus = protowire.Number(1)
)

// Marshal encodes a SharingFrame.
func (f *SharingFrame) Marshal() []byte {
	var buf []byte
	buf = appendVarintField(buf, tagSFVersion, uint64(f.Version))
	if f.V1 != nil {
		buf = appendBytesField(buf, tagSFV1, f.V1.marshal())
	}
	return buf
}

// UnmarshalSharingFrame decodes a SharingFrame.
func UnmarshalSharingFrame(b []byte) (*SharingFrame, error) {
	fields, err := parseFields("SharingFrame", b)
	if err != nil {
		return nil, err
	}
	version, _ := firstVarint(fields, tagSFVersion)
	f := &SharingFrame{Version: int32(version)}
	raw := firstBytes(fields, tagSFV1)
	if raw == nil {
		return nil, malformed("SharingFrame", "missing v1 frame")
	}
	v1, err := unmarshalSharingV1Frame(raw)
	if err != nil {
		return nil, err
	}
	f.V1 = v1
	return f, nil
}

func (v *SharingV1Frame) marshal() []byte {
	var buf []byte
	buf = appendVarintField(buf, tagSV1Type, uint64(v.Type))
	if v.Introduction != nil {
		buf = appendBytesField(buf, tagSV1Introduction, v.Introduction.marshal())
	}
	if v.PairedKeyEncryption != nil {
		buf = appendBytesField(buf, tagSV1PairedKeyEnc, v.PairedKeyEncryption.marshal())
	}
	if v.PairedKeyResult != nil {
		buf = appendBytesField(buf, tagSV1PairedKeyResult, v.PairedKeyResult.marshal())
	}
	return buf
}

func unmarshalSharingV1Frame(b []byte) (*SharingV1Frame, error) {
	fields, err := parseFields("SharingV1Frame", b)
	if err != nil {
		return nil, err
	}
	typ, _ := firstVarint(fields, tagSV1Type)
	v := &SharingV1Frame{Type: SharingV1FrameType(typ)}
	if raw := firstBytes(fields, tagSV1Introduction); raw != nil {
		intro, err := unmarshalIntroductionFrame(raw)
		if err != nil {
			return nil, err
		}
		v.Introduction = intro
	}
	if raw := firstBytes(fields, tagSV1PairedKeyEnc); raw != nil {
		pke, err := unmarshalPairedKeyEncryptionFrame(raw)
		if err != nil {
			return nil, err
		}
		v.PairedKeyEncryption = pke
	}
	if raw := firstBytes(fields, tagSV1PairedKeyResult); raw != nil {
		pkr, err := unmarshalPairedKeyResultFrame(raw)
		if err != nil {
			return nil, err
		}
		v.PairedKeyResult = pkr
	}
	return v, nil
}

func (i *IntroductionFrame) marshal() []byte {
	var buf []byte
	for _, fm := range i.FileMetadata {
		buf = appendBytesField(buf, tagIFFileMetadata, fm.marshal())
	}
	return buf
}

func unmarshalIntroductionFrame(b []byte) (*IntroductionFrame, error) {
	fields, err := parseFields("IntroductionFrame", b)
	if err != nil {
		return nil, err
	}
	i := &IntroductionFrame{}
	for _, raw := range allBytes(fields, tagIFFileMetadata) {
		fm, err := unmarshalFileMetadata(raw)
		if err != nil {
			return nil, err
		}
		i.FileMetadata = append(i.FileMetadata, fm)
	}
	return i, nil
}

func (m *FileMetadata) marshal() []byte {
	var buf []byte
	buf = appendVarintField(buf, tagFMID, uint64(m.ID))
	buf = appendStringField(buf, tagFMName, m.Name)
	buf = appendVarintField(buf, tagFMType, uint64(m.Type))
	buf = appendVarintField(buf, tagFMPayloadID, uint64(m.PayloadID))
	buf = appendVarintField(buf, tagFMSize, uint64(m.Size))
	buf = appendStringField(buf, tagFMMimeType, m.MimeType)
	return buf
}

func unmarshalFileMetadata(b []byte) (*FileMetadata, error) {
	fields, err := parseFields("FileMetadata", b)
	if err != nil {
		return nil, err
	}
	id, _ := firstVarint(fields, tagFMID)
	typ, _ := firstVarint(fields, tagFMType)
	payloadID, _ := firstVarint(fields, tagFMPayloadID)
	size, _ := firstVarint(fields, tagFMSize)
	return &FileMetadata{
		ID:        int64(id),
		Name:      string(firstBytes(fields, tagFMName)),
		Type:      FileMetadataType(typ),
		PayloadID: int64(payloadID),
		Size:      int64(size),
		MimeType:  string(firstBytes(fields, tagFMMimeType)),
	}, nil
}

func (p *PairedKeyEncryptionFrame) marshal() []byte {
	var buf []byte
	buf = appendBytesField(buf, tagPKESecretIDHash, p.SecretIDHash)
	buf = appendBytesField(buf, tagPKESignedData, p.SignedData)
	return buf
}

func unmarshalPairedKeyEncryptionFrame(b []byte) (*PairedKeyEncryptionFrame, error) {
	fields, err := parseFields("PairedKeyEncryptionFrame", b)
	if err != nil {
		return nil, err
	}
	return &PairedKeyEncryptionFrame{
		SecretIDHash: firstBytes(fields, tagPKESecretIDHash),
		SignedData:   firstBytes(fields, tagPKESignedData),
	}, nil
}

func (p *PairedKeyResultFrame) marshal() []byte {
	var buf []byte
	buf = appendVarintField(buf, tagPKRStatus, uint64(p.Status))
	return buf
}

func unmarshalPairedKeyResultFrame(b []byte) (*PairedKeyResultFrame, error) {
	fields, err := parseFields("PairedKeyResultFrame", b)
	if err != nil {
		return nil, err
	}
	status, _ := firstVarint(fields, tagPKRStatus)
	return &PairedKeyResultFrame{Status: PairedKeyResultStatus(status)}, nil
}

// NewIntroductionSharingFrame wraps an IntroductionFrame in its SharingFrame envelope.
func NewIntroductionSharingFrame(files []*FileMetadata) *SharingFrame {
	return &SharingFrame{
		Version: 1,
		V1: &SharingV1Frame{
			Type:         SharingFrameIntroduction,
			Introduction: &IntroductionFrame{FileMetadata: files},
		},
	}
}

// NewPairedKeyEncryptionSharingFrame wraps a PairedKeyEncryptionFrame in its SharingFrame envelope.
func NewPairedKeyEncryptionSharingFrame(secretIDHash, signedData []byte) *SharingFrame {
	return &SharingFrame{
		Version: 1,
		V1: &SharingV1Frame{
			Type: SharingFramePairedKeyEncryption,
			PairedKeyEncryption: &PairedKeyEncryptionFrame{
				SecretIDHash: secretIDHash,
				SignedData:   signedData,
			},
		},
	}
}

// NewPairedKeyResultSharingFrame wraps a PairedKeyResultFrame in its SharingFrame envelope.
func NewPairedKeyResultSharingFrame(status PairedKeyResultStatus) *SharingFrame {
	return &SharingFrame{
		Version: 1,
		V1: &SharingV1Frame{
			Type:            SharingFramePairedKeyResult,
			PairedKeyResult: &PairedKeyResultFrame{Status: status},
		},
	}
}
