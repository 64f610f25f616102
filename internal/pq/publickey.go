package pq

import (
	"encoding/binary"
	"fmt"
	"time"
)

// minPublicKeyWireLen is the smallest possible exported public key:
// 1-byte variant + 4-byte length + 0 key bytes + 8-byte timestamp +
// 1-byte key-id presence flag.
const minPublicKeyWireLen = 1 + 4 + 8 + 1

// ExportPublicKey serializes a public key to the wire format used in
// transport parameters and handshake messages: 1-byte variant | 4-byte
// key length | key bytes | 8-byte timestamp (unix seconds) | 1-byte
// key-id presence flag | [4-byte key-id length | key-id bytes].
func ExportPublicKey(pub *PublicKey) []byte {
	buf := make([]byte, 0, minPublicKeyWireLen+len(pub.KeyData)+len(pub.KeyID))

	buf = append(buf, byte(pub.Variant))

	lenField := make([]byte, 4)
	binary.BigEndian.PutUint32(lenField, uint32(len(pub.KeyData)))
	buf = append(buf, lenField...)
	buf = append(buf, pub.KeyData...)

	tsField := make([]byte, 8)
	binary.BigEndian.PutUint64(tsField, uint64(pub.CreatedAt.Unix()))
	buf = append(buf, tsField...)

	if pub.KeyID == "" {
		buf = append(buf, 0)
		return buf
	}

	buf = append(buf, 1)
	idLenField := make([]byte, 4)
	binary.BigEndian.PutUint32(idLenField, uint32(len(pub.KeyID)))
	buf = append(buf, idLenField...)
	buf = append(buf, []byte(pub.KeyID)...)

	return buf
}

// ImportPublicKey parses the wire format produced by ExportPublicKey.
func ImportPublicKey(data []byte) (*PublicKey, error) {
	if len(data) < minPublicKeyWireLen {
		return nil, fmt.Errorf("pq: public key data too short: %d bytes", len(data))
	}

	var variant Variant
	switch data[0] {
	case 0:
		variant = VariantFalcon512
	case 1:
		variant = VariantFalcon1024
	default:
		return nil, fmt.Errorf("pq: unknown variant byte %d", data[0])
	}

	offset := 1
	keyLen := int(binary.BigEndian.Uint32(data[offset : offset+4]))
	offset += 4

	if len(data) < offset+keyLen+8+1 {
		return nil, fmt.Errorf("pq: public key data truncated")
	}

	keyData := make([]byte, keyLen)
	copy(keyData, data[offset:offset+keyLen])
	offset += keyLen

	ts := binary.BigEndian.Uint64(data[offset : offset+8])
	offset += 8

	pub, err := NewPublicKey(variant, keyData)
	if err != nil {
		return nil, err
	}
	pub.CreatedAt = time.Unix(int64(ts), 0)

	hasKeyID := data[offset]
	offset++
	if hasKeyID != 1 {
		return pub, nil
	}

	if len(data) < offset+4 {
		return pub, nil
	}
	idLen := int(binary.BigEndian.Uint32(data[offset : offset+4]))
	offset += 4
	if len(data) < offset+idLen {
		return pub, nil
	}
	pub.KeyID = string(data[offset : offset+idLen])

	return pub, nil
}
