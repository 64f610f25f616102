package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"

	"github.com/stoq-transport/stoq/internal/logging"
)

// TokenAlgorithm identifies the hash algorithm used for packet
// tokenization, negotiated between client and server.
type TokenAlgorithm uint8

const (
	TokenAlgorithmSha256 TokenAlgorithm = iota
	TokenAlgorithmSha384
	TokenAlgorithmSha3_256
	TokenAlgorithmBlake3
)

// ToID returns the wire format identifier for the algorithm.
func (a TokenAlgorithm) ToID() uint8 {
	return uint8(a)
}

// TokenAlgorithmFromID parses a wire format token algorithm identifier.
func TokenAlgorithmFromID(id uint8) (TokenAlgorithm, bool) {
	switch id {
	case uint8(TokenAlgorithmSha256), uint8(TokenAlgorithmSha384), uint8(TokenAlgorithmSha3_256), uint8(TokenAlgorithmBlake3):
		return TokenAlgorithm(id), true
	default:
		return 0, false
	}
}

func (a TokenAlgorithm) String() string {
	switch a {
	case TokenAlgorithmSha256:
		return "sha256"
	case TokenAlgorithmSha384:
		return "sha384"
	case TokenAlgorithmSha3_256:
		return "sha3-256"
	case TokenAlgorithmBlake3:
		return "blake3"
	default:
		return "unknown"
	}
}

// Parameters are the STOQ transport parameters negotiated as part of the
// QUIC handshake.
type Parameters struct {
	ExtensionsEnabled bool
	FalconEnabled     bool
	FalconPublicKey   []byte // nil if not provided
	MaxShardSize      uint32
	TokenAlgorithm    TokenAlgorithm
	Custom            map[uint64][]byte
}

// DefaultParameters returns the baseline parameter set before any
// client/server role is applied.
func DefaultParameters() Parameters {
	return Parameters{
		ExtensionsEnabled: true,
		FalconEnabled:     false,
		MaxShardSize:      DefaultMaxShardSize,
		TokenAlgorithm:    TokenAlgorithmSha256,
		Custom:            map[uint64][]byte{},
	}
}

// ClientDefaultParameters returns the parameters a client offers when
// initiating a connection.
func ClientDefaultParameters() Parameters {
	p := DefaultParameters()
	p.FalconEnabled = true
	p.MaxShardSize = 9000
	return p
}

// ServerDefaultParameters returns the parameters a server offers when
// accepting a connection.
func ServerDefaultParameters() Parameters {
	p := DefaultParameters()
	p.FalconEnabled = true
	p.MaxShardSize = 9000
	return p
}

// rawParam is a single (id, value) transport parameter pair as they
// appear on the wire.
type rawParam struct {
	ID    uint64
	Value []byte
}

// Encode produces the wire-format parameter list for this parameter set.
func (p Parameters) Encode() []rawParam {
	params := make([]rawParam, 0, 5+len(p.Custom))

	enabledByte := byte(0)
	if p.ExtensionsEnabled {
		enabledByte = 1
	}
	params = append(params, rawParam{ParamExtensionsEnabled, []byte{enabledByte}})

	falconByte := byte(0)
	if p.FalconEnabled {
		falconByte = 1
	}
	params = append(params, rawParam{ParamFalconEnabled, []byte{falconByte}})

	if p.FalconPublicKey != nil {
		params = append(params, rawParam{ParamFalconPublicKey, p.FalconPublicKey})
	}

	var shardSize [4]byte
	binary.BigEndian.PutUint32(shardSize[:], p.MaxShardSize)
	params = append(params, rawParam{ParamMaxShardSize, shardSize[:]})

	params = append(params, rawParam{ParamTokenAlgorithm, []byte{p.TokenAlgorithm.ToID()}})

	for id, value := range p.Custom {
		params = append(params, rawParam{id, value})
	}

	logging.Debug("encoded stoq transport parameters", zap.Int("count", len(params)))
	return params
}

// DecodeParameters parses a wire-format parameter list, starting from
// DefaultParameters and overlaying recognized fields. Unknown parameter
// ids outside the STOQ custom range are ignored for forward
// compatibility; ids within the custom range are preserved in Custom.
func DecodeParameters(params []rawParam) (Parameters, error) {
	result := DefaultParameters()

	for _, param := range params {
		switch param.ID {
		case ParamExtensionsEnabled:
			if len(param.Value) != 1 {
				return Parameters{}, fmt.Errorf("protocol: invalid extensions_enabled parameter")
			}
			result.ExtensionsEnabled = param.Value[0] != 0
		case ParamFalconEnabled:
			if len(param.Value) != 1 {
				return Parameters{}, fmt.Errorf("protocol: invalid falcon_enabled parameter")
			}
			result.FalconEnabled = param.Value[0] != 0
		case ParamFalconPublicKey:
			if len(param.Value) == 0 {
				return Parameters{}, fmt.Errorf("protocol: empty falcon_public_key parameter")
			}
			result.FalconPublicKey = append([]byte(nil), param.Value...)
		case ParamMaxShardSize:
			if len(param.Value) != 4 {
				return Parameters{}, fmt.Errorf("protocol: invalid max_shard_size parameter")
			}
			result.MaxShardSize = binary.BigEndian.Uint32(param.Value)
		case ParamTokenAlgorithm:
			if len(param.Value) != 1 {
				return Parameters{}, fmt.Errorf("protocol: invalid token_algorithm parameter")
			}
			alg, ok := TokenAlgorithmFromID(param.Value[0])
			if !ok {
				return Parameters{}, fmt.Errorf("protocol: unknown token algorithm %d", param.Value[0])
			}
			result.TokenAlgorithm = alg
		default:
			if param.ID >= CustomParamRangeStart && param.ID <= CustomParamRangeEnd {
				result.Custom[param.ID] = append([]byte(nil), param.Value...)
			}
		}
	}

	return result, nil
}

// Negotiate combines client-offered and server-offered parameters into
// the effective parameter set used for the rest of the connection.
// extensions_enabled and falcon_enabled require agreement from both
// sides; max_shard_size takes the smaller of the two; the server's
// token algorithm and public key win; custom parameters are merged with
// the server's values taking precedence on conflicts.
func Negotiate(client, server Parameters) Parameters {
	maxShardSize := client.MaxShardSize
	if server.MaxShardSize < maxShardSize {
		maxShardSize = server.MaxShardSize
	}

	custom := make(map[uint64][]byte, len(client.Custom)+len(server.Custom))
	for id, value := range client.Custom {
		custom[id] = value
	}
	for id, value := range server.Custom {
		custom[id] = value
	}

	return Parameters{
		ExtensionsEnabled: client.ExtensionsEnabled && server.ExtensionsEnabled,
		FalconEnabled:     client.FalconEnabled && server.FalconEnabled,
		FalconPublicKey:   server.FalconPublicKey,
		MaxShardSize:      maxShardSize,
		TokenAlgorithm:    server.TokenAlgorithm,
		Custom:            custom,
	}
}

// IsCompatible reports whether two parameter sets can interoperate: both
// sides must agree on extensions, and if either side mandates Falcon
// the other must support it too.
func (p Parameters) IsCompatible(other Parameters) bool {
	if p.ExtensionsEnabled != other.ExtensionsEnabled {
		return false
	}

	if (p.FalconEnabled && !other.FalconEnabled) ||
		(!p.FalconEnabled && other.FalconEnabled && other.FalconPublicKey != nil) {
		return false
	}

	return true
}

// EncodeWire serializes a parameter set to its flat byte-string
// representation: a sequence of (varint id, varint length, value)
// triples, the format the transport exchanges with its peer over the
// post-handshake exchange stream.
func (p Parameters) EncodeWire() ([]byte, error) {
	var buf bytes.Buffer
	for _, param := range p.Encode() {
		if err := EncodeVarInt(&buf, param.ID); err != nil {
			return nil, err
		}
		if err := EncodeVarInt(&buf, uint64(len(param.Value))); err != nil {
			return nil, err
		}
		buf.Write(param.Value)
	}
	return buf.Bytes(), nil
}

// DecodeWire parses a flat byte-string parameter encoding produced by
// EncodeWire.
func DecodeWire(data []byte) (Parameters, error) {
	var params []rawParam
	for len(data) > 0 {
		id, n, err := DecodeVarInt(data)
		if err != nil {
			return Parameters{}, fmt.Errorf("protocol: decode parameter id: %w", err)
		}
		data = data[n:]

		length, n, err := DecodeVarInt(data)
		if err != nil {
			return Parameters{}, fmt.Errorf("protocol: decode parameter length: %w", err)
		}
		data = data[n:]

		if uint64(len(data)) < length {
			return Parameters{}, fmt.Errorf("protocol: parameter value truncated")
		}
		params = append(params, rawParam{ID: id, Value: data[:length]})
		data = data[length:]
	}
	return DecodeParameters(params)
}
