package extensions

import (
	"github.com/klauspost/compress/zstd"

	stoqerrors "github.com/stoq-transport/stoq/internal/errors"
)

// CompressShard applies zstd compression to a packet before it is
// sharded. Shard boundaries and the packet hash are computed over the
// compressed bytes, so reassembly validates exactly what went over the
// wire rather than the original plaintext.
func CompressShard(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, stoqerrors.NewTransportError(stoqerrors.KindShardingError, "create zstd encoder", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, make([]byte, 0, len(data))), nil
}

// DecompressShard reverses CompressShard, once Reassemble has produced
// the full compressed payload. Callers run this once, after
// reassembly, rather than per-shard.
func DecompressShard(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, stoqerrors.NewTransportError(stoqerrors.KindReassemblyError, "create zstd decoder", err)
	}
	defer dec.Close()

	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, stoqerrors.NewTransportError(stoqerrors.KindReassemblyError, "zstd decompress", err)
	}
	return out, nil
}
