package instrument

import (
	"encoding/binary"
	"hash/fnv"
)

// SourceID identifies one instrumentable unit: a whole external script, or
// one inline <script> inside a document. Chained per §3: inline scripts
// inside the same document hash (SourceID, index) to get distinct ids.
type SourceID uint64

// HashBytes derives a SourceID by FNV-64a hashing b. The interceptor
// passes the response ETag when present, otherwise the response body.
func HashBytes(b []byte) SourceID {
	h := fnv.New64a()
	h.Write(b)
	return SourceID(h.Sum64())
}

// Add chains a SourceID with an integer discriminant, used to mint a
// fresh id per inline <script> within one HTML document.
func (s SourceID) Add(index int) SourceID {
	h := fnv.New64a()
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(s))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(index))
	h.Write(buf[:])
	return SourceID(h.Sum64())
}

// blockID mints a stable per-injection-site 64-bit integer: hash of
// (source_id, block_counter).
func blockID(source SourceID, counter int) uint64 {
	return uint64(source.Add(counter<<1 | 1))
}
