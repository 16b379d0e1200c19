package ingest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
)

// ChunkID derives a stable numeric id for a chunk from its file stem and
// position. Re-ingesting the same file overwrites its previous chunks
// instead of duplicating them.
func ChunkID(stem string, index int) uint64 {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_chunk_%d", stem, index)))
	id, _ := strconv.ParseUint(hex.EncodeToString(sum[:])[:8], 16, 64)
	return id
}
