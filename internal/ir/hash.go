package ir

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content ids. The version suffix allows changing the
// derivation later without colliding with stored ids.
const (
	DomainImage  = "redworker/image/v1"
	DomainCursor = "redworker/cursor/v1"
	DomainDetail = "redworker/detail/v1"
)

// hashWithDomain returns SHA256(domain || 0x00 || data).
func hashWithDomain(domain string, data []byte) [sha256.Size]byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	var sum [sha256.Size]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// BitmapID derives a cache id for a bitmap from its geometry and pixels.
// The id is never zero.
func BitmapID(b *Bitmap) uint64 {
	hdr := make([]byte, 0, 17)
	hdr = binary.BigEndian.AppendUint32(hdr, uint32(b.Format))
	hdr = binary.BigEndian.AppendUint32(hdr, uint32(b.Width))
	hdr = binary.BigEndian.AppendUint32(hdr, uint32(b.Height))
	hdr = binary.BigEndian.AppendUint32(hdr, uint32(b.Stride))
	if b.TopDown {
		hdr = append(hdr, 1)
	} else {
		hdr = append(hdr, 0)
	}
	sum := hashWithDomain(DomainImage, append(hdr, b.Data...))
	return nonZero(binary.BigEndian.Uint64(sum[:8]))
}

// CursorID derives a cache id for a cursor shape. The id is never zero.
func CursorID(c *CursorShape) uint64 {
	hdr := make([]byte, 0, 16)
	hdr = binary.BigEndian.AppendUint32(hdr, uint32(c.Width))
	hdr = binary.BigEndian.AppendUint32(hdr, uint32(c.Height))
	hdr = binary.BigEndian.AppendUint32(hdr, uint32(c.HotX))
	hdr = binary.BigEndian.AppendUint32(hdr, uint32(c.HotY))
	sum := hashWithDomain(DomainCursor, append(hdr, c.Data...))
	return nonZero(binary.BigEndian.Uint64(sum[:8]))
}

// DetailHash returns the hex digest of the canonical encoding of v.
func DetailHash(v any) (string, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("DetailHash: failed to marshal: %w", err)
	}
	sum := hashWithDomain(DomainDetail, data)
	return hex.EncodeToString(sum[:]), nil
}

func nonZero(id uint64) uint64 {
	if id == 0 {
		return 1
	}
	return id
}
