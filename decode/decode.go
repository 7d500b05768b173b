// Package decode provides byte-transform capabilities applied to package
// bytes as they are read.
//
// A [Decoder] transforms a region of the raw buffer in place. Regions are
// addressed by their absolute offset in the package file, so a decoder must
// produce the same output for a byte regardless of how reads are split.
// The decoders in this package are symmetric: applying DecodeRegion to
// plain bytes encodes them.
package decode

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
)

// Decoder transforms a buffer region read from a package stream.
//
// DecodeRegion rewrites p in place, where p holds the bytes found at
// absolute offset off. Implementations must be safe for concurrent use.
type Decoder interface {
	DecodeRegion(off int64, p []byte)
}

// Func adapts a function to the Decoder interface.
type Func func(off int64, p []byte)

// DecodeRegion calls f(off, p).
func (f Func) DecodeRegion(off int64, p []byte) {
	f(off, p)
}

// XOR is a repeating-key XOR decoder. The key is aligned to absolute
// offsets. An empty key leaves the buffer unchanged.
type XOR []byte

// DecodeRegion implements Decoder.
func (k XOR) DecodeRegion(off int64, p []byte) {
	n := int64(len(k))
	if n == 0 {
		return
	}
	pos := off % n
	for i := range p {
		p[i] ^= k[pos]
		pos++
		if pos == n {
			pos = 0
		}
	}
}

// Chain applies decoders in order.
type Chain []Decoder

// DecodeRegion implements Decoder.
func (c Chain) DecodeRegion(off int64, p []byte) {
	for _, d := range c {
		if d != nil {
			d.DecodeRegion(off, p)
		}
	}
}

// CTR decrypts AES-CTR encrypted packages with random access.
//
// The counter block for byte offset off is iv + off/16, so any region can be
// decoded without touching the bytes before it.
type CTR struct {
	block cipher.Block
	iv    [aes.BlockSize]byte
}

// NewCTR returns an AES-CTR decoder. The key must be 16, 24 or 32 bytes and
// the iv exactly one AES block.
func NewCTR(key, iv []byte) (*CTR, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("decode: iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	c := &CTR{block: block}
	copy(c.iv[:], iv)
	return c, nil
}

// DecodeRegion implements Decoder.
func (c *CTR) DecodeRegion(off int64, p []byte) {
	if len(p) == 0 || off < 0 {
		return
	}
	counter := c.counterAt(uint64(off) / aes.BlockSize)
	stream := cipher.NewCTR(c.block, counter[:])

	if skip := int(off % aes.BlockSize); skip > 0 {
		var discard [aes.BlockSize]byte
		stream.XORKeyStream(discard[:skip], discard[:skip])
	}
	stream.XORKeyStream(p, p)
}

// counterAt adds blocks to the big-endian 128-bit iv.
func (c *CTR) counterAt(blocks uint64) [aes.BlockSize]byte {
	var out [aes.BlockSize]byte
	hi := binary.BigEndian.Uint64(c.iv[:8])
	lo := binary.BigEndian.Uint64(c.iv[8:])
	sum := lo + blocks
	if sum < lo {
		hi++
	}
	binary.BigEndian.PutUint64(out[:8], hi)
	binary.BigEndian.PutUint64(out[8:], sum)
	return out
}
