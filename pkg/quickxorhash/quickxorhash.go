// Package quickxorhash implements QuickXorHash, the content hash SharePoint
// and OneDrive for Business report for every file.
//
// Each input byte is XORed into a 160-bit ring at a position that advances
// 11 bits per byte. The digest is the ring in little-endian order with the
// total input length XORed into its last eight bytes.
//
// Reference description by Microsoft:
// https://learn.microsoft.com/en-us/onedrive/developer/code-snippets/quickxorhash
package quickxorhash

import (
	"encoding/binary"
	"hash"
)

const (
	// Size is the length, in bytes, of a QuickXorHash digest.
	Size = 20

	// BlockSize is the preferred input block size for the hash, in bytes.
	BlockSize = 64

	ringBits = 160
	step     = 11
)

// cellBits is the usable width of each ring cell; 64 + 64 + 32 = 160.
var cellBits = [3]uint{64, 64, 32}

type digest struct {
	ring   [3]uint64
	pos    uint // bit position of the next byte, 0 <= pos < ringBits
	length uint64
}

// New returns a new hash.Hash computing QuickXorHash.
func New() hash.Hash {
	return &digest{}
}

// Write absorbs p into the ring. It never fails.
func (d *digest) Write(p []byte) (int, error) {
	for _, b := range p {
		d.absorb(b)
	}

	d.length += uint64(len(p))

	return len(p), nil
}

// absorb XORs one byte at the current ring position, spilling into the
// following cell when the byte straddles a cell boundary.
func (d *digest) absorb(b byte) {
	cell, off := d.pos/64, d.pos%64

	d.ring[cell] ^= uint64(b) << off

	if width := cellBits[cell]; off+8 > width {
		next := (cell + 1) % uint(len(d.ring))
		d.ring[next] ^= uint64(b) >> (width - off)
	}

	d.pos = (d.pos + step) % ringBits
}

// Sum appends the current digest to b without changing the state.
func (d *digest) Sum(b []byte) []byte {
	var out [Size]byte

	binary.LittleEndian.PutUint64(out[0:8], d.ring[0])
	binary.LittleEndian.PutUint64(out[8:16], d.ring[1])
	binary.LittleEndian.PutUint32(out[16:20], uint32(d.ring[2])) //nolint:gosec // only the low 32 bits belong to the ring

	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], d.length)

	for i := range n {
		out[Size-len(n)+i] ^= n[i]
	}

	return append(b, out[:]...)
}

func (d *digest) Reset() {
	*d = digest{}
}

func (d *digest) Size() int {
	return Size
}

func (d *digest) BlockSize() int {
	return BlockSize
}
