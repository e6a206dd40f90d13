package huffman

import (
	"bufio"
	"bytes"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/coalman/gzflate/internal/bitio"
)

func newBitSource(data []byte) *bitio.BitReader {
	return bitio.NewBitReader(bufio.NewReader(bytes.NewReader(data)))
}

// RFC 1951 §3.2.2's worked example: symbols 0..3 with lengths [2,1,3,3]
// yield canonical codes 10, 0, 110, 111.
func TestNewCanonicalCodesExampleA(t *testing.T) {
	tree, err := New([]int{2, 1, 3, 3})
	assert.NilError(t, err)

	cases := []struct {
		bits   []byte // MSB-first bit string as written in the RFC
		symbol int
	}{
		{[]byte{1, 0}, 0},
		{[]byte{0}, 1},
		{[]byte{1, 1, 0}, 2},
		{[]byte{1, 1, 1}, 3},
	}

	for _, c := range cases {
		src := packLSBFirstFromMSBBits(c.bits)
		got, err := tree.Decode(newBitSource(src))
		assert.NilError(t, err)
		assert.Check(t, is.Equal(got, c.symbol))
	}
}

// RFC 1951 §3.2.2's second worked example: lengths [3,3,3,3,3,2,4,4].
func TestNewCanonicalCodesExampleB(t *testing.T) {
	tree, err := New([]int{3, 3, 3, 3, 3, 2, 4, 4})
	assert.NilError(t, err)

	cases := []struct {
		bits   []byte
		symbol int
	}{
		{[]byte{0, 1, 0}, 0},
		{[]byte{0, 1, 1}, 1},
		{[]byte{1, 0, 0}, 2},
		{[]byte{1, 0, 1}, 3},
		{[]byte{1, 1, 0}, 4},
		{[]byte{0, 0}, 5},
		{[]byte{1, 1, 1, 0}, 6},
		{[]byte{1, 1, 1, 1}, 7},
	}

	for _, c := range cases {
		src := packLSBFirstFromMSBBits(c.bits)
		got, err := tree.Decode(newBitSource(src))
		assert.NilError(t, err)
		assert.Check(t, is.Equal(got, c.symbol))
	}
}

func TestDecodeFailsOnUnassignedPath(t *testing.T) {
	// Only symbol 0, at length 1, is assigned: the code space's other
	// half (bit value 1) leads nowhere.
	tree, err := New([]int{1})
	assert.NilError(t, err)

	_, err = tree.Decode(newBitSource([]byte{0x01}))
	assert.Check(t, is.ErrorIs(err, ErrFailedToDecode))
}

func TestNewRejectsOversubscribedLengths(t *testing.T) {
	// Three symbols all claiming the single-bit codespace is impossible.
	_, err := New([]int{1, 1, 1})
	assert.Check(t, err != nil)
}

// packLSBFirstFromMSBBits packs a sequence of individual bits (written
// MSB-first, matching how RFC 1951 prints its examples) into bytes the
// way a BitReader expects to consume them: LSB-first within each byte.
func packLSBFirstFromMSBBits(bits []byte) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, bit := range bits {
		if bit == 0 {
			continue
		}
		byteIdx := i / 8
		bitIdx := uint(i % 8)
		out[byteIdx] |= 1 << bitIdx
	}
	return out
}
