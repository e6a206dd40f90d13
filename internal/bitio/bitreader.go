// Package bitio implements the bit-level reader DEFLATE (RFC 1951) needs:
// bits arrive from the byte stream MSB-first, but within the bitstream
// itself DEFLATE packs fields LSB-first. BitReader threads that by
// draining one byte into a small accumulator and handing bits out low
// end first, so that a value spanning several bytes comes out with the
// first byte's bits at the bottom and the last byte's at the top.
package bitio

import (
	"bufio"
	"errors"
	"io"
)

// BitReader wraps a buffered byte source and yields bit-width values of
// 1..64 bits, LSB-first within each byte. It also exposes byte-aligned
// reads and passthrough access to the underlying buffered reader.
//
// The byte-aligned helpers (ReadU8, ReadU16LE, ReadU32LE, ReadExact,
// ReadUntil) and the FillBuf/Consume passthrough are only valid when no
// partial byte is buffered. Calling them with a nonzero partial byte is
// a programming error; FillBuf and Consume panic to surface the bug
// immediately rather than silently skip buffered bits.
type BitReader struct {
	r         *bufio.Reader
	bits      uint64
	bitsCount uint
	offset    int64
}

// NewBitReader returns a BitReader reading from r.
func NewBitReader(r *bufio.Reader) *BitReader {
	return &BitReader{r: r}
}

// Offset returns the number of bytes consumed from the underlying
// source so far. Useful for error messages that want to report where
// in the input a problem was found.
func (b *BitReader) Offset() int64 {
	return b.offset
}

func bitmask(n uint) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << n) - 1
}

// ReadBitsPartial reads up to n bits from the current byte, loading the
// next byte first when none is buffered. It returns fewer than n bits
// when the current byte runs out, and 0 bits at EOF. It is the primitive
// ReadBits loops on to assemble values that span byte boundaries.
func (b *BitReader) ReadBitsPartial(n uint) (value uint64, obtained uint, err error) {
	if n == 0 {
		return 0, 0, nil
	}
	if b.bitsCount == 0 {
		peek, err := b.r.Peek(1)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, 0, nil
			}
			return 0, 0, err
		}
		b.bits = uint64(peek[0])
		b.bitsCount = 8
		if _, err := b.r.Discard(1); err != nil {
			return 0, 0, err
		}
		b.offset++
	}

	take := n
	if b.bitsCount < take {
		take = b.bitsCount
	}
	value = b.bits & bitmask(take)
	b.bits >>= take
	b.bitsCount -= take
	return value, take, nil
}

// ReadBits reads exactly n bits (0..=64), LSB-first, concatenating
// fragments from successive bytes so that the earliest-read bits land
// at the bottom of the result. Returns io.ErrUnexpectedEOF if the
// stream ends before n bits are produced.
func (b *BitReader) ReadBits(n uint) (uint64, error) {
	var out uint64
	var total uint
	for total < n {
		v, obtained, err := b.ReadBitsPartial(n - total)
		if err != nil {
			return 0, err
		}
		if obtained == 0 {
			return 0, io.ErrUnexpectedEOF
		}
		out |= v << total
		total += obtained
	}
	return out, nil
}

// DiscardPartialByte clears any buffered fractional bits, aligning the
// next read to a byte boundary.
func (b *BitReader) DiscardPartialByte() {
	b.bits = 0
	b.bitsCount = 0
}

// ReadU8 reads one byte-aligned byte.
func (b *BitReader) ReadU8() (byte, error) {
	c, err := b.r.ReadByte()
	if err == nil {
		b.offset++
	}
	return c, err
}

// ReadU16LE reads a little-endian uint16, byte-aligned.
func (b *BitReader) ReadU16LE() (uint16, error) {
	var buf [2]byte
	if err := b.ReadExact(buf[:]); err != nil {
		return 0, err
	}
	return uint16(buf[0]) | uint16(buf[1])<<8, nil
}

// ReadU32LE reads a little-endian uint32, byte-aligned.
func (b *BitReader) ReadU32LE() (uint32, error) {
	var buf [4]byte
	if err := b.ReadExact(buf[:]); err != nil {
		return 0, err
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}

// ReadExact fills dst entirely, byte-aligned, returning
// io.ErrUnexpectedEOF on a short read.
func (b *BitReader) ReadExact(dst []byte) error {
	n, err := io.ReadFull(b.r, dst)
	b.offset += int64(n)
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// ReadUntil consumes bytes up to and including delim, appending them
// (delim included) to dst and returning the extended slice.
func (b *BitReader) ReadUntil(delim byte, dst []byte) ([]byte, error) {
	line, err := b.r.ReadBytes(delim)
	b.offset += int64(len(line))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return dst, io.ErrUnexpectedEOF
		}
		return dst, err
	}
	return append(dst, line...), nil
}

// FillBuf peeks at the next buffered byte without consuming it,
// returning an empty slice (not an error) at a clean end-of-stream.
// Precondition: no partial byte is currently buffered.
func (b *BitReader) FillBuf() ([]byte, error) {
	if b.bitsCount != 0 {
		panic("bitio: FillBuf called with a partial byte buffered")
	}
	peek, err := b.r.Peek(1)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	return peek, nil
}

// Consume discards amt bytes previously observed via FillBuf.
// Precondition: no partial byte is currently buffered.
func (b *BitReader) Consume(amt int) {
	if b.bitsCount != 0 {
		panic("bitio: Consume called with a partial byte buffered")
	}
	if _, err := b.r.Discard(amt); err != nil && !errors.Is(err, io.EOF) {
		panic(err)
	}
	b.offset += int64(amt)
}
