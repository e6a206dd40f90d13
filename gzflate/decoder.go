// Package gzflate is a streaming decompressor for the gzip container
// (RFC 1952) carrying a DEFLATE (RFC 1951) payload. Decoder drives a
// resumable state machine: each Read call advances through gzip member
// framing and DEFLATE block decoding until at least one byte has been
// produced, end of stream is reached, or an error poisons the stream.
//
// Out of scope: encoding, random access, parallel decoding, and the
// fixed-Huffman block variant (BTYPE=1), which this decoder rejects
// with a CorruptInputError rather than implement.
package gzflate

import (
	"bufio"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/coalman/gzflate/internal/bitio"
	"github.com/coalman/gzflate/internal/huffman"
	"github.com/coalman/gzflate/internal/window"
)

type stateKind int

const (
	stateBrokenStream stateKind = iota
	stateMemberHeader
	stateBlockHeader
	stateNoCompressionBlock
	stateHuffmanBlock
	stateHuffmanBlockMatch
	stateMemberTrailer
	stateEndOfFile
)

const (
	gzipID1 = 0x1f
	gzipID2 = 0x8b
	gzipCM  = 0x08

	flgFTEXT    = 1 << 0
	flgFHCRC    = 1 << 1
	flgFEXTRA   = 1 << 2
	flgFNAME    = 1 << 3
	flgFCOMMENT = 1 << 4
)

// Decoder decompresses a gzip byte stream. A zero Decoder is not
// usable; construct one with NewDecoder. Concurrent calls to Read are
// not supported.
type Decoder struct {
	br  *bitio.BitReader
	win *window.Buffer

	kind stateKind

	// NoCompressionBlock
	remaining int
	isFinal   bool

	// HuffmanBlock / HuffmanBlockMatch
	litlen   *huffman.Tree
	distance *huffman.Tree
	length   int
	distCopy int

	// Per-member trailer verification (spec.md §9's Open Question:
	// a conforming decoder validates CRC-32 and ISIZE).
	crc   uint32
	isize uint32
}

// NewDecoder returns a Decoder reading gzip data from r. Multiple
// concatenated gzip members are decoded seamlessly as a single output
// stream.
func NewDecoder(r io.Reader) *Decoder {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Decoder{
		br:   bitio.NewBitReader(br),
		win:  window.New(),
		kind: stateMemberHeader,
	}
}

// Read fills dst with decompressed bytes, advancing the state machine
// until at least one byte has been produced, end of stream is reached
// (io.EOF, following the standard io.Reader convention rather than
// spec.md's literal "0 with no error"), or an error poisons the
// decoder. Once Read returns a non-nil, non-io.EOF error, every
// subsequent call returns ErrPoisoned.
func (d *Decoder) Read(dst []byte) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}

	total := 0
	for total == 0 {
		kind := d.kind
		d.kind = stateBrokenStream

		switch kind {
		case stateBrokenStream:
			return total, ErrPoisoned

		case stateMemberHeader:
			if err := d.readMemberHeader(); err != nil {
				return total, err
			}

		case stateBlockHeader:
			if err := d.readBlockHeader(); err != nil {
				return total, err
			}

		case stateNoCompressionBlock:
			n, err := d.readNoCompressionBlock(dst)
			total += n
			dst = dst[n:]
			if err != nil {
				return total, err
			}

		case stateHuffmanBlock:
			n, err := d.readHuffmanBlock(dst)
			total += n
			dst = dst[n:]
			if err != nil {
				return total, err
			}

		case stateHuffmanBlockMatch:
			n, err := d.readHuffmanBlockMatch(dst)
			total += n
			dst = dst[n:]
			if err != nil {
				return total, err
			}

		case stateMemberTrailer:
			if err := d.readMemberTrailer(); err != nil {
				return total, err
			}

		case stateEndOfFile:
			d.kind = stateEndOfFile
			return total, io.EOF
		}
	}
	return total, nil
}

func (d *Decoder) corrupt(format string, args ...any) error {
	return &CorruptInputError{Offset: d.br.Offset(), Msg: fmt.Sprintf(format, args...)}
}

// emit appends data to the lookback window and folds it into the
// running CRC-32 and ISIZE counters for the current member.
func (d *Decoder) emit(data []byte) error {
	if _, err := d.win.Write(data); err != nil {
		return &InvalidArgumentError{Msg: err.Error()}
	}
	d.crc = crc32.Update(d.crc, crc32.IEEETable, data)
	d.isize += uint32(len(data))
	return nil
}

func (d *Decoder) emitByte(b byte) {
	d.win.WriteByte(b)
	d.crc = crc32.Update(d.crc, crc32.IEEETable, []byte{b})
	d.isize++
}

// readMemberHeader parses a gzip member header (RFC 1952), or
// transitions to EndOfFile if the underlying stream is cleanly
// exhausted at this boundary.
func (d *Decoder) readMemberHeader() error {
	peek, err := d.br.FillBuf()
	if err != nil {
		return err
	}
	if len(peek) == 0 {
		d.kind = stateEndOfFile
		return nil
	}

	id1, err := d.br.ReadU8()
	if err != nil {
		return err
	}
	id2, err := d.br.ReadU8()
	if err != nil {
		return err
	}
	if id1 != gzipID1 || id2 != gzipID2 {
		return d.corrupt("bad gzip magic (0x%02x 0x%02x)", id1, id2)
	}

	cm, err := d.br.ReadU8()
	if err != nil {
		return err
	}
	if cm != gzipCM {
		return d.corrupt("unsupported compression method 0x%02x", cm)
	}

	flg, err := d.br.ReadU8()
	if err != nil {
		return err
	}

	if _, err := d.br.ReadU32LE(); err != nil { // MTIME, ignored
		return err
	}
	if _, err := d.br.ReadU8(); err != nil { // XFL, ignored
		return err
	}
	if _, err := d.br.ReadU8(); err != nil { // OS, ignored
		return err
	}

	if flg&flgFEXTRA != 0 {
		xlen, err := d.br.ReadU16LE()
		if err != nil {
			return err
		}
		extra := make([]byte, xlen)
		if err := d.br.ReadExact(extra); err != nil {
			return err
		}
	}

	if flg&flgFNAME != 0 {
		if _, err := d.br.ReadUntil(0, nil); err != nil {
			return err
		}
	}

	if flg&flgFCOMMENT != 0 {
		if _, err := d.br.ReadUntil(0, nil); err != nil {
			return err
		}
	}

	if flg&flgFHCRC != 0 {
		if _, err := d.br.ReadU16LE(); err != nil {
			return err
		}
	}

	d.crc = 0
	d.isize = 0
	d.kind = stateBlockHeader
	return nil
}

func (d *Decoder) readMemberTrailer() error {
	d.br.DiscardPartialByte()

	wantCRC, err := d.br.ReadU32LE()
	if err != nil {
		return err
	}
	wantISize, err := d.br.ReadU32LE()
	if err != nil {
		return err
	}
	if wantCRC != d.crc {
		return d.corrupt("crc32 mismatch: header says 0x%08x, computed 0x%08x", wantCRC, d.crc)
	}
	if wantISize != d.isize {
		return d.corrupt("isize mismatch: header says %d, computed %d", wantISize, d.isize)
	}

	d.kind = stateMemberHeader
	return nil
}

func (d *Decoder) readBlockHeader() error {
	bfinal, err := d.br.ReadBits(1)
	if err != nil {
		return err
	}
	btype, err := d.br.ReadBits(2)
	if err != nil {
		return err
	}
	isFinal := bfinal == 1

	switch btype {
	case 0:
		return d.readStoredBlockHeader(isFinal)
	case 1:
		return d.corrupt("fixed-Huffman blocks (BTYPE=1) are not supported")
	case 2:
		return d.readDynamicHuffmanHeader(isFinal)
	default:
		return d.corrupt("reserved BTYPE %d", btype)
	}
}

func (d *Decoder) readStoredBlockHeader(isFinal bool) error {
	d.br.DiscardPartialByte()

	length, err := d.br.ReadU16LE()
	if err != nil {
		return err
	}
	nlength, err := d.br.ReadU16LE()
	if err != nil {
		return err
	}
	if length != ^nlength {
		return d.corrupt("stored block LEN (%d) is not the one's complement of NLEN (%d)", length, nlength)
	}

	d.kind = stateNoCompressionBlock
	d.remaining = int(length)
	d.isFinal = isFinal
	return nil
}

func (d *Decoder) readNoCompressionBlock(dst []byte) (int, error) {
	canRead := min(d.remaining, len(dst))
	canRead = min(canRead, window.Size)

	if err := d.br.ReadExact(dst[:canRead]); err != nil {
		return 0, err
	}
	if err := d.emit(dst[:canRead]); err != nil {
		return 0, err
	}

	d.remaining -= canRead
	if d.remaining == 0 {
		if d.isFinal {
			d.kind = stateMemberTrailer
		} else {
			d.kind = stateBlockHeader
		}
	} else {
		d.kind = stateNoCompressionBlock
	}
	return canRead, nil
}

func (d *Decoder) readDynamicHuffmanHeader(isFinal bool) error {
	hlit, err := d.br.ReadBits(5)
	if err != nil {
		return err
	}
	nlit := int(hlit) + 257

	hdist, err := d.br.ReadBits(5)
	if err != nil {
		return err
	}
	ndist := int(hdist) + 1

	hclen, err := d.br.ReadBits(4)
	if err != nil {
		return err
	}
	nclen := int(hclen) + 4

	clLengths := make([]int, len(codeLengthOrder))
	for i := 0; i < nclen; i++ {
		v, err := d.br.ReadBits(3)
		if err != nil {
			return err
		}
		clLengths[codeLengthOrder[i]] = int(v)
	}

	clTree, err := huffman.New(clLengths)
	if err != nil {
		return d.corrupt("invalid code-length alphabet: %v", err)
	}

	allLengths := make([]int, nlit+ndist)
	i := 0
	prevLen := 0
	literalSeen := false
	for i < len(allLengths) {
		sym, err := clTree.Decode(d.br)
		if err != nil {
			return wrapDecodeErr(d, err, "failed to decode code-length symbol")
		}

		switch {
		case sym <= 15:
			allLengths[i] = sym
			prevLen = sym
			literalSeen = true
			i++

		case sym == 16:
			if !literalSeen {
				return d.corrupt("repeat-previous code (16) before any literal length was produced")
			}
			n, err := d.br.ReadBits(2)
			if err != nil {
				return err
			}
			count := int(n) + 3
			if i+count > len(allLengths) {
				return d.corrupt("repeat count overruns the expected %d code lengths", len(allLengths))
			}
			for j := 0; j < count; j++ {
				allLengths[i] = prevLen
				i++
			}

		case sym == 17:
			n, err := d.br.ReadBits(3)
			if err != nil {
				return err
			}
			count := int(n) + 3
			if i+count > len(allLengths) {
				return d.corrupt("repeat count overruns the expected %d code lengths", len(allLengths))
			}
			for j := 0; j < count; j++ {
				allLengths[i] = 0
				i++
			}
			prevLen = 0

		case sym == 18:
			n, err := d.br.ReadBits(7)
			if err != nil {
				return err
			}
			count := int(n) + 11
			if i+count > len(allLengths) {
				return d.corrupt("repeat count overruns the expected %d code lengths", len(allLengths))
			}
			for j := 0; j < count; j++ {
				allLengths[i] = 0
				i++
			}
			prevLen = 0

		default:
			return d.corrupt("unexpected code-length symbol %d", sym)
		}
	}

	litlenTree, err := huffman.New(allLengths[:nlit])
	if err != nil {
		return d.corrupt("invalid literal/length code: %v", err)
	}
	distTree, err := huffman.New(allLengths[nlit:])
	if err != nil {
		return d.corrupt("invalid distance code: %v", err)
	}

	d.litlen = litlenTree
	d.distance = distTree
	d.isFinal = isFinal
	d.kind = stateHuffmanBlock
	return nil
}

func wrapDecodeErr(d *Decoder, err error, msg string) error {
	if err == huffman.ErrFailedToDecode {
		return d.corrupt("%s", msg)
	}
	return err
}

func (d *Decoder) readHuffmanBlock(dst []byte) (int, error) {
	pos := 0
	for pos < len(dst) {
		sym, err := d.litlen.Decode(d.br)
		if err != nil {
			return pos, wrapDecodeErr(d, err, "failed to decode literal/length symbol")
		}

		switch {
		case sym < endBlockMarker:
			b := byte(sym)
			dst[pos] = b
			pos++
			d.emitByte(b)

		case sym == endBlockMarker:
			if d.isFinal {
				d.kind = stateMemberTrailer
			} else {
				d.kind = stateBlockHeader
			}
			return pos, nil

		case sym <= maxLitLenSymbol:
			n := lengthExtraBits[sym-lengthCodesStart]
			extra, err := d.br.ReadBits(n)
			if err != nil {
				return pos, err
			}
			length := lengthBase[sym-lengthCodesStart] + int(extra)

			distSym, err := d.distance.Decode(d.br)
			if err != nil {
				return pos, wrapDecodeErr(d, err, "failed to decode distance symbol")
			}
			if distSym < 0 || distSym >= len(distanceBase) {
				return pos, d.corrupt("invalid distance symbol %d", distSym)
			}
			dn := distanceExtraBits[distSym]
			dextra, err := d.br.ReadBits(dn)
			if err != nil {
				return pos, err
			}
			dist := distanceBase[distSym] + int(dextra)
			if dist > window.Size {
				return pos, d.corrupt("match distance %d exceeds window size %d", dist, window.Size)
			}

			d.length = length
			d.distCopy = dist
			d.kind = stateHuffmanBlockMatch
			return pos, nil

		default:
			return pos, d.corrupt("invalid literal/length symbol %d", sym)
		}
	}

	d.kind = stateHuffmanBlock
	return pos, nil
}

func (d *Decoder) readHuffmanBlockMatch(dst []byte) (int, error) {
	chunk := min(len(dst), d.length, d.distCopy, window.Size)

	if err := d.win.CopyBack(dst[:chunk], d.distCopy); err != nil {
		return 0, &InvalidArgumentError{Msg: err.Error()}
	}
	if err := d.emit(dst[:chunk]); err != nil {
		return 0, err
	}

	d.length -= chunk
	if d.length == 0 {
		d.kind = stateHuffmanBlock
	} else {
		d.kind = stateHuffmanBlockMatch
	}
	return chunk, nil
}

