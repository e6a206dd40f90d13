package gzflate

import (
	"errors"
	"fmt"
)

// CorruptInputError reports malformed gzip/DEFLATE input: a bad magic
// number, an unsupported CM/BTYPE, a stored-block LEN/~NLEN mismatch,
// an undecodable Huffman symbol, a length-sequence overrun, or a
// CRC-32/ISIZE trailer mismatch. It carries the byte offset from the
// start of the stream at which the problem was detected.
type CorruptInputError struct {
	Offset int64
	Msg    string
}

func (e *CorruptInputError) Error() string {
	return fmt.Sprintf("gzflate: corrupt input at offset %d: %s", e.Offset, e.Msg)
}

// ErrPoisoned is returned by Read once the decoder has hit any error:
// the stream's internal state is no longer trustworthy and the
// decoder must be discarded.
var ErrPoisoned = errors.New("gzflate: read from a decoder that previously errored")

// InvalidArgumentError reports API misuse rather than a malformed
// stream: a write or copy whose size exceeds the lookback window's
// bounds.
type InvalidArgumentError struct {
	Msg string
}

func (e *InvalidArgumentError) Error() string {
	return "gzflate: " + e.Msg
}
