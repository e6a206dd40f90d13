package window

import (
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestWriteAndCopyBackSimple(t *testing.T) {
	b := New()
	_, err := b.Write([]byte("abcdef"))
	assert.NilError(t, err)

	dst := make([]byte, 3)
	err = b.CopyBack(dst, 6)
	assert.NilError(t, err)
	assert.Check(t, is.DeepEqual(dst, []byte("abc")))
}

func TestCopyBackSelfOverlapping(t *testing.T) {
	// distance (1) < requested length models a run-length repeat: each
	// byte copied becomes visible to the next chunk via Write.
	b := New()
	_, err := b.Write([]byte("a"))
	assert.NilError(t, err)

	for i := 0; i < 4; i++ {
		dst := make([]byte, 1)
		err := b.CopyBack(dst, 1)
		assert.NilError(t, err)
		_, err = b.Write(dst)
		assert.NilError(t, err)
	}

	got := make([]byte, 4)
	err = b.CopyBack(got, 4)
	assert.NilError(t, err)
	assert.Check(t, is.DeepEqual(got, []byte("aaaa")))
}

func TestWriteWraparound(t *testing.T) {
	b := New()
	filler := make([]byte, Size-2)
	_, err := b.Write(filler)
	assert.NilError(t, err)

	_, err = b.Write([]byte("abcd"))
	assert.NilError(t, err)

	dst := make([]byte, 4)
	err = b.CopyBack(dst, 4)
	assert.NilError(t, err)
	assert.Check(t, is.DeepEqual(dst, []byte("abcd")))
}

func TestCopyBackRejectsOutOfRange(t *testing.T) {
	b := New()
	_, err := b.Write([]byte("ab"))
	assert.NilError(t, err)

	err = b.CopyBack(make([]byte, 3), 2)
	assert.Check(t, err != nil)

	err = b.CopyBack(make([]byte, 1), Size+1)
	assert.Check(t, err != nil)
}

func TestWriteRejectsOversizedInput(t *testing.T) {
	b := New()
	_, err := b.Write(make([]byte, Size+1))
	assert.Check(t, err != nil)
}
