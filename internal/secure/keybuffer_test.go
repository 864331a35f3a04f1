package secure

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyBufferWithKey(t *testing.T) {
	t.Parallel()

	expected := bytes.Repeat([]byte{0xA5}, 32)
	buf, err := NewKeyBuffer(append([]byte(nil), expected...))
	require.NoError(t, err)
	defer buf.Destroy()

	assert.Equal(t, 32, buf.Size())

	var seen []byte
	err = buf.WithKey(func(key []byte) error {
		seen = append([]byte(nil), key...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, expected, seen)
}

func TestKeyBufferPropagatesCallbackError(t *testing.T) {
	t.Parallel()

	buf, err := NewKeyBuffer([]byte("0123456789abcdef"))
	require.NoError(t, err)
	defer buf.Destroy()

	boom := errors.New("boom")
	assert.ErrorIs(t, buf.WithKey(func([]byte) error { return boom }), boom)
}

func TestKeyBufferRejectsEmptyKey(t *testing.T) {
	t.Parallel()

	_, err := NewKeyBuffer(nil)
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestKeyBufferDestroy(t *testing.T) {
	t.Parallel()

	buf, err := NewKeyBuffer([]byte("key-material"))
	require.NoError(t, err)

	buf.Destroy()
	buf.Destroy()

	err = buf.WithKey(func([]byte) error {
		t.Fatal("callback must not run after destroy")
		return nil
	})
	assert.ErrorIs(t, err, ErrDestroyed)
}

func TestKeyBufferConcurrentUse(t *testing.T) {
	t.Parallel()

	buf, err := NewKeyBuffer(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	defer buf.Destroy()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = buf.WithKey(func(key []byte) error {
				assert.Len(t, key, 32)
				return nil
			})
		}()
	}
	wg.Wait()
}
