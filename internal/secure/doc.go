// Package secure keeps key material out of ordinary Go memory.
//
// Keys loaded by the local key provider are sealed in a memguard enclave as
// soon as they are read. The plaintext key exists only inside a locked
// buffer for the duration of a single encrypt or decrypt call:
//
//	buf, err := secure.NewKeyBuffer(raw)
//	if err != nil {
//	    return err
//	}
//	defer buf.Destroy()
//
//	err = buf.WithKey(func(key []byte) error {
//	    aead, err := chacha20poly1305.NewX(key)
//	    ...
//	})
//
// The slice handed to WithKey is wiped when the callback returns and must
// not be retained.
//
// # Platform Behavior
//
// Memory locking varies by platform. Linux requires RLIMIT_MEMLOCK to be
// large enough; if locking fails memguard falls back to ordinary memory.
//
// Call memguard.Purge (or Purge in this package) before the process exits.
package secure
