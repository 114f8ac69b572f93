// Package cipherblock wraps a fixed-key-schedule AES-128 block cipher for
// the wireless link's packet encryption. It is a thin pass-through: key
// schedule once at init, then single 16-byte block operations.
package cipherblock

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

// BlockSize is the cipher block size in bytes.
const BlockSize = 16

// Common errors
var (
	ErrKeySize        = errors.New("cipherblock: key must be 16 bytes")
	ErrNotInitialized = errors.New("cipherblock: key not initialized")
)

// Cipher holds the expanded key schedule. Init once at boot; the schedule
// is never rebuilt at runtime.
type Cipher struct {
	block cipher.Block
}

// Init expands the 16-byte key.
func (c *Cipher) Init(key []byte) error {
	if len(key) != BlockSize {
		return ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	c.block = block
	return nil
}

// Encrypt encrypts one block in place.
func (c *Cipher) Encrypt(block *[BlockSize]byte) error {
	if c.block == nil {
		return ErrNotInitialized
	}
	c.block.Encrypt(block[:], block[:])
	return nil
}

// Decrypt decrypts one block in place.
func (c *Cipher) Decrypt(block *[BlockSize]byte) error {
	if c.block == nil {
		return ErrNotInitialized
	}
	c.block.Decrypt(block[:], block[:])
	return nil
}
