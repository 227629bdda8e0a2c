package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// envelopeDelimiter はエンベロープ内のIVと暗号文の区切り文字。
const envelopeDelimiter = ":"

// ErrDecryption はエンベロープの形式不正、または鍵の不一致で復号できないことを示す。
var ErrDecryption = errors.New("token decryption failed")

// TokenCipher は委任アクセストークンを AES-256-CBC で暗号化・復号する。
// エンベロープ形式は hex(iv) + ":" + hex(ciphertext)。
// IVは暗号化のたびに生成するため、同じ平文でも毎回異なるエンベロープになる。
// 鍵は生成時に一度だけ受け取り、以後変更しない。
type TokenCipher struct {
	block cipher.Block
	rand  io.Reader
}

// NewTokenCipher は16進エンコードされた32バイト鍵からTokenCipherを生成する。
func NewTokenCipher(hexKey string) (*TokenCipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid encryption key length: got %d bytes, want 32", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	return &TokenCipher{block: block, rand: rand.Reader}, nil
}

// Encrypt は平文のトークンを暗号化し、エンベロープを返す。
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(ciphertext, padded)

	return hex.EncodeToString(iv) + envelopeDelimiter + hex.EncodeToString(ciphertext), nil
}

// Decrypt はエンベロープを復号して平文を返す。
// 形式不正、パディング不正、UTF-8として不正な平文（鍵の不一致）は
// すべて ErrDecryption をラップしたエラーになる。
func (c *TokenCipher) Decrypt(envelope string) (string, error) {
	parts := strings.Split(envelope, envelopeDelimiter)
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: malformed envelope", ErrDecryption)
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: invalid IV encoding", ErrDecryption)
	}
	if len(iv) != aes.BlockSize {
		return "", fmt.Errorf("%w: invalid IV length %d", ErrDecryption, len(iv))
	}

	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: invalid ciphertext encoding", ErrDecryption)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: invalid ciphertext length %d", ErrDecryption, len(ciphertext))
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plain, ciphertext)

	unpadded, err := pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	if !utf8.Valid(unpadded) {
		return "", fmt.Errorf("%w: plaintext is not valid UTF-8", ErrDecryption)
	}

	return string(unpadded), nil
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 {
		return nil, errors.New("empty plaintext")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, errors.New("invalid padding")
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return b[:len(b)-n], nil
}
