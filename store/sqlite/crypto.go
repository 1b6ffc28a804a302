package sqlite

import (
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"github.com/voidstore/storesync/store"
)

const (
	scryptN   = 1 << 15
	scryptR   = 8
	scryptP   = 1
	saltBytes = 16
	checkText = "storesync"
)

type sealer struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
}

// loadSealer derives the content key from password, creating the salt and
// the password check on first use. A password that does not open the
// check value is store.ErrWrongChecksum.
func loadSealer(db *sql.DB, password string) (*sealer, error) {
	salt, err := metaValue(db, "salt")
	if err != nil {
		return nil, err
	}
	fresh := salt == nil
	if fresh {
		salt = make([]byte, saltBytes)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("salt: %w", err)
		}
	}

	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	s := &sealer{aead: aead}

	if fresh {
		nonce, sealed, err := s.seal([]byte(checkText))
		if err != nil {
			return nil, err
		}
		if err := setMeta(db, "salt", salt); err != nil {
			return nil, err
		}
		if err := setMeta(db, "check", append(nonce, sealed...)); err != nil {
			return nil, err
		}
		return s, nil
	}

	check, err := metaValue(db, "check")
	if err != nil {
		return nil, err
	}
	ns := aead.NonceSize()
	if len(check) < ns {
		return nil, store.ErrPartCorrupted
	}
	if _, err := s.open(check[:ns], check[ns:]); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *sealer) seal(plain []byte) (nonce, sealed []byte, err error) {
	nonce = make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("nonce: %w", err)
	}
	return nonce, s.aead.Seal(nil, nonce, plain, nil), nil
}

func (s *sealer) open(nonce, sealed []byte) ([]byte, error) {
	if len(nonce) != s.aead.NonceSize() {
		return nil, store.ErrPartCorrupted
	}
	plain, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, store.ErrWrongChecksum
	}
	return plain, nil
}

func metaValue(db *sql.DB, key string) ([]byte, error) {
	var v string
	err := db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read meta %s: %w", key, err)
	}
	b, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("decode meta %s: %w", key, store.ErrPartCorrupted)
	}
	return b, nil
}

func setMeta(db *sql.DB, key string, value []byte) error {
	_, err := db.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, base64.StdEncoding.EncodeToString(value))
	if err != nil {
		return fmt.Errorf("write meta %s: %w", key, err)
	}
	return nil
}
