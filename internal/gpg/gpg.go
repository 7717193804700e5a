// Package gpg verifies detached OpenPGP signatures of release archives
// before they are uploaded.
package gpg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
)

const (
	maxKeyFileSize     = 1024 * 1024       // armored public keys are a few KB
	maxReleaseFileSize = 512 * 1024 * 1024 // wago rejects archives far below this
	maxSigFileSize     = 64 * 1024
	keyFileMode        = 0600 // Required file permissions for key files on Unix systems
)

var (
	ErrNilKeyRing   = errors.New("keyring cannot be nil")
	ErrEmptyKeyRing = errors.New("no keys in keyring")
	ErrNoKeysFound  = errors.New("no .asc keys found")
	ErrKeyExpired   = errors.New("key is expired")
	ErrBadSignature = errors.New("signature verification failed")
)

// KeyRing represents a collection of PGP keys for signature verification
type KeyRing interface {
	VerifyDetached(message []byte, signature []byte) error
	AddKey(key Key) error
	Fingerprints() []string
}

// Key represents a PGP public key
type Key interface {
	IsExpired() bool
	GetFingerprint() string
}

// RealKeyRing implements KeyRing using gopenpgp v2
type RealKeyRing struct {
	keyRing *crypto.KeyRing
}

// RealKey implements Key with actual PGP key data
type RealKey struct {
	pgpKey      *crypto.Key
	fingerprint string
}

// NewRealKeyRing creates an empty RealKeyRing. The underlying keyring is
// created when the first key is added.
func NewRealKeyRing() *RealKeyRing {
	return &RealKeyRing{}
}

// VerifyDetached checks signature over message. The signature may be armored
// or binary.
func (rk *RealKeyRing) VerifyDetached(message []byte, signature []byte) error {
	if rk.keyRing == nil {
		return ErrEmptyKeyRing
	}

	plainMessage := crypto.NewPlainMessage(message)

	pgpSignature, err := crypto.NewPGPSignatureFromArmored(string(signature))
	if err != nil {
		pgpSignature = crypto.NewPGPSignature(signature)
	}

	if err := rk.keyRing.VerifyDetached(plainMessage, pgpSignature, crypto.GetUnixTime()); err != nil {
		return fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	return nil
}

// AddKey adds a *RealKey to the keyring.
func (rk *RealKeyRing) AddKey(key Key) error {
	if key == nil {
		return fmt.Errorf("key cannot be nil")
	}

	realKey, ok := key.(*RealKey)
	if !ok {
		return fmt.Errorf("unsupported key type %T", key)
	}

	if rk.keyRing == nil {
		kr, err := crypto.NewKeyRing(realKey.pgpKey)
		if err != nil {
			return fmt.Errorf("failed to create keyring: %w", err)
		}
		rk.keyRing = kr
		return nil
	}

	if err := rk.keyRing.AddKey(realKey.pgpKey); err != nil {
		return fmt.Errorf("failed to add key to keyring: %w", err)
	}
	return nil
}

// Fingerprints lists the fingerprints of every key in the ring.
func (rk *RealKeyRing) Fingerprints() []string {
	if rk.keyRing == nil {
		return nil
	}
	keys := rk.keyRing.GetKeys()
	fps := make([]string, 0, len(keys))
	for _, k := range keys {
		fps = append(fps, k.GetFingerprint())
	}
	return fps
}

// NewRealKey parses an ASCII-armored public key.
func NewRealKey(armoredData string) (*RealKey, error) {
	if strings.TrimSpace(armoredData) == "" {
		return nil, fmt.Errorf("armored data cannot be empty")
	}

	pgpKey, err := crypto.NewKeyFromArmored(armoredData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PGP key: %w", err)
	}

	return &RealKey{
		pgpKey:      pgpKey,
		fingerprint: pgpKey.GetFingerprint(),
	}, nil
}

// IsExpired reports whether the primary key has expired.
func (rk *RealKey) IsExpired() bool {
	return rk.pgpKey.IsExpired()
}

// GetFingerprint returns the hex fingerprint of the key.
func (rk *RealKey) GetFingerprint() string {
	return rk.fingerprint
}

// SignatureFileFor returns the conventional detached signature path for a
// release archive, preferring "<file>.sig" over "<file>.asc".
func SignatureFileFor(dataFilePath string) (string, error) {
	for _, ext := range []string{".sig", ".asc"} {
		candidate := dataFilePath + ext
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no .sig or .asc signature found next to %s", dataFilePath)
}

// VerifyDetachedSignature verifies a detached signature file against the
// given data file using keyRing.
func VerifyDetachedSignature(keyRing KeyRing, dataFilePath string, sigFilePath string) error {
	if keyRing == nil {
		return ErrNilKeyRing
	}

	data, err := readBounded(dataFilePath, maxReleaseFileSize)
	if err != nil {
		return fmt.Errorf("failed to read data file: %w", err)
	}
	sig, err := readBounded(sigFilePath, maxSigFileSize)
	if err != nil {
		return fmt.Errorf("failed to read signature file: %w", err)
	}

	return keyRing.VerifyDetached(data, sig)
}

// LoadKeyRingFromPath loads ASCII-armored public keys from keysPath, which
// may be a single key file or a directory of .asc files.
func LoadKeyRingFromPath(keysPath string) (KeyRing, error) {
	info, err := os.Stat(keysPath)
	if err != nil {
		return nil, fmt.Errorf("failed to access keys path: %w", err)
	}

	var files []string
	if info.IsDir() {
		entries, err := os.ReadDir(keysPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read keys directory: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != ".asc" {
				continue
			}
			files = append(files, filepath.Join(keysPath, entry.Name()))
		}
	} else {
		files = []string{keysPath}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoKeysFound, keysPath)
	}

	keyRing := NewRealKeyRing()
	for _, path := range files {
		name := filepath.Base(path)
		if err := validateKeyFile(path); err != nil {
			return nil, fmt.Errorf("invalid key file '%s': %w", name, err)
		}

		keyData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}

		key, err := NewRealKey(string(keyData))
		if err != nil {
			return nil, fmt.Errorf("failed to parse key file '%s': %w", name, err)
		}
		if err := validateKey(key); err != nil {
			return nil, fmt.Errorf("invalid key in file '%s': %w", name, err)
		}
		if err := keyRing.AddKey(key); err != nil {
			return nil, err
		}
	}
	return keyRing, nil
}

func readBounded(path string, limit int64) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > limit {
		return nil, fmt.Errorf("%s exceeds maximum allowed size of %d bytes", path, limit)
	}
	return os.ReadFile(path)
}

// validateKeyFile checks if a key file has appropriate permissions and size
func validateKeyFile(filePath string) error {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("failed to access key file: %w", err)
	}

	if fileInfo.Size() > maxKeyFileSize {
		return fmt.Errorf("key file exceeds maximum allowed size of %d bytes", maxKeyFileSize)
	}

	perm := fileInfo.Mode().Perm()
	if perm != keyFileMode && perm != 0644 {
		return fmt.Errorf("key file has incorrect permissions. Expected %o or 0644, got %o", keyFileMode, perm)
	}

	return nil
}

func validateKey(key Key) error {
	if key == nil {
		return fmt.Errorf("key is nil")
	}
	if key.IsExpired() {
		return ErrKeyExpired
	}
	return nil
}
