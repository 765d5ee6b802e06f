package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	storageports "kilometers.ai/authclient/internal/core/ports/storage"
)

const stateFileName = ".auth_state"

// SecureFileStore implements a file-based key-value store with encryption.
// All keys live in one AES-GCM encrypted JSON document.
type SecureFileStore struct {
	path       string
	encryptKey []byte
	mu         sync.RWMutex
}

// NewSecureFileStore creates the store under dir, creating the directory if needed
func NewSecureFileStore(dir string) (*SecureFileStore, error) {
	// Expand home directory if needed
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, dir[2:])
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	return &SecureFileStore{
		path:       filepath.Join(dir, stateFileName),
		encryptKey: generateEncryptionKey(),
	}, nil
}

// Path returns the location of the encrypted state file
func (s *SecureFileStore) Path() string {
	return s.path
}

func (s *SecureFileStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values, err := s.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (s *SecureFileStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		// A corrupt or foreign file is replaced rather than blocking new credentials
		values = make(map[string]string)
	}
	values[key] = value
	return s.save(values)
}

func (s *SecureFileStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)

	if len(values) == 0 {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove state file: %w", err)
		}
		return nil
	}
	return s.save(values)
}

func (s *SecureFileStore) load() (map[string]string, error) {
	values := make(map[string]string)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	decrypted, err := s.decrypt(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt state: %w", err)
	}
	if err := json.Unmarshal(decrypted, &values); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return values, nil
}

func (s *SecureFileStore) save(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	encrypted, err := s.encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt state: %w", err)
	}

	// Write to file with restricted permissions
	if err := os.WriteFile(s.path, encrypted, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

func (s *SecureFileStore) encrypt(data []byte) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nonce, nonce, data, nil)
	return []byte(base64.StdEncoding.EncodeToString(ciphertext)), nil
}

func (s *SecureFileStore) decrypt(data []byte) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, err
	}

	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func (s *SecureFileStore) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.encryptKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// generateEncryptionKey derives a machine and user specific key
func generateEncryptionKey() []byte {
	hostname, _ := os.Hostname()
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME") // Windows
	}

	hash := sha256.Sum256([]byte(fmt.Sprintf("kmauth:%s:%s", hostname, user)))
	return hash[:]
}

var _ storageports.KeyValueStore = (*SecureFileStore)(nil)
