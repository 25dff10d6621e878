// Package storage persists the single secret used for silent login.
package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
)

// TokenKey 凭据的固定键名
const TokenKey = "fiora-for-vscode.token"

// ErrClosed is returned by a store used after Close.
var ErrClosed = errors.New("storage closed")

func encodeSecret(secret string) string {
	return base64.StdEncoding.EncodeToString([]byte(secret))
}

func decodeSecret(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode stored secret: %w", err)
	}
	return string(raw), nil
}

// MemoryStore keeps the secret in process memory, suitable for tests and
// one-shot tools.
type MemoryStore struct {
	mu     sync.RWMutex
	secret string
	set    bool
}

// NewMemoryStore returns a store preloaded with secret when it is not empty.
func NewMemoryStore(secret string) *MemoryStore {
	return &MemoryStore{secret: secret, set: secret != ""}
}

// Get 读取凭据
func (s *MemoryStore) Get(ctx context.Context) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.secret, s.set, nil
}

// Save 保存凭据
func (s *MemoryStore) Save(ctx context.Context, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secret = secret
	s.set = true
	return nil
}
