package contentstore

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/defensechain/defensechain/storage/model"
)

// Memory is an in-process Client for development and tests. It can be
// switched offline to simulate an unreachable storage network.
type Memory struct {
	mu      sync.RWMutex
	blobs   map[string][]byte
	offline bool
	uploads int
}

// NewMemory returns an empty Memory store
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

// SetOffline switches the simulated connectivity
func (m *Memory) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// Uploads returns the number of successful uploads
func (m *Memory) Uploads() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.uploads
}

func (m *Memory) checkOnline() error {
	if m.offline {
		return unavailable(errors.New("connection refused"))
	}
	return nil
}

// Upload implements Client
func (m *Memory) Upload(_ context.Context, data []byte, filename string) (*UploadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOnline(); err != nil {
		return nil, err
	}
	addr, err := RawAddress(data)
	if err != nil {
		return nil, err
	}
	m.blobs[addr] = append([]byte(nil), data...)
	m.uploads++
	return &UploadResult{
		Address: addr,
		Name:    filename,
		Size:    len(data),
	}, nil
}

// CalculateAddress implements Client
func (m *Memory) CalculateAddress(_ context.Context, data []byte) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOnline(); err != nil {
		return "", err
	}
	return RawAddress(data)
}

// Download implements Client
func (m *Memory) Download(_ context.Context, address string) ([]byte, error) {
	c, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err = m.checkOnline(); err != nil {
		return nil, err
	}
	data, ok := m.blobs[c.String()]
	if !ok {
		return nil, model.NotFoundErrorFmt("content not found: %s", address)
	}
	return append([]byte(nil), data...), nil
}

// HealthCheck implements Client
func (m *Memory) HealthCheck(context.Context) (*Health, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOnline(); err != nil {
		return nil, err
	}
	return &Health{
		Status: "ok",
		PeerID: "memory",
	}, nil
}
