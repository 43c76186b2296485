// Package relay is a reference implementation of the share relay: it keeps
// pending transactions until the acceptor answers and the initiator has read
// the answer.
package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kevinaaaquil/sharemybook/models"
)

var (
	ErrNotFound        = errors.New("share not found")
	ErrAlreadyAccepted = errors.New("share already accepted by another borrower")
)

// Store keeps shares by id.
type Store interface {
	Create(ctx context.Context, tx models.Transaction) error
	// Get returns the record and when it was created, or ErrNotFound.
	Get(ctx context.Context, shareID string) (*models.Transaction, time.Time, error)
	// Accept attaches borrower. Accepting again with the same borrower
	// returns the record unchanged; a different borrower gets ErrAlreadyAccepted.
	Accept(ctx context.Context, shareID string, borrower models.TransactionUser) (*models.Transaction, error)
	Delete(ctx context.Context, shareID string) error
	// Purge drops shares created before cutoff and reports how many went.
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

type memRecord struct {
	tx        models.Transaction
	createdAt time.Time
}

// MemoryStore keeps shares in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	shares map[string]memRecord
	now    func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{shares: make(map[string]memRecord), now: time.Now}
}

func (m *MemoryStore) Create(_ context.Context, tx models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shares[tx.ShareID] = memRecord{tx: tx, createdAt: m.now()}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, shareID string) (*models.Transaction, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.shares[shareID]
	if !ok {
		return nil, time.Time{}, ErrNotFound
	}
	tx := rec.tx
	return &tx, rec.createdAt, nil
}

func (m *MemoryStore) Accept(_ context.Context, shareID string, borrower models.TransactionUser) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.shares[shareID]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.tx.Borrower != nil && rec.tx.Borrower.UID != borrower.UID {
		return nil, ErrAlreadyAccepted
	}
	if rec.tx.Borrower == nil {
		rec.tx.Borrower = &borrower
		m.shares[shareID] = rec
	}
	tx := rec.tx
	return &tx, nil
}

func (m *MemoryStore) Delete(_ context.Context, shareID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.shares, shareID)
	return nil
}

func (m *MemoryStore) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rec := range m.shares {
		if rec.createdAt.Before(cutoff) {
			delete(m.shares, id)
			n++
		}
	}
	return n, nil
}
