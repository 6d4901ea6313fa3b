package database

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// TxKey is the context key carrying the active transaction.
type TxKey struct{}

type commitHooksKey struct{}

// commitHooks collects work that must only happen once the outermost
// transaction has committed.
type commitHooks struct {
	mu  sync.Mutex
	fns []func(context.Context)
}

func (h *commitHooks) add(fn func(context.Context)) {
	h.mu.Lock()
	h.fns = append(h.fns, fn)
	h.mu.Unlock()
}

func (h *commitHooks) run(ctx context.Context) {
	h.mu.Lock()
	fns := h.fns
	h.fns = nil
	h.mu.Unlock()
	for _, fn := range fns {
		fn(ctx)
	}
}

// TxManager scopes repository work to a transaction carried in the context.
type TxManager struct {
	primary *gorm.DB
	replica *gorm.DB
}

// NewTxManager wraps the primary and optional replica connections.
func NewTxManager(primary, replica *gorm.DB) *TxManager {
	return &TxManager{primary: primary, replica: replica}
}

// GetTx returns the transaction stored in ctx, if any.
func (m *TxManager) GetTx(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(TxKey{}).(*gorm.DB)
	return tx, ok
}

// WithinTransaction runs fn inside a transaction. When ctx already carries
// one, fn joins it. fn's error rolls back the transaction and discards its
// AfterCommit hooks.
func (m *TxManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := m.GetTx(ctx); ok {
		return fn(ctx)
	}
	hooks := &commitHooks{}
	err := m.primary.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := context.WithValue(context.WithValue(ctx, TxKey{}, tx), commitHooksKey{}, hooks)
		return fn(txCtx)
	})
	if err != nil {
		return err
	}
	hooks.run(ctx)
	return nil
}

// AfterCommit defers fn until the transaction in ctx commits. Without a
// transaction fn runs immediately.
func (m *TxManager) AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if hooks, ok := ctx.Value(commitHooksKey{}).(*commitHooks); ok {
		hooks.add(fn)
		return
	}
	fn(ctx)
}

// Conn returns the handle writes must use: the transaction in ctx or the primary.
func (m *TxManager) Conn(ctx context.Context) *gorm.DB {
	if tx, ok := m.GetTx(ctx); ok {
		return tx.WithContext(ctx)
	}
	return m.primary.WithContext(ctx)
}

// ReadConn returns the handle reads should use. Inside a transaction that is
// the transaction; otherwise the replica, falling back to the primary.
func (m *TxManager) ReadConn(ctx context.Context) *gorm.DB {
	if tx, ok := m.GetTx(ctx); ok {
		return tx.WithContext(ctx)
	}
	if m.replica != nil {
		return m.replica.WithContext(ctx)
	}
	return m.primary.WithContext(ctx)
}

// Primary exposes the primary connection for health checks and migrations.
func (m *TxManager) Primary() *gorm.DB { return m.primary }
