package postgres

import (
	"context"
	"encoding/binary"
	"fmt"

	"stockval/internal/core/id"
	"stockval/internal/domain/valuation"
)

// Compile-time check.
var _ valuation.WarehouseLocker = (*AdvisoryLocker)(nil)

// AdvisoryLocker serializes report generation per warehouse using
// transaction-scoped advisory locks. The lock is released automatically
// on commit or rollback, so a crashed generation never leaves the
// warehouse locked.
type AdvisoryLocker struct {
	txManager *TxManager
}

// NewAdvisoryLocker creates a warehouse locker bound to the transaction manager.
func NewAdvisoryLocker(txManager *TxManager) *AdvisoryLocker {
	return &AdvisoryLocker{txManager: txManager}
}

// warehouseLockClass namespaces valuation locks within the advisory key space.
const warehouseLockClass = int32(0x5641) // "VA"

// LockWarehouse blocks until the advisory lock for the warehouse is acquired.
// Must be called inside a transaction; the key folds the warehouse UUID
// down to 32 bits.
func (l *AdvisoryLocker) LockWarehouse(ctx context.Context, warehouseID id.ID) error {
	tx := l.txManager.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("LockWarehouse requires transaction context")
	}

	b := [16]byte(warehouseID)
	key := int32(binary.BigEndian.Uint32(b[0:4]) ^ binary.BigEndian.Uint32(b[4:8]) ^
		binary.BigEndian.Uint32(b[8:12]) ^ binary.BigEndian.Uint32(b[12:16]))

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1, $2)", warehouseLockClass, key); err != nil {
		return fmt.Errorf("acquire warehouse lock: %w", err)
	}
	return nil
}
