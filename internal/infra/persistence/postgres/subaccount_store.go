package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/perpindex/internal/domain/ledger"
	"github.com/coachpo/perpindex/internal/identity"
)

const (
	subaccountUpsertSQL = `
INSERT INTO subaccounts (id, address, subaccount_number, updated_at, updated_at_height)
VALUES (@id, @address, @subaccount_number, @updated_at, @updated_at_height)
ON CONFLICT (id) DO UPDATE SET
    updated_at = EXCLUDED.updated_at,
    updated_at_height = EXCLUDED.updated_at_height;
`

	subaccountSelectSQL = `
SELECT s.id::text, s.address, s.subaccount_number, s.updated_at, s.updated_at_height
FROM subaccounts s
WHERE s.id = $1;
`
)

// SubaccountStore persists subaccount rows.
type SubaccountStore struct {
	pools
}

var _ ledger.SubaccountReader = (*SubaccountStore)(nil)

// NewSubaccountStore constructs a SubaccountStore. A nil replica reads from primary.
func NewSubaccountStore(primary, replica *pgxpool.Pool) *SubaccountStore {
	return &SubaccountStore{pools: newPools("subaccount store", primary, replica)}
}

// Upsert writes sub, deriving its id from (address, number) when unset.
func (s *SubaccountStore) Upsert(ctx context.Context, sub ledger.Subaccount) (ledger.Subaccount, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return ledger.Subaccount{}, err
	}
	if sub.ID == uuid.Nil {
		sub.ID = identity.Subaccount(sub.Address, sub.SubaccountNumber)
	}
	_, err = pool.Exec(ctx, subaccountUpsertSQL, pgx.NamedArgs{
		"id":                sub.ID.String(),
		"address":           sub.Address,
		"subaccount_number": int64(sub.SubaccountNumber),
		"updated_at":        sub.UpdatedAt.UTC(),
		"updated_at_height": sub.UpdatedAtHeight,
	})
	s.record(ctx, "upsert", err)
	if err != nil {
		return ledger.Subaccount{}, fmt.Errorf("subaccount store: upsert subaccount: %w", err)
	}
	return sub, nil
}

// FindByID returns the subaccount with id, or nil when absent.
func (s *SubaccountStore) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Subaccount, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return nil, err
	}
	var (
		sub    ledger.Subaccount
		rawID  string
		number int64
	)
	err = pool.QueryRow(ctx, subaccountSelectSQL, id.String()).
		Scan(&rawID, &sub.Address, &number, &sub.UpdatedAt, &sub.UpdatedAtHeight)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("subaccount store: find subaccount: %w", err)
	}
	if sub.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("subaccount store: parse id: %w", err)
	}
	sub.SubaccountNumber = uint32(number)
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	return &sub, nil
}
