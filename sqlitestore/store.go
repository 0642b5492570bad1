// Package sqlitestore persists the cost-basis ledger in a SQLite database.
// It mirrors the semantics of the in-memory store: idempotent lot creation,
// copies on read, and all-or-nothing allocation commits (one SQL transaction
// per batch).
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	costbasis "github.com/darken51/costbasis"
)

const schema = `
CREATE TABLE IF NOT EXISTS lots (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	token TEXT NOT NULL,
	chain TEXT NOT NULL,
	wallet TEXT NOT NULL DEFAULT '',
	acquired_on TEXT NOT NULL,
	method TEXT NOT NULL,
	unit_price_usd TEXT NOT NULL,
	local_price TEXT,
	original_amount TEXT NOT NULL,
	remaining_amount TEXT NOT NULL,
	disposed_amount TEXT NOT NULL,
	source_tx_hash TEXT NOT NULL DEFAULT '',
	source_batch_id TEXT NOT NULL DEFAULT '',
	manual INTEGER NOT NULL DEFAULT 0,
	verified INTEGER NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_lots_source
	ON lots(owner_id, source_tx_hash, token, chain) WHERE source_tx_hash <> '';
CREATE INDEX IF NOT EXISTS idx_lots_owner_asset ON lots(owner_id, token, chain);

CREATE TABLE IF NOT EXISTS disposals (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	owner_id TEXT NOT NULL,
	lot_id TEXT NOT NULL,
	token TEXT NOT NULL,
	chain TEXT NOT NULL,
	disposed_on TEXT NOT NULL,
	unit_price_usd TEXT NOT NULL,
	amount TEXT NOT NULL,
	cost_basis_per_unit TEXT NOT NULL,
	total_cost_basis TEXT NOT NULL,
	total_proceeds TEXT NOT NULL,
	gain_loss TEXT NOT NULL,
	holding_days INTEGER NOT NULL,
	long_term INTEGER NOT NULL,
	local_proceeds TEXT,
	local_basis TEXT,
	tx_hash TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_disposals_owner ON disposals(owner_id);

CREATE TABLE IF NOT EXISTS wash_sale_violations (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	owner_id TEXT NOT NULL,
	disposal_id TEXT NOT NULL,
	repurchase_lot_id TEXT NOT NULL,
	repurchased_on TEXT NOT NULL,
	days_between INTEGER NOT NULL,
	disallowed_loss TEXT NOT NULL,
	adjusted_cost_basis TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_violations_owner ON wash_sale_violations(owner_id);
`

// Store is a SQLite-backed LotStore.
type Store struct {
	db    *sql.DB
	locks *costbasis.KeyedLock
	log   *slog.Logger
}

// Open opens (creating if needed) the database at path. Use ":memory:" for
// an ephemeral database.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}
	// The keyed allocation lock serializes writers; a single connection
	// keeps SQLite itself out of SQLITE_BUSY territory.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	log.Info("lot store opened", "path", path)
	return &Store{db: db, locks: costbasis.NewKeyedLock(), log: log}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Locks() *costbasis.KeyedLock { return s.locks }

func (s *Store) AddLot(ctx context.Context, lot *costbasis.Lot) (*costbasis.Lot, bool, error) {
	if err := lot.CheckInvariants(); err != nil {
		return nil, false, &costbasis.ValidationError{Field: "lot", Reason: err.Error()}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	if lot.SourceTxHash != "" {
		row := tx.QueryRowContext(ctx, lotColumns+`
			WHERE owner_id = ? AND source_tx_hash = ? AND token = ? AND chain = ?`,
			lot.OwnerID, lot.SourceTxHash, lot.Asset.Token, lot.Asset.Chain)
		existing, err := scanLot(row)
		if err == nil {
			// Replayed ingestion event: keep the stored lot untouched.
			return existing, false, tx.Commit()
		}
		if err != sql.ErrNoRows {
			return nil, false, err
		}
	}

	localPrice, err := marshalLocal(lot.LocalPrice)
	if err != nil {
		return nil, false, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO lots (id, owner_id, token, chain, wallet, acquired_on, method,
			unit_price_usd, local_price, original_amount, remaining_amount, disposed_amount,
			source_tx_hash, source_batch_id, manual, verified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lot.ID.String(), lot.OwnerID, lot.Asset.Token, lot.Asset.Chain, lot.Asset.Wallet,
		lot.AcquiredOn.String(), lot.Method.String(),
		lot.UnitPriceUSD.Decimal().String(), localPrice,
		lot.Original.String(), lot.Remaining.String(), lot.Disposed.String(),
		lot.SourceTxHash, lot.SourceBatchID, boolInt(lot.Manual), boolInt(lot.Verified))
	if err != nil {
		return nil, false, fmt.Errorf("insert lot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return lot.Clone(), true, nil
}

func (s *Store) Lot(ctx context.Context, id uuid.UUID) (*costbasis.Lot, error) {
	row := s.db.QueryRowContext(ctx, lotColumns+` WHERE id = ?`, id.String())
	l, err := scanLot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return l, err
}

func (s *Store) Available(ctx context.Context, owner string, asset costbasis.Asset, asOf costbasis.Date) ([]*costbasis.Lot, error) {
	return s.lots(ctx, `
		WHERE owner_id = ? AND token = ? AND chain = ?
			AND CAST(remaining_amount AS REAL) > 0 AND acquired_on <= ?
		ORDER BY acquired_on, id`,
		owner, asset.Token, asset.Chain, asOf.String())
}

func (s *Store) AcquiredWithin(ctx context.Context, owner string, asset costbasis.Asset, from, to costbasis.Date) ([]*costbasis.Lot, error) {
	return s.lots(ctx, `
		WHERE owner_id = ? AND token = ? AND chain = ?
			AND acquired_on >= ? AND acquired_on <= ?
		ORDER BY acquired_on, id`,
		owner, asset.Token, asset.Chain, from.String(), to.String())
}

func (s *Store) OpenLots(ctx context.Context, owner, token, chain string) ([]*costbasis.Lot, error) {
	return s.lots(ctx, `
		WHERE owner_id = ? AND CAST(remaining_amount AS REAL) > 0
			AND (? = '' OR token = ?) AND (? = '' OR chain = ?)
		ORDER BY acquired_on, id`,
		owner, token, token, chain, chain)
}

func (s *Store) DeleteLot(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM lots WHERE id = ? AND remaining_amount = original_amount`, id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &costbasis.ValidationError{Field: "lot", Reason: "lot is unknown or has disposals and cannot be deleted"}
	}
	return nil
}

// Commit applies the whole allocation in one SQL transaction. The caller
// holds the asset's allocation lock, so reads inside the transaction see a
// stable snapshot of the asset's lots.
func (s *Store) Commit(ctx context.Context, batch *costbasis.AllocationBatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, d := range batch.Draws {
		row := tx.QueryRowContext(ctx,
			`SELECT remaining_amount, disposed_amount FROM lots WHERE id = ?`, d.LotID.String())
		var remainingStr, disposedStr string
		if err := row.Scan(&remainingStr, &disposedStr); err != nil {
			if err == sql.ErrNoRows {
				return &costbasis.ValidationError{Field: "draw", Reason: "unknown lot id " + d.LotID.String()}
			}
			return err
		}
		remaining, err := costbasis.ParseQuantity(remainingStr)
		if err != nil {
			return fmt.Errorf("corrupt remaining_amount on lot %s: %w", d.LotID, err)
		}
		disposed, err := costbasis.ParseQuantity(disposedStr)
		if err != nil {
			return fmt.Errorf("corrupt disposed_amount on lot %s: %w", d.LotID, err)
		}
		if d.Amount.GreaterThan(remaining) {
			return &costbasis.InsufficientLotError{LotID: d.LotID, Requested: d.Amount, Remaining: remaining}
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE lots SET remaining_amount = ?, disposed_amount = ? WHERE id = ?`,
			remaining.Sub(d.Amount).String(), disposed.Add(d.Amount).String(), d.LotID.String())
		if err != nil {
			return err
		}
	}

	for _, a := range batch.Adjustments {
		res, err := tx.ExecContext(ctx,
			`UPDATE lots SET unit_price_usd = ? WHERE id = ?`,
			a.NewUnitPriceUSD.Decimal().String(), a.LotID.String())
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return &costbasis.ValidationError{Field: "adjustment", Reason: "unknown lot id " + a.LotID.String()}
		}
	}

	for _, d := range batch.Disposals {
		localProceeds, err := marshalLocal(d.LocalProceeds)
		if err != nil {
			return err
		}
		localBasis, err := marshalLocal(d.LocalBasis)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO disposals (id, owner_id, lot_id, token, chain, disposed_on,
				unit_price_usd, amount, cost_basis_per_unit, total_cost_basis,
				total_proceeds, gain_loss, holding_days, long_term,
				local_proceeds, local_basis, tx_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID.String(), d.OwnerID, d.LotID.String(), d.Asset.Token, d.Asset.Chain,
			d.DisposedOn.String(), d.UnitPriceUSD.Decimal().String(), d.Amount.String(),
			d.CostBasisPerUnit.Decimal().String(), d.TotalCostBasis.Decimal().String(),
			d.TotalProceeds.Decimal().String(), d.GainLoss.Decimal().String(),
			d.HoldingDays, boolInt(d.LongTerm), localProceeds, localBasis, d.TxHash)
		if err != nil {
			return fmt.Errorf("insert disposal: %w", err)
		}
	}

	for _, v := range batch.Violations {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO wash_sale_violations (id, owner_id, disposal_id, repurchase_lot_id,
				repurchased_on, days_between, disallowed_loss, adjusted_cost_basis)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			v.ID.String(), v.OwnerID, v.DisposalID.String(), v.RepurchaseLotID.String(),
			v.RepurchasedOn.String(), v.DaysBetween,
			v.DisallowedLoss.Decimal().String(), v.AdjustedCostBasis.Decimal().String())
		if err != nil {
			return fmt.Errorf("insert violation: %w", err)
		}
	}

	return tx.Commit()
}

var _ costbasis.LotStore = (*Store)(nil)
