package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	costbasis "github.com/darken51/costbasis"
)

const lotColumns = `
	SELECT id, owner_id, token, chain, wallet, acquired_on, method,
		unit_price_usd, local_price, original_amount, remaining_amount,
		disposed_amount, source_tx_hash, source_batch_id, manual, verified
	FROM lots`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLot(row rowScanner) (*costbasis.Lot, error) {
	var (
		id, owner, token, chain, wallet        string
		acquiredOn, method, unitPrice          string
		localPrice                             sql.NullString
		original, remaining, disposed          string
		txHash, batchID                        string
		manual, verified                       int
	)
	if err := row.Scan(&id, &owner, &token, &chain, &wallet, &acquiredOn, &method,
		&unitPrice, &localPrice, &original, &remaining, &disposed,
		&txHash, &batchID, &manual, &verified); err != nil {
		return nil, err
	}

	lot := &costbasis.Lot{
		OwnerID:       owner,
		Asset:         costbasis.Asset{Token: token, Chain: chain, Wallet: wallet},
		SourceTxHash:  txHash,
		SourceBatchID: batchID,
		Manual:        manual != 0,
		Verified:      verified != 0,
	}
	var err error
	if lot.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("corrupt lot id %q: %w", id, err)
	}
	if lot.AcquiredOn, err = costbasis.ParseDate(acquiredOn); err != nil {
		return nil, fmt.Errorf("corrupt acquired_on on lot %s: %w", id, err)
	}
	if lot.Method, err = costbasis.ParseAcquisitionMethod(method); err != nil {
		return nil, fmt.Errorf("corrupt method on lot %s: %w", id, err)
	}
	if lot.UnitPriceUSD, err = costbasis.ParseMoney(unitPrice, costbasis.USD); err != nil {
		return nil, fmt.Errorf("corrupt unit_price_usd on lot %s: %w", id, err)
	}
	if lot.Original, err = costbasis.ParseQuantity(original); err != nil {
		return nil, fmt.Errorf("corrupt original_amount on lot %s: %w", id, err)
	}
	if lot.Remaining, err = costbasis.ParseQuantity(remaining); err != nil {
		return nil, fmt.Errorf("corrupt remaining_amount on lot %s: %w", id, err)
	}
	if lot.Disposed, err = costbasis.ParseQuantity(disposed); err != nil {
		return nil, fmt.Errorf("corrupt disposed_amount on lot %s: %w", id, err)
	}
	if lot.LocalPrice, err = unmarshalLocal(localPrice); err != nil {
		return nil, fmt.Errorf("corrupt local_price on lot %s: %w", id, err)
	}
	return lot, nil
}

func (s *Store) lots(ctx context.Context, where string, args ...any) ([]*costbasis.Lot, error) {
	rows, err := s.db.QueryContext(ctx, lotColumns+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*costbasis.Lot
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) Disposals(ctx context.Context, owner string) ([]*costbasis.Disposal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, lot_id, token, chain, disposed_on, unit_price_usd,
			amount, cost_basis_per_unit, total_cost_basis, total_proceeds,
			gain_loss, holding_days, long_term, local_proceeds, local_basis, tx_hash
		FROM disposals WHERE owner_id = ? ORDER BY seq`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*costbasis.Disposal
	for rows.Next() {
		var (
			id, ownerID, lotID, token, chain, disposedOn           string
			unitPrice, amount, basisPerUnit, basis, proceeds, gain string
			holdingDays, longTerm                                  int
			localProceeds, localBasis                              sql.NullString
			txHash                                                 string
		)
		if err := rows.Scan(&id, &ownerID, &lotID, &token, &chain, &disposedOn,
			&unitPrice, &amount, &basisPerUnit, &basis, &proceeds, &gain,
			&holdingDays, &longTerm, &localProceeds, &localBasis, &txHash); err != nil {
			return nil, err
		}
		d := &costbasis.Disposal{
			OwnerID:     ownerID,
			Asset:       costbasis.Asset{Token: token, Chain: chain},
			HoldingDays: holdingDays,
			LongTerm:    longTerm != 0,
			TxHash:      txHash,
		}
		if d.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("corrupt disposal id %q: %w", id, err)
		}
		if d.LotID, err = uuid.Parse(lotID); err != nil {
			return nil, fmt.Errorf("corrupt lot_id on disposal %s: %w", id, err)
		}
		if d.DisposedOn, err = costbasis.ParseDate(disposedOn); err != nil {
			return nil, err
		}
		if d.UnitPriceUSD, err = costbasis.ParseMoney(unitPrice, costbasis.USD); err != nil {
			return nil, err
		}
		if d.Amount, err = costbasis.ParseQuantity(amount); err != nil {
			return nil, err
		}
		if d.CostBasisPerUnit, err = costbasis.ParseMoney(basisPerUnit, costbasis.USD); err != nil {
			return nil, err
		}
		if d.TotalCostBasis, err = costbasis.ParseMoney(basis, costbasis.USD); err != nil {
			return nil, err
		}
		if d.TotalProceeds, err = costbasis.ParseMoney(proceeds, costbasis.USD); err != nil {
			return nil, err
		}
		if d.GainLoss, err = costbasis.ParseMoney(gain, costbasis.USD); err != nil {
			return nil, err
		}
		if d.LocalProceeds, err = unmarshalLocal(localProceeds); err != nil {
			return nil, err
		}
		if d.LocalBasis, err = unmarshalLocal(localBasis); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) Violations(ctx context.Context, owner string) ([]*costbasis.WashSaleViolation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, disposal_id, repurchase_lot_id, repurchased_on,
			days_between, disallowed_loss, adjusted_cost_basis
		FROM wash_sale_violations WHERE owner_id = ? ORDER BY seq`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*costbasis.WashSaleViolation
	for rows.Next() {
		var (
			id, ownerID, disposalID, lotID, repurchasedOn string
			daysBetween                                   int
			disallowed, adjusted                          string
		)
		if err := rows.Scan(&id, &ownerID, &disposalID, &lotID, &repurchasedOn,
			&daysBetween, &disallowed, &adjusted); err != nil {
			return nil, err
		}
		v := &costbasis.WashSaleViolation{OwnerID: ownerID, DaysBetween: daysBetween}
		if v.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("corrupt violation id %q: %w", id, err)
		}
		if v.DisposalID, err = uuid.Parse(disposalID); err != nil {
			return nil, err
		}
		if v.RepurchaseLotID, err = uuid.Parse(lotID); err != nil {
			return nil, err
		}
		if v.RepurchasedOn, err = costbasis.ParseDate(repurchasedOn); err != nil {
			return nil, err
		}
		if v.DisallowedLoss, err = costbasis.ParseMoney(disallowed, costbasis.USD); err != nil {
			return nil, err
		}
		if v.AdjustedCostBasis, err = costbasis.ParseMoney(adjusted, costbasis.USD); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func marshalLocal(lv *costbasis.LocalValue) (sql.NullString, error) {
	if lv == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(lv)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalLocal(s sql.NullString) (*costbasis.LocalValue, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var lv costbasis.LocalValue
	if err := json.Unmarshal([]byte(s.String), &lv); err != nil {
		return nil, err
	}
	return &lv, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
