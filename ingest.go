package costbasis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// Role says which side of the ledger an ingestion event feeds.
type Role string

const (
	RoleAcquisition Role = "acquisition"
	RoleDisposal    Role = "disposal"
)

// IngestionEvent is the normalized event emitted by the upstream transaction
// normalizer or exchange-history importer.
type IngestionEvent struct {
	OwnerID       string          `json:"ownerId"`
	Token         string          `json:"token"`
	Chain         string          `json:"chain"`
	WalletAddress string          `json:"walletAddress,omitempty"`
	Amount        Quantity        `json:"amount"`
	UnitPriceUSD  decimal.Decimal `json:"unitPriceUsd"`
	Timestamp     time.Time       `json:"timestamp"`
	Role          Role            `json:"role"`
	Method        string          `json:"method"`
	SourceTxHash  string          `json:"sourceTxHash"`
	SourceBatchID string          `json:"sourceBatchId,omitempty"`
}

// Skip records one rejected event of a batch.
type Skip struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// BatchReport sums up one ingestion batch. Malformed events never fail the
// batch; they are counted here instead.
type BatchReport struct {
	Processed    int       `json:"processed"`
	LotsCreated  int       `json:"lots_created"`
	LotsReplayed int       `json:"lots_replayed"`
	Disposals    int       `json:"disposals"`
	Skipped      int       `json:"skipped"`
	Skips        []Skip    `json:"skips,omitempty"`
	Warnings     []Warning `json:"warnings,omitempty"`
}

// Ingester routes normalized events into the lot store and the allocator.
// Replaying a batch is safe: lot creation is idempotent by source
// transaction hash.
type Ingester struct {
	store    LotStore
	alloc    *Allocator
	settings SettingsProvider
	log      *slog.Logger
}

func NewIngester(store LotStore, alloc *Allocator, settings SettingsProvider, log *slog.Logger) *Ingester {
	if log == nil {
		log = slog.Default()
	}
	return &Ingester{store: store, alloc: alloc, settings: settings, log: log}
}

// Process ingests a batch of events in order. Each event succeeds or is
// skipped on its own; only context cancellation aborts the batch.
func (in *Ingester) Process(ctx context.Context, events []IngestionEvent) (*BatchReport, error) {
	report := &BatchReport{}
	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := in.process(ctx, ev, report); err != nil {
			report.Skipped++
			report.Skips = append(report.Skips, Skip{Index: i, Reason: err.Error()})
			in.log.Warn("ingestion event skipped",
				"index", i,
				"owner", ev.OwnerID,
				"token", ev.Token,
				"chain", ev.Chain,
				"txHash", ev.SourceTxHash,
				"reason", err.Error())
			continue
		}
		report.Processed++
	}
	in.log.Info("ingestion batch done",
		"processed", report.Processed,
		"lotsCreated", report.LotsCreated,
		"lotsReplayed", report.LotsReplayed,
		"disposals", report.Disposals,
		"skipped", report.Skipped)
	return report, nil
}

func (in *Ingester) process(ctx context.Context, ev IngestionEvent, report *BatchReport) error {
	if !ev.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: fmt.Sprintf("must be positive, got %s", ev.Amount)}
	}
	if ev.UnitPriceUSD.IsNegative() {
		return &ValidationError{Field: "unitPriceUsd", Reason: "must not be negative"}
	}
	asset := Asset{Token: ev.Token, Chain: ev.Chain, Wallet: ev.WalletAddress}
	on := DateOf(ev.Timestamp)
	settings := in.settings.SettingsFor(ev.OwnerID)

	switch ev.Role {
	case RoleAcquisition:
		method, err := ParseAcquisitionMethod(ev.Method)
		if err != nil {
			return err
		}
		lot, err := NewLot(ev.OwnerID, asset, ev.Amount, M(ev.UnitPriceUSD, USD), on, method, ev.SourceTxHash, ev.SourceBatchID)
		if err != nil {
			return err
		}
		_, created, err := in.store.AddLot(ctx, lot)
		if err != nil {
			return err
		}
		if created {
			report.LotsCreated++
		} else {
			report.LotsReplayed++
		}
		return nil

	case RoleDisposal:
		result, err := in.alloc.Dispose(ctx, DisposalRequest{
			Owner:        ev.OwnerID,
			Asset:        asset,
			Amount:       ev.Amount,
			UnitPriceUSD: M(ev.UnitPriceUSD, USD),
			On:           on,
			TxHash:       ev.SourceTxHash,
		}, settings)
		if err != nil {
			return err
		}
		report.Disposals++
		report.Warnings = append(report.Warnings, result.Warnings...)
		return nil

	default:
		return &ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", ev.Role)}
	}
}
