// Package costbasis is the cost-basis accounting core of CryptoNomadHub.
// It tracks discrete acquisitions ("lots") of fungible crypto assets and
// computes realized gain or loss when those assets are disposed of.
//
// The core functionalities include:
//   - Lot Store: the single mutable record of acquisition lots, with an
//     in-memory implementation here and a persistent one in sqlitestore.
//   - Disposal Allocator: selects lots under FIFO, LIFO, HIFO, average-cost
//     or specific-identification, splits a disposal across them, and derives
//     cost basis, proceeds, gain/loss and holding-period classification.
//   - Wash-Sale Detector: flags loss disposals with a repurchase of the same
//     asset inside a configurable window and defers the loss into the
//     repurchased lot's basis.
//   - Currency & Aggregation: converts USD ledger figures into a reporting
//     currency through a pluggable rate provider and aggregates open lots
//     into portfolio summaries.
//
// All monetary arithmetic uses fixed-point decimals; the package never
// computes ledger figures in floating point. The core has no network surface
// of its own: it is invoked in-process by the surrounding audit and
// reporting layers, and by the `cnh` command-line tool.
package costbasis
