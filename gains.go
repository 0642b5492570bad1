package costbasis

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Range represents an inclusive range of dates.
type Range struct {
	From Date `json:"from"`
	To   Date `json:"to"`
}

// NewRange creates a date range. If from is after to, they are swapped.
func NewRange(from, to Date) Range {
	if from.After(to) {
		from, to = to, from
	}
	return Range{From: from, To: to}
}

// Year returns the range covering a calendar year, the usual tax period.
func Year(y int) Range {
	return Range{From: NewDate(y, 1, 1), To: NewDate(y, 12, 31)}
}

// Contains reports whether the date falls inside the range, boundaries included.
func (r Range) Contains(d Date) bool { return !d.Before(r.From) && !d.After(r.To) }

func (r Range) String() string { return fmt.Sprintf("%s..%s", r.From, r.To) }

// Percent is a percentage value for report output.
type Percent float64

// Equal compares with a small tolerance.
func (p Percent) Equal(q Percent) bool {
	const precision = 0.0001
	diff := p - q
	if diff < 0 {
		diff = -diff
	}
	return diff < precision
}

func (p Percent) String() string { return fmt.Sprintf("%.2f%%", p) }

// SignedString formats the percentage with an explicit sign; zero is "-".
func (p Percent) SignedString() string {
	res := fmt.Sprintf("%+.2f%%", p)
	if res == "+0.00%" {
		return "-"
	}
	return res
}

// TokenGains holds the realized outcome for a single token over a period.
type TokenGains struct {
	Token     string   `json:"token"`
	Amount    Quantity `json:"amount_disposed"`
	Disposals int      `json:"disposals"`
	Proceeds  Money    `json:"proceeds"`
	CostBasis Money    `json:"cost_basis"`
	ShortTerm Money    `json:"short_term_gain_loss"`
	LongTerm  Money    `json:"long_term_gain_loss"`
	Net       Money    `json:"net_gain_loss"`
	// Return is Net over CostBasis; zero-basis proceeds make it meaningless,
	// so it is omitted when the basis is zero.
	Return Percent `json:"return_pct,omitempty"`
}

// GainsReport sums up an owner's realized gains and losses over a period,
// split into the short-term and long-term buckets tax filings need.
type GainsReport struct {
	Owner   string        `json:"owner"`
	Range   Range         `json:"range"`
	ByToken []*TokenGains `json:"by_token"`

	Disposals int   `json:"disposals"`
	Proceeds  Money `json:"proceeds"`
	CostBasis Money `json:"cost_basis"`
	ShortTerm Money `json:"short_term_gain_loss"`
	LongTerm  Money `json:"long_term_gain_loss"`
	Net       Money `json:"net_gain_loss"`

	// ZeroBasis counts the disposals settled with an assumed zero basis;
	// their whole proceeds are in the gain figures.
	ZeroBasis int `json:"zero_basis_disposals,omitempty"`
}

// RealizedGains aggregates the owner's committed disposals inside the period.
// It is a pure read: the figures were fixed when each disposal committed.
func RealizedGains(ctx context.Context, store LotStore, owner string, period Range) (*GainsReport, error) {
	disposals, err := store.Disposals(ctx, owner)
	if err != nil {
		return nil, err
	}

	report := &GainsReport{
		Owner: owner, Range: period,
		Proceeds: M(0, USD), CostBasis: M(0, USD),
		ShortTerm: M(0, USD), LongTerm: M(0, USD), Net: M(0, USD),
	}
	byToken := make(map[string]*TokenGains)
	for _, d := range disposals {
		if !period.Contains(d.DisposedOn) {
			continue
		}
		g, ok := byToken[d.Asset.Token]
		if !ok {
			g = &TokenGains{
				Token:    d.Asset.Token,
				Proceeds: M(0, USD), CostBasis: M(0, USD),
				ShortTerm: M(0, USD), LongTerm: M(0, USD), Net: M(0, USD),
			}
			byToken[d.Asset.Token] = g
		}

		g.Amount = g.Amount.Add(d.Amount)
		g.Disposals++
		g.Proceeds = g.Proceeds.Add(d.TotalProceeds)
		g.CostBasis = g.CostBasis.Add(d.TotalCostBasis)
		g.Net = g.Net.Add(d.GainLoss)
		if d.LongTerm {
			g.LongTerm = g.LongTerm.Add(d.GainLoss)
		} else {
			g.ShortTerm = g.ShortTerm.Add(d.GainLoss)
		}

		report.Disposals++
		report.Proceeds = report.Proceeds.Add(d.TotalProceeds)
		report.CostBasis = report.CostBasis.Add(d.TotalCostBasis)
		report.Net = report.Net.Add(d.GainLoss)
		if d.LongTerm {
			report.LongTerm = report.LongTerm.Add(d.GainLoss)
		} else {
			report.ShortTerm = report.ShortTerm.Add(d.GainLoss)
		}
		if d.LotID == uuid.Nil {
			report.ZeroBasis++
		}
	}

	for _, g := range byToken {
		if !g.CostBasis.IsZero() {
			ratio, _ := g.Net.Decimal().Div(g.CostBasis.Decimal()).Float64()
			g.Return = Percent(100 * ratio)
		}
		report.ByToken = append(report.ByToken, g)
	}
	sort.Slice(report.ByToken, func(i, j int) bool { return report.ByToken[i].Token < report.ByToken[j].Token })
	return report, nil
}
