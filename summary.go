package costbasis

import (
	"context"
	"sort"
)

// PriceProvider supplies the current USD price of a token. ok is false when
// the price is unknown.
type PriceProvider interface {
	Price(ctx context.Context, token string) (Money, bool)
}

// PriceFunc adapts a function to the PriceProvider interface.
type PriceFunc func(ctx context.Context, token string) (Money, bool)

func (f PriceFunc) Price(ctx context.Context, token string) (Money, bool) {
	return f(ctx, token)
}

// SummaryFilter restricts a portfolio summary to one token and/or chain.
type SummaryFilter struct {
	Token string
	Chain string
}

// HoldingSummary aggregates the open lots sharing one grouping key.
type HoldingSummary struct {
	Key        string   `json:"key"` // token symbol or chain name
	Amount     Quantity `json:"amount"`
	CostBasis  Money    `json:"cost_basis"`
	Value      Money    `json:"value"`
	Unrealized Money    `json:"unrealized_gain_loss"`
	Lots       int      `json:"lots"`
	// PriceKnown is false when the price provider had no quote for the
	// token; Value and Unrealized are then zero, not estimates.
	PriceKnown bool `json:"price_known"`
}

// PortfolioSummary is the aggregate view of an owner's open lots.
type PortfolioSummary struct {
	Owner    string            `json:"owner"`
	ByToken  []*HoldingSummary `json:"by_token"`
	ByChain  []*HoldingSummary `json:"by_chain"`
	Totals   HoldingSummary    `json:"totals"`
	Local    *LocalValue       `json:"local_value,omitempty"`
	Warnings []Warning         `json:"warnings,omitempty"`
}

// Summarizer produces portfolio summaries from open lots, current prices and
// exchange rates. USD figures are always computed; reporting-currency
// figures only when a rate is available.
type Summarizer struct {
	store  LotStore
	prices PriceProvider
	rates  RateProvider
}

func NewSummarizer(store LotStore, prices PriceProvider, rates RateProvider) *Summarizer {
	return &Summarizer{store: store, prices: prices, rates: rates}
}

// PortfolioSummary aggregates the owner's open lots by token and by chain.
// Each distinct token costs exactly one price lookup per call; the result is
// memoized for the duration of the call.
func (s *Summarizer) PortfolioSummary(ctx context.Context, owner string, filter SummaryFilter, settings Settings) (*PortfolioSummary, error) {
	lots, err := s.store.OpenLots(ctx, owner, filter.Token, filter.Chain)
	if err != nil {
		return nil, err
	}

	summary := &PortfolioSummary{Owner: owner}
	summary.Totals = HoldingSummary{Key: "total", CostBasis: M(0, USD), Value: M(0, USD), Unrealized: M(0, USD), PriceKnown: true}

	// one lookup per distinct token, memoized for this call.
	type quote struct {
		price Money
		known bool
	}
	quotes := make(map[string]quote)
	lookup := func(token string) quote {
		if q, ok := quotes[token]; ok {
			return q
		}
		var q quote
		if s.prices != nil {
			q.price, q.known = s.prices.Price(ctx, token)
		}
		quotes[token] = q
		if !q.known {
			summary.Warnings = append(summary.Warnings, warningf(PriceUnavailable,
				"no current price for %s, holding valued at zero", token))
		}
		return q
	}

	byToken := make(map[string]*HoldingSummary)
	byChain := make(map[string]*HoldingSummary)
	group := func(m map[string]*HoldingSummary, key string) *HoldingSummary {
		h, ok := m[key]
		if !ok {
			h = &HoldingSummary{Key: key, CostBasis: M(0, USD), Value: M(0, USD), Unrealized: M(0, USD), PriceKnown: true}
			m[key] = h
		}
		return h
	}

	for _, l := range lots {
		q := lookup(l.Asset.Token)
		basis := l.CostBasis()
		value := M(0, USD)
		if q.known {
			value = q.price.Mul(l.Remaining)
		}

		for _, h := range []*HoldingSummary{group(byToken, l.Asset.Token), group(byChain, l.Asset.Chain), &summary.Totals} {
			h.Amount = h.Amount.Add(l.Remaining)
			h.CostBasis = h.CostBasis.Add(basis)
			h.Value = h.Value.Add(value)
			h.Lots++
			if !q.known {
				h.PriceKnown = false
			}
		}
	}

	finish := func(m map[string]*HoldingSummary) []*HoldingSummary {
		out := make([]*HoldingSummary, 0, len(m))
		for _, h := range m {
			h.Unrealized = h.Value.Sub(h.CostBasis)
			out = append(out, h)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
		return out
	}
	summary.ByToken = finish(byToken)
	summary.ByChain = finish(byChain)
	summary.Totals.Unrealized = summary.Totals.Value.Sub(summary.Totals.CostBasis)

	s.mirrorLocal(summary, settings)
	return summary, nil
}

func (s *Summarizer) mirrorLocal(summary *PortfolioSummary, settings Settings) {
	target := settings.ReportingCurrency
	if s.rates == nil || target == "" || target == USD {
		return
	}
	on := Today()
	rate, source, ok := s.rates.Rate(USD, target, on)
	if !ok {
		summary.Warnings = append(summary.Warnings, warningf(RateUnavailable,
			"no %s/%s rate for %s, local value omitted", USD, target, on))
		return
	}
	summary.Local = &LocalValue{
		Amount:     summary.Totals.Value.Convert(rate, target),
		Rate:       rate,
		RateSource: source,
		RateDate:   on,
	}
}
