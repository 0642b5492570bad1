package costbasis

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

// RateProvider supplies an exchange rate between two currencies on a date.
// The rate multiplies a `from` amount into a `to` amount. ok is false when
// no rate is known; callers must then omit local-currency figures rather
// than fail, as USD figures stay authoritative.
type RateProvider interface {
	Rate(from, to string, on Date) (rate decimal.Decimal, source string, ok bool)
}

// RateFunc adapts a function to the RateProvider interface.
type RateFunc func(from, to string, on Date) (decimal.Decimal, string, bool)

func (f RateFunc) Rate(from, to string, on Date) (decimal.Decimal, string, bool) {
	return f(from, to, on)
}

// CachedRates memoizes a RateProvider. Historical rates never change, so a
// generous TTL is safe; only successful lookups are cached.
type CachedRates struct {
	inner RateProvider
	cache *gocache.Cache
}

type cachedRate struct {
	rate   decimal.Decimal
	source string
}

func NewCachedRates(inner RateProvider, ttl time.Duration) *CachedRates {
	return &CachedRates{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (c *CachedRates) Rate(from, to string, on Date) (decimal.Decimal, string, bool) {
	key := from + "|" + to + "|" + on.String()
	if hit, ok := c.cache.Get(key); ok {
		r := hit.(cachedRate)
		return r.rate, r.source, true
	}
	rate, source, ok := c.inner.Rate(from, to, on)
	if !ok {
		return decimal.Decimal{}, "", false
	}
	c.cache.Set(key, cachedRate{rate: rate, source: source}, gocache.DefaultExpiration)
	return rate, source, true
}

var _ RateProvider = (*CachedRates)(nil)
var _ RateProvider = (RateFunc)(nil)
