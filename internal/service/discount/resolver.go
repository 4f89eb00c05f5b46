package discount

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jwalitptl/drivermed-api/config"
	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
	"github.com/jwalitptl/drivermed-api/pkg/metrics"
)

// Code is one voucher entry. Amounts are flat, in pence.
type Code struct {
	Code        string    `json:"code"`
	AmountPence int64     `json:"amount_pence"`
	ExpiresAt   time.Time `json:"expires_at"`
	Hidden      bool      `json:"-"`
}

// Resolution is the outcome of resolving a possibly empty code.
type Resolution struct {
	Code        string `json:"code,omitempty"`
	Requested   bool   `json:"requested"`
	AmountPence int64  `json:"amount_pence"`
}

// DefaultCodes is the built-in registry used when configuration supplies none.
func DefaultCodes() []Code {
	return []Code{
		{Code: "2025D", AmountPence: 500, ExpiresAt: time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC)},
		{Code: "SEBSI2308", AmountPence: 1000, ExpiresAt: time.Date(2027, 12, 31, 23, 59, 59, 0, time.UTC), Hidden: true},
	}
}

// CodesFromConfig parses configured codes; an empty list yields the defaults.
func CodesFromConfig(entries []config.DiscountCode) ([]Code, error) {
	if len(entries) == 0 {
		return DefaultCodes(), nil
	}
	codes := make([]Code, 0, len(entries))
	for _, e := range entries {
		expires, err := time.Parse(time.RFC3339, e.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("invalid expires_at for discount %q: %w", e.Code, err)
		}
		if e.AmountPence <= 0 {
			return nil, fmt.Errorf("discount %q must have a positive amount", e.Code)
		}
		codes = append(codes, Code{Code: e.Code, AmountPence: e.AmountPence, ExpiresAt: expires, Hidden: e.Hidden})
	}
	return codes, nil
}

type Resolver struct {
	codes   map[string]Code
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewResolver(codes []Code, m *metrics.Metrics) *Resolver {
	r := &Resolver{codes: make(map[string]Code, len(codes)), metrics: m, now: time.Now}
	for _, c := range codes {
		c.Code = normalize(c.Code)
		r.codes[c.Code] = c
	}
	return r
}

// WithClock replaces the time source.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Resolve looks a code up case-insensitively. An empty code means no discount was requested.
func (r *Resolver) Resolve(code string) (Resolution, error) {
	key := normalize(code)
	if key == "" {
		return Resolution{}, nil
	}

	entry, ok := r.codes[key]
	if !ok {
		r.observe("unknown")
		return Resolution{}, apperrors.NewDiscountRejected(strings.TrimSpace(code))
	}
	if r.now().After(entry.ExpiresAt) {
		r.observe("expired")
		return Resolution{}, apperrors.NewDiscountRejected(strings.TrimSpace(code))
	}

	r.observe("applied")
	return Resolution{Code: entry.Code, Requested: true, AmountPence: entry.AmountPence}, nil
}

// Advertised lists the visible, unexpired codes. Hidden codes are never included.
func (r *Resolver) Advertised() []Code {
	now := r.now()
	var out []Code
	for _, c := range r.codes {
		if c.Hidden || now.After(c.ExpiresAt) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// ApplyDiscount subtracts a flat discount, never going below zero.
func ApplyDiscount(pricePence, discountPence int64) int64 {
	if discountPence >= pricePence {
		return 0
	}
	return pricePence - discountPence
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r *Resolver) observe(result string) {
	if r.metrics != nil {
		r.metrics.DiscountResolutions.WithLabelValues(result).Inc()
	}
}
