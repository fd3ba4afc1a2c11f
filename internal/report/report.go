// Package report summarizes saved receipts and exports them.
package report

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-wallet/internal/receipt"
)

// Bucket is a group of receipts with their combined total
type Bucket struct {
	Key   string
	Count int
	Total decimal.Decimal
}

// Summary holds the totals shown on the home screen
type Summary struct {
	Count     int
	Total     decimal.Decimal
	Average   decimal.Decimal
	ThisMonth decimal.Decimal
	Largest   *receipt.Receipt
	Months    []Bucket // YYYY-MM, newest first
	Shops     []Bucket // largest total first
}

// FormatAmount renders an amount with two decimals
func FormatAmount(amount float64) string {
	return decimal.NewFromFloat(amount).StringFixed(2)
}

// Summarize totals list. Month boundaries follow now's location.
func Summarize(list receipt.List, now time.Time) Summary {
	s := Summary{Count: len(list)}

	currentMonth := now.Format("2006-01")
	months := map[string]*Bucket{}
	shops := map[string]*Bucket{}

	for i := range list {
		r := list[i]
		amount := decimal.NewFromFloat(r.TotalAmount)
		s.Total = s.Total.Add(amount)

		month := r.Date.In(now.Location()).Format("2006-01")
		if month == currentMonth {
			s.ThisMonth = s.ThisMonth.Add(amount)
		}
		addTo(months, month, amount)
		addTo(shops, strings.TrimSpace(r.ShopName), amount)

		if s.Largest == nil || r.TotalAmount > s.Largest.TotalAmount {
			s.Largest = &r
		}
	}

	if s.Count > 0 {
		s.Average = s.Total.Div(decimal.NewFromInt(int64(s.Count))).Round(2)
	}

	s.Months = sorted(months, func(a, b Bucket) bool { return a.Key > b.Key })
	s.Shops = sorted(shops, func(a, b Bucket) bool {
		if c := a.Total.Cmp(b.Total); c != 0 {
			return c > 0
		}
		return a.Key < b.Key
	})
	return s
}

func addTo(buckets map[string]*Bucket, key string, amount decimal.Decimal) {
	b, ok := buckets[key]
	if !ok {
		b = &Bucket{Key: key}
		buckets[key] = b
	}
	b.Count++
	b.Total = b.Total.Add(amount)
}

func sorted(buckets map[string]*Bucket, less func(a, b Bucket) bool) []Bucket {
	out := make([]Bucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

type bucketJSON struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
	Total string `json:"total"`
}

// MarshalJSON renders amounts as fixed two decimal strings
func (b Bucket) MarshalJSON() ([]byte, error) {
	return json.Marshal(bucketJSON{Key: b.Key, Count: b.Count, Total: b.Total.StringFixed(2)})
}

// MarshalJSON renders amounts as fixed two decimal strings
func (s Summary) MarshalJSON() ([]byte, error) {
	months, shops := s.Months, s.Shops
	if months == nil {
		months = []Bucket{}
	}
	if shops == nil {
		shops = []Bucket{}
	}
	return json.Marshal(struct {
		Count     int              `json:"count"`
		Total     string           `json:"total"`
		Average   string           `json:"average"`
		ThisMonth string           `json:"thisMonth"`
		Largest   *receipt.Receipt `json:"largest,omitempty"`
		Months    []Bucket         `json:"months"`
		Shops     []Bucket         `json:"shops"`
	}{
		Count:     s.Count,
		Total:     s.Total.StringFixed(2),
		Average:   s.Average.StringFixed(2),
		ThisMonth: s.ThisMonth.StringFixed(2),
		Largest:   s.Largest,
		Months:    months,
		Shops:     shops,
	})
}
