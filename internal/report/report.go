// Package report derives realized P&L summaries from a position container
// and exports them for the rendering side.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/barreplay/internal/book"
	"github.com/alanyoungcy/barreplay/internal/domain"
)

// Summary aggregates closed trades for one symbol or strategy.
type Summary struct {
	Key          string          `json:"key"`
	Trades       int             `json:"trades"`
	Wins         int             `json:"wins"`
	Losses       int             `json:"losses"`
	RealizedPnL  decimal.Decimal `json:"realized_pnl"`
	OpenQuantity int64           `json:"open_quantity"` // signed by direction
}

// Report is the outcome of one replay run.
type Report struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Symbols     []Summary `json:"symbols"`
	Strategies  []Summary `json:"strategies"`
	Total       Summary   `json:"total"`
}

// PnL returns the realized P&L of a closed position in money terms:
// (exit - entry) * direction * quantity * pointValue. Open positions yield
// zero.
func PnL(p *domain.Position, pointValue float64) decimal.Decimal {
	if p.IsOpen() {
		return decimal.Zero
	}
	diff := decimal.NewFromFloat(p.ExitPrice).Sub(decimal.NewFromFloat(p.EntryPrice))
	return diff.
		Mul(decimal.NewFromInt(int64(p.Direction))).
		Mul(decimal.NewFromInt(p.Quantity)).
		Mul(decimal.NewFromFloat(pointValue))
}

// Build summarises every position in the containers. pointValues maps a
// symbol to its contract point value; missing symbols use 1.
func Build(runID string, now time.Time, pointValues map[string]float64, containers ...*book.PositionContainer) Report {
	bySymbol := make(map[string]*Summary)
	byStrategy := make(map[string]*Summary)
	total := Summary{Key: "total"}

	for _, c := range containers {
		for _, p := range c.All() {
			pv, ok := pointValues[p.Symbol]
			if !ok {
				pv = 1
			}
			pnl := PnL(p, pv)
			add(summaryFor(bySymbol, p.Symbol), p, pnl)
			if p.Strategy != "" {
				add(summaryFor(byStrategy, p.Strategy), p, pnl)
			}
			add(&total, p, pnl)
		}
	}

	return Report{
		RunID:       runID,
		GeneratedAt: now.UTC(),
		Symbols:     flatten(bySymbol),
		Strategies:  flatten(byStrategy),
		Total:       total,
	}
}

func add(s *Summary, p *domain.Position, pnl decimal.Decimal) {
	if p.IsOpen() {
		s.OpenQuantity += p.SignedQuantity()
		return
	}
	s.Trades++
	switch pnl.Sign() {
	case 1:
		s.Wins++
	case -1:
		s.Losses++
	}
	s.RealizedPnL = s.RealizedPnL.Add(pnl)
}

func summaryFor(m map[string]*Summary, key string) *Summary {
	s, ok := m[key]
	if !ok {
		s = &Summary{Key: key}
		m[key] = s
	}
	return s
}

func flatten(m map[string]*Summary) []Summary {
	out := make([]Summary, 0, len(m))
	for _, s := range m {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Export uploads r as JSON to <prefix>/<run id>.json and returns the path.
func Export(ctx context.Context, blobs domain.BlobWriter, prefix string, r Report) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("report: marshal: %w", err)
	}
	key := path.Join(prefix, r.RunID+".json")
	if err := blobs.Put(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
		return "", fmt.Errorf("report: export %s: %w", key, err)
	}
	return key, nil
}
