// Package fingerprint derives deterministic content hashes from portfolio
// snapshots. The fingerprint is the cache key for recommendations and
// scenario scores: portfolios that differ only in irrelevant detail (cash
// within the same 10 EUR bucket, price noise below a cent) map to the same
// key.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"sort"

	"github.com/aristath/helmsman/internal/domain"
)

// CashBucketEUR is the rounding granularity for investable cash.
const CashBucketEUR = 10.0

// Generate computes the portfolio fingerprint from positions and available
// cash. Positions are canonicalised as sorted (symbol, quantity,
// price-rounded-to-cents) tuples; cash is bucketed to 10 EUR.
func Generate(positions []domain.Position, availableCashEUR float64) string {
	parts := make([]string, 0, len(positions)+1)
	for _, p := range positions {
		if p.Quantity == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s:%d:%.2f", p.Symbol, p.Quantity, p.CurrentPrice))
	}
	sort.Strings(parts)

	bucket := int64(math.Round(availableCashEUR / CashBucketEUR))
	parts = append(parts, fmt.Sprintf("CASH.EUR:%d", bucket))

	canonical := ""
	for i, part := range parts {
		if i > 0 {
			canonical += "|"
		}
		canonical += part
	}

	sum := md5.Sum([]byte(canonical))
	return hex.EncodeToString(sum[:])[:12]
}

// SettingsHash hashes the planner settings that influence recommendations,
// so changed settings invalidate cached plans.
func SettingsHash(cfg *domain.PlannerConfiguration) string {
	if cfg == nil {
		return "default"
	}
	canonical := fmt.Sprintf("%d:%d:%d:%d:%.4f:%.4f:%.4f:%t:%t:%d",
		cfg.MaxDepth, cfg.BeamWidth, cfg.BatchSize, cfg.MaxCombinations,
		cfg.TransactionFeeFixed, cfg.TransactionFeePercent, cfg.DiversityWeight,
		cfg.EnableMonteCarlo, cfg.EnableStochasticScenarios, cfg.MonteCarloPaths,
	)
	sum := md5.Sum([]byte(canonical))
	return hex.EncodeToString(sum[:])[:8]
}

// CacheKey combines the portfolio fingerprint, settings hash, and a category
// tag into the recommendation-cache key.
func CacheKey(portfolioFingerprint, settingsHash, category string) string {
	return fmt.Sprintf("%s:%s:%s", portfolioFingerprint, settingsHash, category)
}
