// Package metrics aggregates probe outcomes into run reports.
//
// The central [Aggregator] folds one outcome per logical request into
// counts, exact latency extremes, an HDR histogram for percentiles, retry
// totals, and per-status/per-error breakdowns:
//
//	agg := metrics.NewAggregator(250 * time.Millisecond)
//	for _, out := range outcomes {
//		agg.Add(out)
//	}
//	report := agg.Report(elapsed)
//
// [Fold] wraps the same loop for callers holding a complete outcome slice.
//
// # Order Independence
//
// Add commutes: any permutation of the same outcome set produces an
// identical [Report]. Counters, duration sums, and histogram buckets are all
// integer accumulators, so the guarantee is bit-for-bit, not just
// approximate. The engine relies on this because workers hand outcomes back
// in completion order, which is not deterministic.
//
// # Thread Safety
//
// Add and Report are mutex-guarded; workers may Add concurrently while a
// progress reporter snapshots Report.
//
// # Empty Reports
//
// A report over zero outcomes has NaN min/max/avg millisecond fields rather
// than zeros, so "no data" cannot be mistaken for "instant responses". Runs
// started through the engine always have at least one outcome, since a
// non-positive repeat is rejected up front.
package metrics
