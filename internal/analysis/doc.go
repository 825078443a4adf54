// Package analysis provides trend, failure-pattern, health and reliability
// analytics over captured test sessions.
//
// # Overview
//
// The analyzer operates on plain result and session slices, typically the
// output of a query, and derives read-only statistics from them. Nothing in
// this package mutates its input or touches storage; callers decide what to
// analyze by deciding what to pass in.
//
// # Primitives
//
// Four families of computation are provided:
//
//  1. Rates and metrics: failure rate over non-skipped results, aggregate
//     count/duration statistics.
//  2. Trend detection: direction (increasing/decreasing/stable) and
//     volatility of a duration or outcome series over time.
//  3. Failure patterns: three independent groupings of the failed subset by
//     nodeid, by minute window and by duration bucket.
//  4. Health and reliability: a weighted 0-100 health score per result set
//     or per session, and rerun-based reliability reporting (unreliable
//     tests, recovery rate, reliability index).
//
// # Conventions
//
// A "failed" result means outcome FAILED or ERROR. Skipped results are
// excluded from failure-rate denominators. The outcome trend metric maps
// PASSED to 1.0 and everything else to 0.0, so an increasing outcome trend
// reads as the pass rate improving.
package analysis
