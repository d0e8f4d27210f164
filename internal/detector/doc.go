// Package detector implements the change engine: it ingests crawl batches
// and decides, per extracted rule, whether the content is a brand-new rule,
// a revision of an existing one, or unchanged.
//
// The decision is a similarity match against the payer's current rules of
// the same type. A revision supersedes the old version atomically and gets a
// change-log entry carrying before/after snapshots and a line diff. Each
// batch with at least one change produces a single alert whose severity
// scales with the change count.
package detector
