// Package types provides shared type definitions for the PayerWatch server.
//
// It defines the domain vocabulary used across components: rule and change
// enums, the ingestion batch payload consumed by the change engine, and the
// ranked result shape produced by the hybrid retriever.
//
// RuleType is a closed enum with a total mapping from crawler payload
// strings:
//
//	t := types.ParseRuleType("timely_filing") // types.RuleTimelyFiling
//	t = types.ParseRuleType("paragraph")      // types.RuleOther
//
// Alert severity is a pure function of how many rule changes an ingestion
// batch produced:
//
//	types.SeverityForChanges(12) // types.SeverityHigh
package types
