package types

// RuleType categorizes a payer rule. The set is closed; unknown ingestion
// payload types map to RuleOther.
type RuleType string

const (
	RulePriorAuthorization  RuleType = "prior_authorization"
	RuleTimelyFiling        RuleType = "timely_filing"
	RuleAppeals             RuleType = "appeals"
	RuleClaimSubmission     RuleType = "claim_submission"
	RuleCoveragePolicy      RuleType = "coverage_policy"
	RuleNetworkRequirements RuleType = "network_requirements"
	RuleOther               RuleType = "other"
)

// AllRuleTypes lists every valid RuleType.
var AllRuleTypes = []RuleType{
	RulePriorAuthorization,
	RuleTimelyFiling,
	RuleAppeals,
	RuleClaimSubmission,
	RuleCoveragePolicy,
	RuleNetworkRequirements,
	RuleOther,
}

// ParseRuleType maps an ingestion payload type string to a RuleType. The
// mapping is total: structural extraction labels (list_item, paragraph,
// table) and anything unrecognized become RuleOther.
func ParseRuleType(s string) RuleType {
	switch RuleType(s) {
	case RulePriorAuthorization, RuleTimelyFiling, RuleAppeals,
		RuleClaimSubmission, RuleCoveragePolicy, RuleNetworkRequirements:
		return RuleType(s)
	}
	return RuleOther
}

// Valid reports whether t is one of the closed set of rule types.
func (t RuleType) Valid() bool {
	switch t {
	case RulePriorAuthorization, RuleTimelyFiling, RuleAppeals,
		RuleClaimSubmission, RuleCoveragePolicy, RuleNetworkRequirements, RuleOther:
		return true
	}
	return false
}

// ChangeType identifies the kind of change a change-log entry documents.
type ChangeType string

const (
	ChangeCreated          ChangeType = "created"
	ChangeDeleted          ChangeType = "deleted"
	ChangeContentModified  ChangeType = "content_modified"
	ChangeDateModified     ChangeType = "date_modified"
	ChangeMetadataModified ChangeType = "metadata_modified"
)

// Severity levels for alerts, derived from batch change volume.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SeverityForChanges derives alert severity from the total number of rule
// changes one ingestion batch produced.
func SeverityForChanges(totalChanges int) Severity {
	switch {
	case totalChanges >= 10:
		return SeverityHigh
	case totalChanges >= 5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
