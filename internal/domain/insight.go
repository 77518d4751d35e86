package domain

import "time"

// InsightType selects which analysis the generator performs.
type InsightType string

const (
	InsightRiskExposure   InsightType = "risk-exposure"
	InsightRebalancing    InsightType = "rebalancing"
	InsightSentimentAlert InsightType = "sentiment-alert"
)

// InsightSeverity grades how urgent an insight is.
type InsightSeverity string

const (
	SeverityInfo     InsightSeverity = "info"
	SeverityLow      InsightSeverity = "low"
	SeverityMedium   InsightSeverity = "medium"
	SeverityHigh     InsightSeverity = "high"
	SeverityCritical InsightSeverity = "critical"
)

// ValidSeverity reports whether s is a recognized severity value.
func ValidSeverity(s InsightSeverity) bool {
	switch s {
	case SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// InsightStatus is the lifecycle state of a generation attempt. Completed and
// failed are terminal; a finished insight is never regenerated in place.
type InsightStatus string

const (
	StatusPending    InsightStatus = "pending"
	StatusProcessing InsightStatus = "processing"
	StatusCompleted  InsightStatus = "completed"
	StatusFailed     InsightStatus = "failed"
)

// Recommendation is a single actionable suggestion inside an insight.
type Recommendation struct {
	Action          string   `json:"action"`
	Description     string   `json:"description"`
	Priority        string   `json:"priority"`
	EstimatedImpact string   `json:"estimatedImpact,omitempty"`
	Links           []string `json:"links,omitempty"`
}

// InsightSnapshot records the portfolio headline numbers the insight was
// generated against.
type InsightSnapshot struct {
	TotalValueUSD        float64 `json:"totalValueUsd"`
	TokenCount           int     `json:"tokenCount"`
	PositionCount        int     `json:"positionCount"`
	RiskScore            int     `json:"riskScore,omitempty"`
	DiversificationScore int     `json:"diversificationScore,omitempty"`
}

// Insight is a structured, model-generated analysis artifact. Created only by
// the insight generator and immutable afterwards; view/dismiss bookkeeping
// belongs to the surrounding application.
type Insight struct {
	ID               string
	WalletAddress    string
	Type             InsightType
	Severity         InsightSeverity
	Status           InsightStatus
	Title            string
	Summary          string
	DetailedAnalysis string
	Recommendations  []Recommendation
	Confidence       float64
	Tags             []string
	Snapshot         InsightSnapshot
	TokensUsed       int
	GenerationTimeMs int64
	CostUSD          float64
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// GenerationResult is what the insight generator hands back to its caller.
// Insight is nil when Status is failed; Err then carries the reason.
type GenerationResult struct {
	Insight    *Insight
	TokensUsed int
	CostUSD    float64
	DurationMs int64
	Err        string
}

// Failed reports whether the generation attempt ended in the failed state.
func (r GenerationResult) Failed() bool {
	return r.Insight == nil
}
