package domain

// ProtocolInfo is metadata about a DeFi protocol, sourced from the protocol
// TVL provider. Used for position enrichment and protocol risk heuristics.
type ProtocolInfo struct {
	Slug        string
	Name        string
	LogoURL     string
	Category    string
	TVL         float64
	TVLChange1d float64
	TVLChange7d float64
	Audited     bool
	Chains      []string
}
