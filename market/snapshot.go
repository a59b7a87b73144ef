package market

// Snapshot represents a market snapshot.
type Snapshot struct {
	Step           int
	Mid            float64
	BaseHalfSpread float64
	Sigma          float64
}
