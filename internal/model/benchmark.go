package model

// BenchmarkSegment is one asset class (optionally sector) slice of a
// benchmark: its weight and its return over the benchmark's period.
type BenchmarkSegment struct {
	AssetClass string  `json:"assetClass"`
	Sector     string  `json:"sector,omitempty"`
	Weight     float64 `json:"weight"`
	Return     float64 `json:"return"`
}

// Benchmark is a reference portfolio used by the attribution engine.
type Benchmark struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Segments []BenchmarkSegment `json:"segments"`
}
