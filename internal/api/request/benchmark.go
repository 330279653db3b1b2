package request

// BenchmarkSegmentRequest is one weighted slice of a benchmark.
type BenchmarkSegmentRequest struct {
	AssetClass string  `json:"assetClass"`
	Sector     string  `json:"sector,omitempty"`
	Weight     float64 `json:"weight"`
	Return     float64 `json:"return"`
}

// CreateBenchmarkRequest is the body of POST /api/benchmark.
type CreateBenchmarkRequest struct {
	Name     string                    `json:"name"`
	Segments []BenchmarkSegmentRequest `json:"segments"`
}
