package model

// AnalysisResult is the outcome of analysing one image.
// PixelCount always equals Width*Height. Values are never mutated once produced.
type AnalysisResult struct {
	AverageIntensity float64 `json:"average_intensity"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	OriginalMode     string  `json:"original_mode"`
	PixelCount       int     `json:"pixel_count"`
}

// CacheStatus reports whether a response was served from the fingerprint cache.
type CacheStatus string

const (
	CacheHit  CacheStatus = "hit"
	CacheMiss CacheStatus = "miss"
)

// IntensityResponse is the success body of POST /intensity.
// It is built fresh for every request and never stored.
type IntensityResponse struct {
	AverageIntensity float64     `json:"average_intensity"`
	ImageSize        [2]int      `json:"image_size"`
	OriginalMode     string      `json:"original_mode"`
	PixelCount       int         `json:"pixel_count"`
	Filename         string      `json:"filename"`
	RequestID        string      `json:"request_id"`
	CacheStatus      CacheStatus `json:"cache_status"`
	DurationMS       float64     `json:"duration_ms"`
}

// NewIntensityResponse flattens a result into the response body.
func NewIntensityResponse(res AnalysisResult, filename, requestID string, status CacheStatus) *IntensityResponse {
	return &IntensityResponse{
		AverageIntensity: res.AverageIntensity,
		ImageSize:        [2]int{res.Width, res.Height},
		OriginalMode:     res.OriginalMode,
		PixelCount:       res.PixelCount,
		Filename:         filename,
		RequestID:        requestID,
		CacheStatus:      status,
	}
}
