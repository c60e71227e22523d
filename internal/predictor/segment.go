package predictor

// Risk levels for churn probabilities.
const (
	RiskHigh   = "High"
	RiskMedium = "Medium"
	RiskLow    = "Low"
)

// Value segments for lifetime-value estimates.
const (
	SegmentHighValue   = "High Value"
	SegmentMediumValue = "Medium Value"
	SegmentLowValue    = "Low Value"
)

// RiskLevel buckets a churn probability.
func RiskLevel(p float64) string {
	switch {
	case p > 0.7:
		return RiskHigh
	case p > 0.3:
		return RiskMedium
	default:
		return RiskLow
	}
}

// CLVSegment buckets a lifetime-value estimate.
func CLVSegment(v float64) string {
	switch {
	case v > 1000:
		return SegmentHighValue
	case v > 500:
		return SegmentMediumValue
	default:
		return SegmentLowValue
	}
}
