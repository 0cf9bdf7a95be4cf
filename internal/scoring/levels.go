package scoring

// RiskLevel is one of five ordinal labels for an overall score.
type RiskLevel string

const (
	LevelVeryLow  RiskLevel = "VERY_LOW"
	LevelLow      RiskLevel = "LOW"
	LevelMedium   RiskLevel = "MEDIUM"
	LevelHigh     RiskLevel = "HIGH"
	LevelVeryHigh RiskLevel = "VERY_HIGH"
)

var levelDescriptions = map[RiskLevel]string{
	LevelVeryHigh: "Extremely risky wallet with multiple severe red flags",
	LevelHigh:     "High-risk wallet requiring significant caution",
	LevelMedium:   "Medium risk with some concerning factors",
	LevelLow:      "Low risk with generally safe behavior patterns",
	LevelVeryLow:  "Very low risk, highly conservative wallet behavior",
}

// Level classifies a score. Each boundary belongs to the upper tier.
func Level(score float64) RiskLevel {
	switch {
	case score >= 80:
		return LevelVeryHigh
	case score >= 60:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	case score >= 20:
		return LevelLow
	default:
		return LevelVeryLow
	}
}

// Description returns the fixed text for the level.
func (l RiskLevel) Description() string {
	return levelDescriptions[l]
}

// RiskBuckets groups component names by severity for display.
type RiskBuckets struct {
	High   []string `json:"high"`
	Medium []string `json:"medium"`
	Low    []string `json:"low"`
}

// NamedScore is a component name with its score.
type NamedScore struct {
	Name  string
	Score float64
}

// Categorize buckets scores into high (>=70), medium (>=40) and low.
// Input order is kept within each bucket.
func Categorize(scores []NamedScore) RiskBuckets {
	b := RiskBuckets{High: []string{}, Medium: []string{}, Low: []string{}}
	for _, s := range scores {
		switch {
		case s.Score >= 70:
			b.High = append(b.High, s.Name)
		case s.Score >= 40:
			b.Medium = append(b.Medium, s.Name)
		default:
			b.Low = append(b.Low, s.Name)
		}
	}
	return b
}
