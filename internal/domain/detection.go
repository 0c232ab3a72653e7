package domain

// UnknownUpdateType is reported when no update-type keyword set matched.
const UnknownUpdateType = "unknown"

// Classification methods.
const (
	MethodRuleBased = "rule_based"
	MethodHybrid    = "hybrid"
)

// Detection is a feed item that passed the classification confidence gate.
type Detection struct {
	Item       FeedItem
	Sector     string
	UpdateType string
	Confidence float64
	Keywords   []string
	Priority   float64
}

// SemanticResult is the answer of an external semantic classifier.
type SemanticResult struct {
	Confidence      float64  `json:"confidence"`
	Sector          string   `json:"sector"`
	UpdateType      string   `json:"update_type"`
	DetectedChanges []string `json:"detected_changes"`
}

// Classification combines rule-based scoring with an optional semantic result.
type Classification struct {
	Sector          string
	UpdateType      string
	Confidence      float64
	Priority        float64
	Keywords        []string
	DetectedChanges []string
	Method          string
}
