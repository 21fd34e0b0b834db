package listgrab

// Confidence values reported by detection.
const (
	ListConfidence   = 0.9
	SingleConfidence = 0.5
)

// PatternMatch is the inferred repeating list containing a seed element.
//
// Siblings reflects the DOM at detection time only. Content below Container
// mutates while scrolling, so members must be re-resolved from Container and
// Fingerprint before every use.
type PatternMatch struct {
	// Container is the parent whose children are candidate items.
	Container Element

	// Fingerprint is the fingerprint of the seed item at detection time.
	Fingerprint Fingerprint

	// Siblings are the matched items in document order.
	Siblings []Element

	IsSingle   bool
	Confidence float64
}

// DetectorConfig holds the pattern detection thresholds.
type DetectorConfig struct {
	// MinListItems is the minimum number of matching siblings, seed
	// included, to call a group a list.
	MinListItems int `yaml:"min_list_items"`

	// AllowSingleFallback reports a low-confidence single-element match
	// when no list qualifies.
	AllowSingleFallback bool `yaml:"allow_single_fallback"`

	// SimThreshold is the minimum similarity to count as the same pattern.
	SimThreshold float64 `yaml:"sim_threshold"`

	// DepthLimit is the maximum number of ancestor hops to search.
	DepthLimit int `yaml:"depth_limit"`
}

// DefaultDetectorConfig returns the default detection thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		MinListItems:        3,
		AllowSingleFallback: true,
		SimThreshold:        0.62,
		DepthLimit:          12,
	}
}

// Validate returns an error if the config contains invalid fields.
func (c DetectorConfig) Validate() error {
	if c.MinListItems < 1 {
		return Errorf(EINVALID, "min list items must be at least 1, got %d", c.MinListItems)
	}
	if c.SimThreshold < 0 || c.SimThreshold > 1 {
		return Errorf(EINVALID, "similarity threshold must be within [0,1], got %g", c.SimThreshold)
	}
	if c.DepthLimit < 1 {
		return Errorf(EINVALID, "depth limit must be at least 1, got %d", c.DepthLimit)
	}
	return nil
}

// Selectors identify a pattern's container and items without re-running
// detection. They are best effort: re-application on a changed page is not
// guaranteed to match the same elements.
type Selectors struct {
	ContainerSelector string `json:"containerSelector"`
	ItemSelector      string `json:"itemSelector"`
	FullItemSelector  string `json:"fullItemSelector"`
}
