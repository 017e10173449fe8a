package dedup

import "fmt"

const (
	DefaultSequenceThreshold    = 0.85
	DefaultWordOverlapThreshold = 0.85
	DefaultLengthBandRatio      = 0.2
	DefaultMinFuzzyLength       = 10
	DefaultBatchWindow          = 1000
	DefaultOwnerWorkers         = 4
)

// DefaultPlaceholders are field values treated as absent content.
var DefaultPlaceholders = []string{"none", "null", "unknown"}

// Config carries the resolution heuristics. Start from DefaultConfig and
// override; a nil Placeholders list selects the defaults.
type Config struct {
	SequenceThreshold    float64
	WordOverlapThreshold float64
	LengthBandRatio      float64
	MinFuzzyLength       int
	BatchWindow          int
	OwnerWorkers         int
	Placeholders         []string
}

// DefaultConfig returns the stock heuristics.
func DefaultConfig() Config {
	return Config{
		SequenceThreshold:    DefaultSequenceThreshold,
		WordOverlapThreshold: DefaultWordOverlapThreshold,
		LengthBandRatio:      DefaultLengthBandRatio,
		MinFuzzyLength:       DefaultMinFuzzyLength,
		BatchWindow:          DefaultBatchWindow,
		OwnerWorkers:         DefaultOwnerWorkers,
	}
}

func (c Config) validate() error {
	if c.SequenceThreshold < 0 || c.SequenceThreshold > 1 {
		return fmt.Errorf("sequence threshold must be in [0,1], got %v", c.SequenceThreshold)
	}
	if c.WordOverlapThreshold < 0 || c.WordOverlapThreshold > 1 {
		return fmt.Errorf("word overlap threshold must be in [0,1], got %v", c.WordOverlapThreshold)
	}
	if c.LengthBandRatio < 0 || c.LengthBandRatio >= 1 {
		return fmt.Errorf("length band ratio must be in [0,1), got %v", c.LengthBandRatio)
	}
	if c.MinFuzzyLength < 0 {
		return fmt.Errorf("min fuzzy length must be >= 0, got %d", c.MinFuzzyLength)
	}
	if c.BatchWindow < 1 {
		return fmt.Errorf("batch window must be >= 1, got %d", c.BatchWindow)
	}
	if c.OwnerWorkers < 1 {
		return fmt.Errorf("owner workers must be >= 1, got %d", c.OwnerWorkers)
	}
	return nil
}
