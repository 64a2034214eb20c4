package raster

const (
	// DefaultDPI is used when the caller requests a non-positive resolution.
	DefaultDPI = 600

	// MaxRasterDimension bounds the larger side of every page image.
	MaxRasterDimension = 8000
)

// Tier fixes the rendering resolution of pages whose area (in points²) is
// strictly greater than MinArea.
type Tier struct {
	MinArea float64
	DPI     int
}

// ResolutionPolicy maps a page area and a requested resolution to the
// resolution actually used for rendering. Tiers must be ordered by MinArea,
// largest first; the first matching tier wins.
type ResolutionPolicy struct {
	Floor int
	Tiers []Tier
}

// DefaultResolutionPolicy renders oversized pages at 600 DPI, large pages at
// 700 DPI and normal pages at the requested DPI, never below 600. Only
// requests of at least 700 DPI are non-increasing in page area.
var DefaultResolutionPolicy = ResolutionPolicy{
	Floor: 600,
	Tiers: []Tier{
		{MinArea: 1_000_000, DPI: 600},
		{MinArea: 500_000, DPI: 700},
	},
}

// Effective returns the rendering resolution for a page of the given area.
func (p ResolutionPolicy) Effective(area float64, requested int) int {
	for _, tier := range p.Tiers {
		if area > tier.MinArea {
			return tier.DPI
		}
	}
	if requested <= 0 {
		requested = DefaultDPI
	}
	return max(requested, p.Floor)
}

// QualityLevel is one JPEG encoding attempt.
type QualityLevel struct {
	Quality  int
	Optimize bool
}

var (
	PrimaryQuality  = QualityLevel{Quality: 92, Optimize: true}
	FallbackQuality = QualityLevel{Quality: 80, Optimize: false}
)

// SizeVerdict is the diagnostic classification of output/input size.
type SizeVerdict string

const (
	SizeWithinRange SizeVerdict = "within_range"
	SizeAcceptable  SizeVerdict = "acceptable"
	SizeMuchLarger  SizeVerdict = "much_larger"
)

// ClassifySizeRatio buckets outputBytes/inputBytes for logging.
func ClassifySizeRatio(ratio float64) SizeVerdict {
	switch {
	case ratio > 15:
		return SizeMuchLarger
	case ratio <= 10:
		return SizeWithinRange
	default:
		return SizeAcceptable
	}
}
