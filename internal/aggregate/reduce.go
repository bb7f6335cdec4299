package aggregate

import (
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/wheelmate/wheelmate/internal/geo"
	"github.com/wheelmate/wheelmate/internal/model"
)

// DefaultMaxResults bounds the reduced list.
const DefaultMaxResults = 200

// Options controls Reduce.
type Options struct {
	// DropUnknown removes places whose rating is UNKNOWN.
	DropUnknown bool

	// MaxResults truncates the output. Zero means DefaultMaxResults.
	MaxResults int
}

// DedupKey identifies one physical place across providers.
type DedupKey struct {
	Name string
	Lat  float64
	Lon  float64
}

// Key returns the dedup key of p: its NFC-normalized, case-folded, trimmed
// name and its coordinates rounded to four decimals (about 11 m).
func Key(p model.Place) DedupKey {
	name := cases.Fold().String(norm.NFC.String(strings.TrimSpace(p.Name)))
	return DedupKey{
		Name: strings.Join(strings.Fields(name), " "),
		Lat:  round4(p.Location.Lat),
		Lon:  round4(p.Location.Lon),
	}
}

func round4(v float64) float64 {
	r := math.Round(v*1e4) / 1e4
	if r == 0 {
		return 0 // fold -0 into 0
	}
	return r
}

// Reduce filters raw to the radius, optionally drops UNKNOWN ratings,
// removes duplicates keeping the first occurrence and truncates, all
// preserving input order. The input is not modified.
func Reduce(raw []model.Place, center model.Coordinates, radiusKM float64, opts Options) []model.Place {
	limit := opts.MaxResults
	if limit <= 0 {
		limit = DefaultMaxResults
	}

	seen := make(map[DedupKey]struct{}, len(raw))
	out := make([]model.Place, 0, min(len(raw), limit))
	for _, p := range raw {
		if len(out) >= limit {
			break
		}
		if !geo.Within(center, p.Location, radiusKM) {
			continue
		}
		if opts.DropUnknown && !p.Rating.Resolved() {
			continue
		}
		k := Key(p)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out
}
