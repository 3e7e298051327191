package validate

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// conditionAliases maps marketplace shorthand to the canonical
// grading vocabulary. Canonical names map to themselves (lowercased)
// so normalization is idempotent.
var conditionAliases = map[string]string{
	"m":         "Mint",
	"mt":        "Mint",
	"mint":      "Mint",
	"nm":        "Near Mint",
	"nm/m":      "Near Mint",
	"nm-":       "Near Mint",
	"nm+":       "Near Mint",
	"near mint": "Near Mint",
	"vf":        "Very Fine",
	"vf/nm":     "Very Fine",
	"very fine": "Very Fine",
	"f":         "Fine",
	"fn":        "Fine",
	"fine":      "Fine",
	"vg":        "Very Good",
	"very good": "Very Good",
	"g":         "Good",
	"gd":        "Good",
	"good":      "Good",
	"fa":        "Fair",
	"fr":        "Fair",
	"fair":      "Fair",
	"p":         "Poor",
	"pr":        "Poor",
	"poor":      "Poor",
}

// NormalizeCondition maps a free-text condition to the canonical
// vocabulary. Unknown values are title-cased and passed through.
func NormalizeCondition(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if canonical, ok := conditionAliases[strings.ToLower(trimmed)]; ok {
		return canonical
	}
	return titleCaser.String(strings.ToLower(trimmed))
}

// NormalizeTitle trims and collapses interior whitespace.
func NormalizeTitle(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// ParsePriceCents parses a raw price string ("$1,234.50", "1234.5",
// "USD 12") into cents.
func ParsePriceCents(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "USD")
	s = strings.TrimPrefix(s, "usd")
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, eris.New("empty price")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "parse price %q", raw)
	}
	return int64(math.Round(f * 100)), nil
}

// ParseNumber coerces a raw numeric string ("1,234", "99.8%") to a
// float. Empty input is zero, not an error.
func ParseNumber(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "parse number %q", raw)
	}
	return f, nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123,
	time.RFC1123Z,
}

// ParseDate tries the date layouts marketplaces are known to emit.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("unrecognized date %q", raw)
}
