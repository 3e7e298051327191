package validate

import (
	"regexp"
)

// Suspicious-content blocklists. Matches against title or price are
// hard errors (the listing is presumed adversarial); matches against
// description or seller text only warn, since legitimate sellers
// sometimes quote odd phrasing there.

var scriptInjectionPattern = regexp.MustCompile(`(?i)<\s*script|javascript\s*:|on(?:error|load|click)\s*=|<\s*iframe`)

var scamPhrasePattern = regexp.MustCompile(`(?i)\b(?:wire\s+transfer\s+only|western\s+union|moneygram|money\s+order\s+only|pay\s+outside|off[-\s]platform|gift\s*cards?\s+only)\b`)

var adultContentPattern = regexp.MustCompile(`(?i)\b(?:xxx|nsfw|adults?\s+only)\b`)

var offPlatformPayPattern = regexp.MustCompile(`(?i)\b(?:venmo|zelle|cash\s*app|paypal\s+(?:friends|f&f|ff))\b`)

// suspiciousPricePatterns flag placeholder or bait prices that no real
// sale would carry.
var suspiciousPricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\$?\s*9{4,}(?:\.9+)?$`),
	regexp.MustCompile(`^\$?\s*0?\.0*1$`),
	regexp.MustCompile(`^\$?\s*12345+$`),
}

// scanText returns the names of blocklists the text matches.
func scanText(text string) []string {
	if text == "" {
		return nil
	}
	var hits []string
	if scriptInjectionPattern.MatchString(text) {
		hits = append(hits, "script injection")
	}
	if scamPhrasePattern.MatchString(text) {
		hits = append(hits, "scam phrasing")
	}
	if adultContentPattern.MatchString(text) {
		hits = append(hits, "adult content")
	}
	if offPlatformPayPattern.MatchString(text) {
		hits = append(hits, "off-platform payment")
	}
	return hits
}

// suspiciousPrice reports whether the raw price string matches a
// configured suspicious price pattern.
func suspiciousPrice(raw string) bool {
	for _, p := range suspiciousPricePatterns {
		if p.MatchString(raw) {
			return true
		}
	}
	return false
}
