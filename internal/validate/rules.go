// Package validate implements listing validation, anomaly scoring,
// confidence scoring, and normalization for collected marketplace data.
package validate

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// MarketplaceRules holds the validation rules for one marketplace.
// Zero-valued fields inherit from the default rule set.
type MarketplaceRules struct {
	RequiredFields    []string `yaml:"required_fields,omitempty"`
	MinPrice          float64  `yaml:"min_price,omitempty"`
	MaxPrice          float64  `yaml:"max_price,omitempty"`
	MinTitleLen       int      `yaml:"min_title_len,omitempty"`
	MaxTitleLen       int      `yaml:"max_title_len,omitempty"`
	AllowedConditions []string `yaml:"allowed_conditions,omitempty"`
}

// Rules is the full per-marketplace rule configuration.
type Rules struct {
	Default      MarketplaceRules            `yaml:"default"`
	Marketplaces map[string]MarketplaceRules `yaml:"marketplaces"`
}

// DefaultRules returns the built-in rule set. eBay listings must carry
// seller info; Heritage lots must carry a lot number.
func DefaultRules() *Rules {
	return &Rules{
		Default: MarketplaceRules{
			RequiredFields: []string{"external_id", "title", "price", "source_url"},
			MinPrice:       0.01,
			MaxPrice:       1_000_000,
			MinTitleLen:    5,
			MaxTitleLen:    500,
			AllowedConditions: []string{
				"Mint", "Near Mint", "Very Fine", "Fine", "Very Good",
				"Good", "Fair", "Poor",
			},
		},
		Marketplaces: map[string]MarketplaceRules{
			"ebay": {
				RequiredFields: []string{"external_id", "title", "price", "source_url", "seller_info"},
			},
			"heritage": {
				RequiredFields: []string{"external_id", "title", "price", "source_url", "lot_number"},
			},
		},
	}
}

// LoadRules reads a rules override file and merges it over the
// defaults. Marketplaces absent from the file keep the built-ins.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "validate: read rules %s", path)
	}

	var wrapper struct {
		Validation Rules `yaml:"validation"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "validate: parse rules")
	}

	rules := DefaultRules()
	loaded := &wrapper.Validation
	mergeRules(&rules.Default, loaded.Default)
	for name, mr := range loaded.Marketplaces {
		base := rules.Marketplaces[name]
		mergeRules(&base, mr)
		rules.Marketplaces[name] = base
	}
	return rules, nil
}

// For returns the effective rules for a marketplace: its overrides
// with default fallbacks for anything unset.
func (r *Rules) For(marketplace string) MarketplaceRules {
	eff := r.Default
	if mr, ok := r.Marketplaces[marketplace]; ok {
		mergeRules(&eff, mr)
	}
	return eff
}

func mergeRules(dst *MarketplaceRules, src MarketplaceRules) {
	if len(src.RequiredFields) > 0 {
		dst.RequiredFields = src.RequiredFields
	}
	if src.MinPrice > 0 {
		dst.MinPrice = src.MinPrice
	}
	if src.MaxPrice > 0 {
		dst.MaxPrice = src.MaxPrice
	}
	if src.MinTitleLen > 0 {
		dst.MinTitleLen = src.MinTitleLen
	}
	if src.MaxTitleLen > 0 {
		dst.MaxTitleLen = src.MaxTitleLen
	}
	if len(src.AllowedConditions) > 0 {
		dst.AllowedConditions = src.AllowedConditions
	}
}
