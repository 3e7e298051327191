package validate

import (
	"math"

	"github.com/longbox-labs/pricefeed-cli/internal/baseline"
	"github.com/longbox-labs/pricefeed-cli/internal/model"
)

// confidenceFactor is one weighted component of the trust score.
type confidenceFactor struct {
	name   string
	weight float64
	score  float64
}

// confidenceScore computes the weighted trust estimate for a
// structurally valid listing. The price-reasonableness factor needs a
// populated baseline; when the baseline is cold the remaining factors
// are renormalized over their own weights instead of punishing the
// listing for the engine's ignorance.
func (e *Engine) confidenceScore(listing *model.NormalizedListing, anomalyScore float64) float64 {
	w := e.weights
	factors := make([]confidenceFactor, 0, 5)

	price := float64(listing.PriceCents) / 100
	if stats := e.tracker.Snapshot(string(listing.Marketplace), baseline.MetricPrice); stats.Count >= e.minSamples {
		factors = append(factors, confidenceFactor{
			name:   "price_reasonableness",
			weight: w.PriceWeight,
			score:  priceReasonableness(price, stats),
		})
	}

	factors = append(factors,
		confidenceFactor{"seller_reliability", w.SellerWeight, sellerReliability(listing.Seller)},
		confidenceFactor{"listing_quality", w.QualityWeight, listingQuality(listing)},
		confidenceFactor{"data_completeness", w.CompletenessWeight, dataCompleteness(listing)},
		confidenceFactor{"source_reliability", w.SourceWeight, e.sourceReliability(listing.Marketplace)},
	)

	var sum, weightSum float64
	for _, f := range factors {
		sum += f.weight * f.score
		weightSum += f.weight
	}
	if weightSum == 0 {
		return 0
	}

	conf := sum / weightSum
	conf *= 1 - anomalyScore*e.weights.AnomalyDiscount
	return clamp01(conf)
}

// priceReasonableness scores proximity to the empirical interquartile
// range: inside the IQR is fully reasonable, and the score decays with
// IQR-relative distance outside it.
func priceReasonableness(price float64, stats baseline.Stats) float64 {
	if price >= stats.Q1 && price <= stats.Q3 {
		return 1.0
	}
	iqr := stats.Q3 - stats.Q1
	if iqr <= 0 {
		// Degenerate distribution; fall back to distance from mean.
		if stats.Mean == 0 {
			return 0.5
		}
		return clamp01(1 - math.Abs(price-stats.Mean)/stats.Mean)
	}
	var dist float64
	if price < stats.Q1 {
		dist = stats.Q1 - price
	} else {
		dist = price - stats.Q3
	}
	return clamp01(1 - dist/(1.5*iqr))
}

// sellerReliability blends feedback percentage with feedback volume.
// Listings with no seller block at all get a low-trust floor.
func sellerReliability(seller model.NormalizedSeller) float64 {
	if seller.FeedbackScore == 0 && seller.FeedbackPercent == 0 && seller.Name == "" {
		return 0.3
	}
	pct := clamp01(seller.FeedbackPercent / 100)
	volume := clamp01(math.Log10(seller.FeedbackScore+1) / 5)
	return pct*0.6 + volume*0.4
}

// listingQuality uses title/description length heuristics plus photo
// presence.
func listingQuality(listing *model.NormalizedListing) float64 {
	title := clamp01(float64(len(listing.Title)) / 50)
	desc := clamp01(float64(len(listing.Description)) / 200)
	photos := 0.0
	if len(listing.PhotoURLs) > 0 {
		photos = 1.0
	}
	return title*0.4 + desc*0.3 + photos*0.3
}

// optionalFields are the fields counted toward data completeness.
const optionalFieldCount = 9

// dataCompleteness is the fraction of optional fields populated.
func dataCompleteness(listing *model.NormalizedListing) float64 {
	populated := 0
	if listing.Condition != "" {
		populated++
	}
	if listing.Grade != "" {
		populated++
	}
	if listing.Description != "" {
		populated++
	}
	if listing.Seller.Name != "" || listing.Seller.FeedbackScore > 0 {
		populated++
	}
	if len(listing.PhotoURLs) > 0 {
		populated++
	}
	if listing.ShippingCents > 0 {
		populated++
	}
	if listing.ListedAt != nil {
		populated++
	}
	if listing.EndsAt != nil {
		populated++
	}
	if listing.SaleType != "" {
		populated++
	}
	return float64(populated) / optionalFieldCount
}

// sourceReliability returns the configured per-marketplace prior.
func (e *Engine) sourceReliability(mkt model.Marketplace) float64 {
	if prior, ok := e.reliability[string(mkt)]; ok {
		return prior
	}
	return 0.5
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
