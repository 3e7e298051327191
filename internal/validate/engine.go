package validate

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/longbox-labs/pricefeed-cli/internal/baseline"
	"github.com/longbox-labs/pricefeed-cli/internal/config"
	"github.com/longbox-labs/pricefeed-cli/internal/model"
)

// Options configures a validation engine.
type Options struct {
	Rules       *Rules
	Anomaly     config.AnomalyConfig
	Confidence  config.ConfidenceConfig
	Reliability map[string]float64 // per-marketplace trust prior
}

// Engine validates raw listings against field, type, and business
// rules, scores their trustworthiness, and normalizes them. The
// rolling baseline it scores against is owned by the engine and only
// mutated by listings that pass structural validation.
type Engine struct {
	rules       *Rules
	tracker     *baseline.Tracker
	anomaly     config.AnomalyConfig
	weights     config.ConfidenceConfig
	reliability map[string]float64
	minSamples  int

	nowFunc func() time.Time
}

// NewEngine creates a validation engine.
func NewEngine(opts Options) *Engine {
	rules := opts.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	an := opts.Anomaly
	if an.PriceSigma <= 0 {
		an.PriceSigma = 3.0
	}
	if an.VolumeSigma <= 0 {
		an.VolumeSigma = 5.0
	}
	if an.SellerSigma <= 0 {
		an.SellerSigma = 2.5
	}
	if an.WindowSize <= 0 {
		an.WindowSize = 1000
	}
	if an.MinSamples <= 0 {
		an.MinSamples = 10
	}
	if an.WarnScore <= 0 {
		an.WarnScore = 0.8
	}
	w := opts.Confidence
	if w.PriceWeight+w.SellerWeight+w.QualityWeight+w.CompletenessWeight+w.SourceWeight == 0 {
		w.PriceWeight = 0.25
		w.SellerWeight = 0.25
		w.QualityWeight = 0.20
		w.CompletenessWeight = 0.15
		w.SourceWeight = 0.15
	}
	if w.AnomalyDiscount <= 0 {
		w.AnomalyDiscount = 0.5
	}
	return &Engine{
		rules:       rules,
		tracker:     baseline.New(an.WindowSize, an.MinSamples),
		anomaly:     an,
		weights:     w,
		reliability: opts.Reliability,
		minSamples:  an.MinSamples,
		nowFunc:     time.Now,
	}
}

// Tracker exposes the rolling baseline, e.g. for seeding from
// historical imports.
func (e *Engine) Tracker() *baseline.Tracker {
	return e.tracker
}

// Validate runs the full validation pipeline for one raw listing.
// Hard errors make the result invalid with no normalized output;
// warnings, anomaly scoring, and confidence scoring never do.
func (e *Engine) Validate(raw model.RawListing, mkt model.Marketplace) model.ValidationResult {
	start := e.nowFunc()
	var errs, warns []string

	eff := e.rules.For(string(mkt))

	// Field presence.
	for _, field := range eff.RequiredFields {
		if !fieldPresent(raw, field) {
			errs = append(errs, fmt.Sprintf("missing required field %q", field))
		}
	}

	// Type and format.
	var priceCents int64
	if raw.Price != "" {
		cents, err := ParsePriceCents(raw.Price)
		switch {
		case err != nil:
			errs = append(errs, fmt.Sprintf("price %q does not parse", raw.Price))
		case float64(cents)/100 < eff.MinPrice || float64(cents)/100 > eff.MaxPrice:
			errs = append(errs, fmt.Sprintf("price %.2f outside bounds [%.2f, %.2f]", float64(cents)/100, eff.MinPrice, eff.MaxPrice))
		default:
			priceCents = cents
		}
	}
	if raw.SourceURL != "" && !validURL(raw.SourceURL) {
		errs = append(errs, fmt.Sprintf("source URL %q does not parse", raw.SourceURL))
	}
	for _, photo := range raw.PhotoURLs {
		if !validURL(photo) {
			warns = append(warns, fmt.Sprintf("photo URL %q does not parse", photo))
		}
	}
	listedAt, endsAt, dateErrs := parseDates(raw)
	errs = append(errs, dateErrs...)

	// Business rules.
	title := NormalizeTitle(raw.Title)
	if raw.Title != "" {
		if len(title) < eff.MinTitleLen || len(title) > eff.MaxTitleLen {
			errs = append(errs, fmt.Sprintf("title length %d outside bounds [%d, %d]", len(title), eff.MinTitleLen, eff.MaxTitleLen))
		}
	}
	condition := NormalizeCondition(raw.Condition)
	if condition != "" && !containsFold(eff.AllowedConditions, condition) {
		warns = append(warns, fmt.Sprintf("unusual condition %q", raw.Condition))
	}
	if raw.SaleType == model.SaleFixed && raw.Bids > 0 {
		warns = append(warns, fmt.Sprintf("fixed-price listing reports %d bids", raw.Bids))
	}

	// Suspicious patterns: title/price hits are hard errors,
	// description/seller hits only warn.
	for _, hit := range scanText(raw.Title) {
		errs = append(errs, fmt.Sprintf("suspicious title content: %s", hit))
	}
	if raw.Price != "" && suspiciousPrice(raw.Price) {
		errs = append(errs, fmt.Sprintf("Suspicious price pattern: %q", raw.Price))
	}
	for _, hit := range scanText(raw.Description) {
		warns = append(warns, fmt.Sprintf("suspicious description content: %s", hit))
	}
	if raw.Seller != nil {
		for _, hit := range scanText(raw.Seller.Notes + " " + raw.Seller.Name) {
			warns = append(warns, fmt.Sprintf("suspicious seller content: %s", hit))
		}
	}

	meta := model.ValidationMeta{
		Marketplace: mkt,
		CheckedAt:   start.UTC(),
		Version:     model.ValidatorVersion,
	}

	if len(errs) > 0 {
		meta.Duration = e.nowFunc().Sub(start)
		return model.ValidationResult{
			Valid:    false,
			Errors:   errs,
			Warnings: warns,
			Meta:     meta,
		}
	}

	// Structurally valid: normalize, then score.
	norm := e.normalize(raw, mkt, priceCents, title, condition, listedAt, endsAt, &warns)

	anomalyScore := e.anomalyScore(norm)
	if anomalyScore > e.anomaly.WarnScore {
		warns = append(warns, fmt.Sprintf("anomalous metrics (score %.2f)", anomalyScore))
	}

	confidence := e.confidenceScore(norm, anomalyScore)
	norm.AnomalyScore = anomalyScore
	norm.Confidence = confidence

	// Baseline update happens last so a listing never scores against
	// its own observation.
	e.observe(norm)

	meta.Duration = e.nowFunc().Sub(start)
	norm.Validation = meta
	return model.ValidationResult{
		Valid:        true,
		Warnings:     warns,
		Confidence:   confidence,
		AnomalyScore: anomalyScore,
		Normalized:   norm,
		Meta:         meta,
	}
}

// normalize builds the storage-ready listing from the raw record.
func (e *Engine) normalize(raw model.RawListing, mkt model.Marketplace, priceCents int64, title, condition string, listedAt, endsAt *time.Time, warns *[]string) *model.NormalizedListing {
	norm := &model.NormalizedListing{
		ExternalID:  strings.TrimSpace(raw.ExternalID),
		Marketplace: mkt,
		Title:       title,
		PriceCents:  priceCents,
		Condition:   condition,
		Grade:       strings.TrimSpace(raw.Grade),
		SaleType:    raw.SaleType,
		SourceURL:   strings.TrimSpace(raw.SourceURL),
		Description: strings.TrimSpace(raw.Description),
		PhotoURLs:   raw.PhotoURLs,
		ListedAt:    listedAt,
		EndsAt:      endsAt,
		Views:       raw.Views,
		Watchers:    raw.Watchers,
		Bids:        raw.Bids,
	}

	if raw.ShippingCost != "" {
		cents, err := ParsePriceCents(raw.ShippingCost)
		if err != nil {
			*warns = append(*warns, fmt.Sprintf("shipping cost %q does not parse", raw.ShippingCost))
		} else {
			norm.ShippingCents = cents
		}
	}

	if raw.Seller != nil {
		norm.Seller.Name = strings.TrimSpace(raw.Seller.Name)
		score, err := ParseNumber(raw.Seller.FeedbackScore)
		if err != nil {
			*warns = append(*warns, fmt.Sprintf("seller feedback score %q does not parse", raw.Seller.FeedbackScore))
		}
		norm.Seller.FeedbackScore = score
		pct, err := ParseNumber(raw.Seller.FeedbackPercent)
		if err != nil {
			*warns = append(*warns, fmt.Sprintf("seller feedback percent %q does not parse", raw.Seller.FeedbackPercent))
		}
		norm.Seller.FeedbackPercent = pct
	}

	return norm
}

// anomalyScore computes the mean per-metric outlier score. Metrics
// whose baseline has too few samples are skipped entirely; an empty
// baseline therefore yields a neutral zero.
func (e *Engine) anomalyScore(listing *model.NormalizedListing) float64 {
	mkt := string(listing.Marketplace)
	type probe struct {
		metric    baseline.Metric
		value     float64
		threshold float64
		enabled   bool
	}
	// Engagement metrics only participate when reported; many sources
	// never populate them and a stream of zeros would mask real
	// outliers.
	probes := []probe{
		{baseline.MetricPrice, float64(listing.PriceCents) / 100, e.anomaly.PriceSigma, true},
		{baseline.MetricViews, float64(listing.Views), e.anomaly.VolumeSigma, listing.Views > 0},
		{baseline.MetricWatchers, float64(listing.Watchers), e.anomaly.VolumeSigma, listing.Watchers > 0},
		{baseline.MetricBids, float64(listing.Bids), e.anomaly.VolumeSigma, listing.Bids > 0},
		{baseline.MetricSellerScore, listing.Seller.FeedbackScore, e.anomaly.SellerSigma, listing.Seller.FeedbackScore > 0},
	}

	var sum float64
	var computed int
	for _, p := range probes {
		if !p.enabled {
			continue
		}
		z, ok := e.tracker.ZScore(mkt, p.metric, p.value)
		if !ok {
			continue
		}
		score := math.Min(math.Abs(z)/p.threshold, 1.0)
		sum += score
		computed++
	}
	if computed == 0 {
		return 0
	}
	return sum / float64(computed)
}

// observe feeds a validated listing's metrics into the baseline.
func (e *Engine) observe(listing *model.NormalizedListing) {
	mkt := string(listing.Marketplace)
	e.tracker.Observe(mkt, baseline.MetricPrice, float64(listing.PriceCents)/100)
	if listing.Views > 0 {
		e.tracker.Observe(mkt, baseline.MetricViews, float64(listing.Views))
	}
	if listing.Watchers > 0 {
		e.tracker.Observe(mkt, baseline.MetricWatchers, float64(listing.Watchers))
	}
	if listing.Bids > 0 {
		e.tracker.Observe(mkt, baseline.MetricBids, float64(listing.Bids))
	}
	if listing.Seller.FeedbackScore > 0 {
		e.tracker.Observe(mkt, baseline.MetricSellerScore, listing.Seller.FeedbackScore)
	}
}

// parseDates validates the optional listed/end dates.
func parseDates(raw model.RawListing) (listedAt, endsAt *time.Time, errs []string) {
	if raw.ListedAt != "" {
		t, err := ParseDate(raw.ListedAt)
		if err != nil {
			errs = append(errs, fmt.Sprintf("listed date %q does not parse", raw.ListedAt))
		} else {
			listedAt = &t
		}
	}
	if raw.EndsAt != "" {
		t, err := ParseDate(raw.EndsAt)
		if err != nil {
			errs = append(errs, fmt.Sprintf("end date %q does not parse", raw.EndsAt))
		} else {
			endsAt = &t
		}
	}
	return listedAt, endsAt, errs
}

// fieldPresent resolves a required-field name against the raw listing.
// Names outside the fixed set fall through to the metadata block,
// which is where marketplace-specific fields like Heritage lot numbers
// live.
func fieldPresent(raw model.RawListing, field string) bool {
	switch field {
	case "external_id":
		return strings.TrimSpace(raw.ExternalID) != ""
	case "title":
		return strings.TrimSpace(raw.Title) != ""
	case "price":
		return strings.TrimSpace(raw.Price) != ""
	case "source_url":
		return strings.TrimSpace(raw.SourceURL) != ""
	case "condition":
		return strings.TrimSpace(raw.Condition) != ""
	case "grade":
		return strings.TrimSpace(raw.Grade) != ""
	case "description":
		return strings.TrimSpace(raw.Description) != ""
	case "sale_type":
		return raw.SaleType != ""
	case "seller_info":
		return raw.Seller != nil
	default:
		v, ok := raw.Metadata[field]
		if !ok {
			return false
		}
		if s, isStr := v.(string); isStr {
			return strings.TrimSpace(s) != ""
		}
		return v != nil
	}
}

func validURL(raw string) bool {
	u, err := url.ParseRequestURI(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}
