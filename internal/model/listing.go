// Package model defines the core listing and result types shared across
// the collection pipeline.
package model

import (
	"time"
)

// Marketplace identifies one external comic-sale venue.
type Marketplace string

const (
	MarketplaceEBay         Marketplace = "ebay"
	MarketplaceWhatnot      Marketplace = "whatnot"
	MarketplaceComicConnect Marketplace = "comicconnect"
	MarketplaceHeritage     Marketplace = "heritage"
	MarketplaceMyComicShop  Marketplace = "mycomicshop"
	MarketplaceAmazon       Marketplace = "amazon"
)

// AllMarketplaces returns every supported marketplace in stable order.
func AllMarketplaces() []Marketplace {
	return []Marketplace{
		MarketplaceEBay,
		MarketplaceWhatnot,
		MarketplaceComicConnect,
		MarketplaceHeritage,
		MarketplaceMyComicShop,
		MarketplaceAmazon,
	}
}

// Valid reports whether m is a supported marketplace.
func (m Marketplace) Valid() bool {
	switch m {
	case MarketplaceEBay, MarketplaceWhatnot, MarketplaceComicConnect,
		MarketplaceHeritage, MarketplaceMyComicShop, MarketplaceAmazon:
		return true
	}
	return false
}

// SaleType describes how a listing is offered.
type SaleType string

const (
	SaleAuction SaleType = "auction"
	SaleFixed   SaleType = "fixed"
	SaleLive    SaleType = "live"
)

// RawSeller holds seller fields exactly as a scraper reported them.
// Numeric subfields stay strings until validation coerces them.
type RawSeller struct {
	Name            string `json:"name,omitempty"`
	FeedbackScore   string `json:"feedback_score,omitempty"`
	FeedbackPercent string `json:"feedback_percent,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// RawListing is an unvalidated record reported by a source scraper.
// It exists only in memory until validated or discarded. String fields
// that must parse (price, dates) are kept raw so the validation engine
// owns the parsing.
type RawListing struct {
	ExternalID   string         `json:"external_id"`
	Title        string         `json:"title"`
	Price        string         `json:"price"`
	Marketplace  Marketplace    `json:"marketplace"`
	SourceURL    string         `json:"source_url"`
	Condition    string         `json:"condition,omitempty"`
	Grade        string         `json:"grade,omitempty"`
	SaleType     SaleType       `json:"sale_type,omitempty"`
	Description  string         `json:"description,omitempty"`
	Seller       *RawSeller     `json:"seller,omitempty"`
	PhotoURLs    []string       `json:"photo_urls,omitempty"`
	ShippingCost string         `json:"shipping_cost,omitempty"`
	ListedAt     string         `json:"listed_at,omitempty"`
	EndsAt       string         `json:"ends_at,omitempty"`
	Views        int            `json:"views,omitempty"`
	Watchers     int            `json:"watchers,omitempty"`
	Bids         int            `json:"bids,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// NormalizedSeller is the seller block after numeric coercion.
type NormalizedSeller struct {
	Name            string  `json:"name,omitempty"`
	FeedbackScore   float64 `json:"feedback_score"`
	FeedbackPercent float64 `json:"feedback_percent"`
}

// NormalizedListing is a validated, normalized listing ready for
// storage. Money is kept in cents to avoid float drift downstream.
type NormalizedListing struct {
	ExternalID    string           `json:"external_id"`
	Marketplace   Marketplace      `json:"marketplace"`
	Title         string           `json:"title"`
	PriceCents    int64            `json:"price_cents"`
	Condition     string           `json:"condition,omitempty"`
	Grade         string           `json:"grade,omitempty"`
	SaleType      SaleType         `json:"sale_type,omitempty"`
	SourceURL     string           `json:"source_url"`
	Description   string           `json:"description,omitempty"`
	Seller        NormalizedSeller `json:"seller"`
	PhotoURLs     []string         `json:"photo_urls,omitempty"`
	ShippingCents int64            `json:"shipping_cents"`
	ListedAt      *time.Time       `json:"listed_at,omitempty"`
	EndsAt        *time.Time       `json:"ends_at,omitempty"`
	Views         int              `json:"views"`
	Watchers      int              `json:"watchers"`
	Bids          int              `json:"bids"`
	Confidence    float64          `json:"confidence"`
	AnomalyScore  float64          `json:"anomaly_score"`
	Validation    ValidationMeta   `json:"validation"`
}
