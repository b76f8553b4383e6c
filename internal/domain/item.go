package domain

import (
	"encoding/json"
	"time"
)

// StatusOnSale marks a source listing that can still be bought.
const StatusOnSale = "on_sale"

// SearchCriteria is produced by the planner function and forwarded to search untouched.
type SearchCriteria struct {
	Query    string  `json:"query"`
	Category string  `json:"category"`
	MinPrice float64 `json:"min_price"`
	Store    string  `json:"store"`
}

// Candidate is a lightweight reference returned by the source search.
type Candidate struct {
	ID        string `json:"id"`
	ItemType  string `json:"item_type"`
	CreatedAt int64  `json:"created"`
}

// Created returns the listing creation time.
func (c Candidate) Created() time.Time {
	return time.Unix(c.CreatedAt, 0)
}

// NamedRef is the {id, name} pair the source API uses for most lookups.
type NamedRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Seller describes the account selling the source listing.
type Seller struct {
	ID           int64         `json:"id"`
	NumSellItems int64         `json:"num_sell_items"`
	Ratings      SellerRatings `json:"ratings"`
	NumRatings   int64         `json:"num_ratings"`
}

// SellerRatings counts the seller's positive reviews.
type SellerRatings struct {
	Good int64 `json:"good"`
}

// Condition is the source listing's condition grade.
type Condition struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Subname string `json:"subname"`
}

// ShippingPayer tells who pays for shipping; id 2 is "seller pays".
type ShippingPayer struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// ShippingDuration is the dispatch window advertised by the seller.
type ShippingDuration struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	MinDays int64  `json:"min_days"`
	MaxDays int64  `json:"max_days"`
}

// Brand is optional on source listings.
type Brand struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	SubName string `json:"sub_name"`
}

// ItemDetail is the full snapshot of one source listing. The raw document is kept
// so remote steps receive exactly what the source API returned.
type ItemDetail struct {
	ID               string           `json:"id"`
	Seller           Seller           `json:"seller"`
	Status           string           `json:"status"`
	Name             string           `json:"name"`
	Price            float64          `json:"price"`
	Description      string           `json:"description"`
	Photos           []string         `json:"photos"`
	Category         NamedRef         `json:"item_category_ntiers"`
	ParentCategories []NamedRef       `json:"parent_categories_ntiers"`
	Condition        Condition        `json:"item_condition"`
	ShippingPayer    ShippingPayer    `json:"shipping_payer"`
	ShippingMethod   NamedRef         `json:"shipping_method"`
	ShippingFromArea NamedRef         `json:"shipping_from_area"`
	ShippingDuration ShippingDuration `json:"shipping_duration"`
	Brand            *Brand           `json:"item_brand,omitempty"`
	NumLikes         int64            `json:"num_likes"`
	NumComments      int64            `json:"num_comments"`
	Updated          int64            `json:"updated"`
	Created          int64            `json:"created"`
	AuctionInfo      map[string]any   `json:"auction_info,omitempty"`

	raw json.RawMessage
}

type itemDetailFields ItemDetail

// UnmarshalJSON decodes the typed view and retains the raw document.
func (d *ItemDetail) UnmarshalJSON(data []byte) error {
	var fields itemDetailFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*d = ItemDetail(fields)
	d.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON forwards the original document when one was decoded.
func (d ItemDetail) MarshalJSON() ([]byte, error) {
	if len(d.raw) > 0 {
		return d.raw, nil
	}
	return json.Marshal(itemDetailFields(d))
}

// OnSale reports whether the listing is still purchasable.
func (d ItemDetail) OnSale() bool {
	return d.Status == StatusOnSale
}

// BoxDimensions are centimetres.
type BoxDimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Shipping is the generated package estimate; weight is grams.
type Shipping struct {
	Weight        float64       `json:"weight"`
	BoxDimensions BoxDimensions `json:"box_dimensions"`
}

// ListingContent is the generated destination listing text.
type ListingContent struct {
	Title                string         `json:"listing_title_for_ebay_listing"`
	ConditionDescription string         `json:"item_condition_description_for_ebay_listing"`
	Specifics            map[string]any `json:"item_specifics_for_ebay_listing"`
	PromotionalText      string         `json:"promotional_text_for_ebay_listing"`
}

// GeneratedContent is the result of the content-generation step.
type GeneratedContent struct {
	Blocked  bool           `json:"blocked"`
	Shipping Shipping       `json:"shipping_weight_and_box_dimensions"`
	Listing  ListingContent `json:"information_for_ebay_listing"`
}

// Outcome is the terminal state of one candidate's pipeline run.
type Outcome string

const (
	OutcomeListed        Outcome = "listed"
	OutcomeExcluded      Outcome = "excluded"
	OutcomeTransientSkip Outcome = "transient_skip"
)
