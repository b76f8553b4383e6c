package usecase

import (
	"bytes"
	"fmt"
	"html/template"
	"math"
	"sort"
	"strconv"
	"time"
	"unicode/utf8"

	"ResaleScanner/internal/domain"
	"ResaleScanner/internal/remote"
)

const (
	maxTitleLength   = 80
	maxAspectLength  = 65
	maxAspectValues  = 30
	maxPackageWeight = 8000
	maxVolumetric    = 12
	volumetricDivide = 5000
	maxDimension     = 80

	createdAtLayout = "2006-01-02 15:04:05"

	// StoreA and StoreB are the two destination stores; StoreUnpinned means the
	// planner left the choice to the store chooser.
	StoreA        = "A"
	StoreB        = "B"
	StoreUnpinned = "X"

	deployEnvDev = "dev"
)

// ManufactureAspect is appended to every aspect set.
const ManufactureAspect = "Country/Region of Manufacture"

// ListingSettings are the static values stamped on every listing.
type ListingSettings struct {
	Platform         string
	OriginURLPrefix  string
	Category         string
	StoreCategory    string
	Condition        string
	MarketplaceID    string
	Format           string
	MerchantLocation string
	DeployEnv        string
	Location         *time.Location
}

// DefaultListingSettings mirrors the production listing profile.
func DefaultListingSettings() ListingSettings {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		loc = time.FixedZone("JST", 9*60*60)
	}
	return ListingSettings{
		Platform:         "merc",
		OriginURLPrefix:  "https://jp.mercari.com/item/",
		Category:         "69528",
		StoreCategory:    "/Anime Merchandise",
		Condition:        "USED_EXCELLENT",
		MarketplaceID:    "EBAY_US",
		Format:           "FIXED_PRICE",
		MerchantLocation: "main-warehouse",
		Location:         loc,
	}
}

// OriginURL is the source listing page.
func (s ListingSettings) OriginURL(id string) string {
	return s.OriginURLPrefix + id
}

// CreatedAt formats t the way records are stamped.
func (s ListingSettings) CreatedAt(t time.Time) string {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(createdAtLayout)
}

// Identity is the destination account and the operator username stored with it.
type Identity struct {
	Account  string
	Username string
}

// ResolveIdentity maps the deploy mode and chosen store to an identity.
func ResolveIdentity(deployEnv, store string) Identity {
	switch {
	case deployEnv == deployEnvDev:
		return Identity{Account: "test", Username: "test"}
	case store == StoreA:
		return Identity{Account: "main", Username: "naoto"}
	default:
		return Identity{Account: "sub", Username: "sub"}
	}
}

func knownStore(store string) bool {
	return store == StoreA || store == StoreB
}

func pinned(store string) bool {
	return store != "" && store != StoreUnpinned
}

// TitleTooLong reports whether the title needs shortening.
func TitleTooLong(title string) bool {
	return utf8.RuneCountInString(title) > maxTitleLength
}

// PackageTooBig applies the carrier weight and size limits.
func PackageTooBig(s domain.Shipping) bool {
	box := s.BoxDimensions
	volumetric := (box.Width * box.Height * box.Length) / volumetricDivide
	return s.Weight > maxPackageWeight ||
		volumetric > maxVolumetric ||
		math.Max(box.Width, math.Max(box.Height, box.Length)) > maxDimension
}

// FilterAspects keeps the generated item specifics the destination accepts and
// normalises every value to a list.
func FilterAspects(specifics map[string]any) map[string][]string {
	out := make(map[string][]string, len(specifics)+1)
	for name, value := range specifics {
		if values, ok := aspectValues(value); ok {
			out[name] = values
		}
	}
	out[ManufactureAspect] = []string{"Japan"}
	return out
}

func aspectValues(value any) ([]string, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case string:
		if v == "" || utf8.RuneCountInString(v) > maxAspectLength {
			return nil, false
		}
		return []string{v}, true
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return aspectList(items)
	case []any:
		return aspectList(v)
	case float64:
		return []string{strconv.FormatFloat(v, 'f', -1, 64)}, true
	case bool:
		return []string{strconv.FormatBool(v)}, true
	case map[string]any:
		return nil, false
	default:
		return []string{fmt.Sprint(v)}, true
	}
}

func aspectList(items []any) ([]string, bool) {
	if len(items) == 0 {
		return nil, false
	}
	values := make([]string, 0, min(len(items), maxAspectValues))
	for _, item := range items {
		s, ok := item.(string)
		if !ok || s == "" || utf8.RuneCountInString(s) > maxAspectLength {
			return nil, false
		}
		if len(values) < maxAspectValues {
			values = append(values, s)
		}
	}
	return values, true
}

// ExtraParams derives the facets stored alongside the original listing.
func ExtraParams(item domain.ItemDetail) domain.ExtraParam {
	categories := make([]string, 0, len(item.ParentCategories)+1)
	for _, c := range item.ParentCategories {
		categories = append(categories, c.Name)
	}
	categories = append(categories, item.Category.Name)

	var brand string
	if item.Brand != nil {
		brand = item.Brand.Name
	}

	var bids int64
	if item.AuctionInfo != nil {
		if n, ok := item.AuctionInfo["total_bids"].(float64); ok {
			bids = int64(n)
		}
	}

	return domain.ExtraParam{
		IsAuction:       item.AuctionInfo != nil,
		BidCount:        bids,
		LikeCount:       item.NumLikes,
		IsPayOnDelivery: item.ShippingPayer.ID != 2,
		RateCount:       item.Seller.NumSellItems,
		ItemCategory:    categories,
		Brand:           brand,
		ItemCondition:   item.Condition.Name,
		ShippedFrom:     item.ShippingFromArea.Name,
		ShippingMethod:  item.ShippingMethod.Name,
		ShippedWithin:   item.ShippingDuration.Name,
		SellerID:        fmt.Sprintf("/user/profile/%d", item.Seller.ID),
		LastUpdated:     "X",
		Created:         item.Created,
		Updated:         item.Updated,
	}
}

var descriptionTemplate = template.Must(template.New("description").Parse(
	`<div style="color: rgb(51, 51, 51); font-family: Arial;">` +
		`<p>{{.Promotion}}</p>` +
		`<h3 style="margin-top: 1.6em;">Condition</h3><p>{{.Condition}}</p>` +
		`<h3 style="margin-top: 1.6em;">Shipping</h3>` +
		`<p>Tracking numbers are provided to all orders. The item will be carefully packed to ensure it arrives safely.</p>` +
		`<h3 style="margin-top: 1.6em;">Customs and import charges</h3>` +
		`<p>Import duties, taxes, and charges are not included in the item price or shipping cost. ` +
		`Buyers are responsible for these charges. ` +
		`These charges may be collected by the carrier when you receive the item.</p>` +
		`</div>`))

// RenderDescription builds the listing description HTML.
func RenderDescription(content domain.ListingContent) (string, error) {
	var buf bytes.Buffer
	err := descriptionTemplate.Execute(&buf, struct {
		Promotion string
		Condition string
	}{
		Promotion: content.PromotionalText,
		Condition: content.ConditionDescription,
	})
	if err != nil {
		return "", fmt.Errorf("render description: %w", err)
	}
	return buf.String(), nil
}

// InventoryPayload builds the destination inventory item from the stored listing.
func InventoryPayload(rec domain.ListingRecord) remote.InventoryItem {
	return remote.InventoryItem{
		Availability: remote.Availability{
			ShipToLocationAvailability: remote.ShipToLocationAvailability{Quantity: 1},
		},
		Condition: rec.Condition,
		Product: remote.Product{
			Title:       rec.Title,
			Description: rec.Description,
			ImageURLs:   rec.ImageURLs,
			Aspects:     rec.Aspects,
		},
		ConditionDescription: rec.ConditionDescription,
	}
}

// OfferPayload merges the offer builder's fragment with the static offer fields.
func OfferPayload(rec domain.ListingRecord, settings ListingSettings, part remote.OfferPart) remote.Offer {
	return remote.Offer{
		SKU:                 rec.SKU,
		MarketplaceID:       settings.MarketplaceID,
		Format:              settings.Format,
		AvailableQuantity:   1,
		CategoryID:          rec.Category,
		OfferPart:           part,
		MerchantLocationKey: settings.MerchantLocation,
		StoreCategoryNames:  []string{rec.StoreCategory},
	}
}

func aspectNames(aspects map[string][]string) []string {
	names := make([]string, 0, len(aspects))
	for name := range aspects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
