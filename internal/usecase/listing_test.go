package usecase

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ResaleScanner/internal/domain"
	"ResaleScanner/internal/remote"
)

func TestFilterAspects(t *testing.T) {
	t.Parallel()

	thirtyFive := make([]any, 35)
	for i := range thirtyFive {
		thirtyFive[i] = "v"
	}

	got := FilterAspects(map[string]any{
		"Brand":       "Bandai",
		"Too long":    strings.Repeat("a", 70),
		"Exactly 65":  strings.Repeat("b", 65),
		"Empty":       "",
		"Missing":     nil,
		"Characters":  []any{"Goku", "Vegeta"},
		"Empty list":  []any{},
		"Blank item":  []any{"ok", ""},
		"Long item":   []any{"ok", strings.Repeat("c", 66)},
		"Number item": []any{"ok", 3.0},
		"Many":        thirtyFive,
		"Year":        1998.0,
		"Scale":       0.5,
		"Boxed":       true,
		"Dimensions":  map[string]any{"a": "b"},
	})

	want := map[string][]string{
		"Brand":      {"Bandai"},
		"Exactly 65": {strings.Repeat("b", 65)},
		"Characters": {"Goku", "Vegeta"},
		"Many":       strings.Split(strings.Repeat("v", 30), ""),
		"Year":       {"1998"},
		"Scale":      {"0.5"},
		"Boxed":      {"true"},
	}
	want[ManufactureAspect] = []string{"Japan"}
	assert.Equal(t, want, got)
}

func TestFilterAspectsCountsRunes(t *testing.T) {
	t.Parallel()

	got := FilterAspects(map[string]any{"Character": strings.Repeat("悟", 65)})
	assert.Contains(t, got, "Character")
}

func TestFilterAspectsAlwaysAddsManufacture(t *testing.T) {
	t.Parallel()

	assert.Equal(t, map[string][]string{ManufactureAspect: {"Japan"}}, FilterAspects(nil))

	got := FilterAspects(map[string]any{ManufactureAspect: "China"})
	assert.Equal(t, []string{"Japan"}, got[ManufactureAspect])
}

func TestPackageTooBig(t *testing.T) {
	t.Parallel()

	box := func(weight, l, w, h float64) domain.Shipping {
		return domain.Shipping{Weight: weight, BoxDimensions: domain.BoxDimensions{Length: l, Width: w, Height: h}}
	}

	cases := []struct {
		name     string
		shipping domain.Shipping
		want     bool
	}{
		{"heavy tiny box", box(8500, 1, 1, 1), true},
		{"limit weight", box(8000, 30, 20, 10), false},
		{"volumetric 25", box(1000, 50, 50, 50), true},
		{"volumetric 12 exactly", box(1000, 60, 50, 20), false},
		{"long side", box(100, 81, 5, 5), true},
		{"side at limit", box(100, 80, 5, 5), false},
		{"typical", box(900, 30, 20, 10), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, PackageTooBig(tc.shipping), tc.name)
	}
}

func TestTitleTooLong(t *testing.T) {
	t.Parallel()

	assert.True(t, TitleTooLong(strings.Repeat("a", 95)))
	assert.True(t, TitleTooLong(strings.Repeat("a", 81)))
	assert.False(t, TitleTooLong(strings.Repeat("a", 80)))
	assert.False(t, TitleTooLong(strings.Repeat("界", 80)))
}

func TestResolveIdentity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Identity{Account: "test", Username: "test"}, ResolveIdentity("dev", StoreA))
	assert.Equal(t, Identity{Account: "test", Username: "test"}, ResolveIdentity("dev", StoreB))
	assert.Equal(t, Identity{Account: "main", Username: "naoto"}, ResolveIdentity("prod", StoreA))
	assert.Equal(t, Identity{Account: "sub", Username: "sub"}, ResolveIdentity("prod", StoreB))
	assert.Equal(t, Identity{Account: "sub", Username: "sub"}, ResolveIdentity("", "unexpected"))
}

func TestRenderDescription(t *testing.T) {
	t.Parallel()

	html, err := RenderDescription(domain.ListingContent{
		PromotionalText:      "Rare <figure> & box",
		ConditionDescription: "Minor shelf wear.",
	})
	require.NoError(t, err)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	root := doc.Find("body > div")
	require.Equal(t, 1, root.Length())
	style, _ := root.Attr("style")
	assert.Equal(t, "color: rgb(51, 51, 51); font-family: Arial;", style)

	var headings []string
	root.Find("h3").Each(func(_ int, s *goquery.Selection) {
		headings = append(headings, s.Text())
	})
	assert.Equal(t, []string{"Condition", "Shipping", "Customs and import charges"}, headings)

	paragraphs := root.Find("p")
	assert.Equal(t, 4, paragraphs.Length())
	assert.Equal(t, "Rare <figure> & box", paragraphs.Eq(0).Text())
	assert.Equal(t, "Minor shelf wear.", paragraphs.Eq(1).Text())
	assert.NotContains(t, html, "<figure>")
}

func TestExtraParams(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(itemDetail("m1", domain.StatusOnSale))
	require.NoError(t, err)
	var item domain.ItemDetail
	require.NoError(t, json.Unmarshal(raw, &item))

	got := ExtraParams(item)
	assert.False(t, got.IsAuction)
	assert.Zero(t, got.BidCount)
	assert.False(t, got.IsPayOnDelivery)
	assert.Equal(t, int64(17), got.RateCount)
	assert.Equal(t, int64(8), got.LikeCount)
	assert.Equal(t, []string{"Hobby", "Anime", "Figures"}, got.ItemCategory)
	assert.Equal(t, "/user/profile/4242", got.SellerID)
	assert.Equal(t, "X", got.LastUpdated)
	assert.Equal(t, "Tokyo", got.ShippedFrom)
	assert.Equal(t, "2-3 days", got.ShippedWithin)
	assert.Empty(t, got.Brand)

	item.ShippingPayer.ID = 1
	item.AuctionInfo = map[string]any{"total_bids": 4.0}
	item.Brand = &domain.Brand{Name: "Bandai"}
	got = ExtraParams(item)
	assert.True(t, got.IsPayOnDelivery)
	assert.True(t, got.IsAuction)
	assert.Equal(t, int64(4), got.BidCount)
	assert.Equal(t, "Bandai", got.Brand)
}

func TestCreatedAtUsesConfiguredZone(t *testing.T) {
	t.Parallel()

	settings := DefaultListingSettings()
	at := time.Date(2026, 1, 5, 15, 3, 2, 0, time.UTC)
	assert.Equal(t, "2026-01-06 00:03:02", settings.CreatedAt(at))

	settings.Location = nil
	assert.Equal(t, "2026-01-05 15:03:02", settings.CreatedAt(at))
}

func TestInventoryPayloadOmitsEmptyConditionDescription(t *testing.T) {
	t.Parallel()

	rec := domain.ListingRecord{Title: "Figure", Condition: "USED_EXCELLENT", Aspects: map[string][]string{}}
	body, err := json.Marshal(InventoryPayload(rec))
	require.NoError(t, err)
	assert.NotContains(t, string(body), "conditionDescription")

	rec.ConditionDescription = "Scratched"
	body, err = json.Marshal(InventoryPayload(rec))
	require.NoError(t, err)
	assert.Contains(t, string(body), `"conditionDescription":"Scratched"`)
	assert.Contains(t, string(body), `"shipToLocationAvailability":{"quantity":1}`)
}

func TestOfferPayloadMergesPart(t *testing.T) {
	t.Parallel()

	part := remote.OfferPart{PricingSummary: remote.PricingSummary{Price: remote.Amount{Currency: "USD", Value: "12.00"}}}
	rec := domain.ListingRecord{SKU: "merc-m1", Category: "69528", StoreCategory: "/Anime Merchandise"}

	body, err := json.Marshal(OfferPayload(rec, DefaultListingSettings(), part))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "merc-m1", got["sku"])
	assert.EqualValues(t, 1, got["availableQuantity"])
	assert.Contains(t, got, "pricingSummary")
	assert.Contains(t, got, "listingPolicies")
	assert.Equal(t, []any{"/Anime Merchandise"}, got["storeCategoryNames"])
}
