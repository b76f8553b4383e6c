package domain

import "fmt"

// Stored attribute names. These are the persisted wire names shared with the
// other tools reading the records table.
const (
	AttrID             = "id"
	AttrIsDraft        = "isDraft"
	AttrCreatedAt      = "createdAt"
	AttrOrgURL         = "orgUrl"
	AttrOrgPlatform    = "orgPlatform"
	AttrIsImageChanged = "isImageChanged"
	AttrIsTitleChanged = "isTitleChanged"
	AttrIsListed       = "isListed"
	AttrIsListedGSI    = "isListedGsi"
	AttrIsOrgLive      = "isOrgLive"
	AttrScanCount      = "scanCount"
)

// Keyspace builds composite record keys: <namespace>#<operator>#<originPrefix>-<sourceId>.
type Keyspace struct {
	Namespace    string
	Operator     string
	OriginPrefix string
}

// SKU is the destination stock-keeping unit for a source item.
func (k Keyspace) SKU(sourceID string) string {
	return k.OriginPrefix + "-" + sourceID
}

// Key returns the record key for a source item.
func (k Keyspace) Key(sourceID string) string {
	return fmt.Sprintf("%s#%s#%s", k.Namespace, k.Operator, k.SKU(sourceID))
}

// Record is the part of a stored processing record that dedup decisions read.
// Missing flags decode as false.
type Record struct {
	ID             string `dynamodbav:"id" json:"id"`
	IsDraft        bool   `dynamodbav:"isDraft" json:"isDraft"`
	IsImageChanged bool   `dynamodbav:"isImageChanged" json:"isImageChanged"`
	IsTitleChanged bool   `dynamodbav:"isTitleChanged" json:"isTitleChanged"`
	IsListed       bool   `dynamodbav:"isListed" json:"isListed"`
}

// Banned reports a ban record.
func (r Record) Banned() bool {
	return r.IsDraft
}

// InSync reports a listing whose source content has not changed since publishing.
func (r Record) InSync() bool {
	return !r.IsImageChanged && !r.IsTitleChanged
}

// Settled reports whether the item needs no further processing.
func (r Record) Settled() bool {
	return r.Banned() || r.InSync()
}

// Attributes is a flat set of stored attribute values.
type Attributes map[string]any

// UpsertRequest merges Overwrite unconditionally and CreateOnly only where the
// attribute is not yet present on the record.
type UpsertRequest struct {
	Key        string
	Overwrite  Attributes
	CreateOnly Attributes
}

// BanRecord permanently excludes a source item.
type BanRecord struct {
	OrgURL      string
	OrgPlatform string
	CreatedAt   string
}

// Upsert builds the store write for the ban.
func (b BanRecord) Upsert(key string) UpsertRequest {
	return UpsertRequest{
		Key: key,
		Overwrite: Attributes{
			AttrIsDraft:     true,
			AttrOrgURL:      b.OrgURL,
			AttrOrgPlatform: b.OrgPlatform,
			AttrCreatedAt:   b.CreatedAt,
		},
	}
}

// ExtraParam holds facets derived from the source detail.
type ExtraParam struct {
	IsAuction       bool     `dynamodbav:"isAuction" json:"isAuction"`
	BidCount        int64    `dynamodbav:"bidCount" json:"bidCount"`
	LikeCount       int64    `dynamodbav:"likeCount" json:"likeCount"`
	IsPayOnDelivery bool     `dynamodbav:"isPayOnDelivery" json:"isPayOnDelivery"`
	RateCount       int64    `dynamodbav:"rateCount" json:"rateCount"`
	ItemCategory    []string `dynamodbav:"itemCategory" json:"itemCategory"`
	Brand           string   `dynamodbav:"brand" json:"brand"`
	ItemCondition   string   `dynamodbav:"itemCondition" json:"itemCondition"`
	ShippedFrom     string   `dynamodbav:"shippedFrom" json:"shippedFrom"`
	ShippingMethod  string   `dynamodbav:"shippingMethod" json:"shippingMethod"`
	ShippedWithin   string   `dynamodbav:"shippedWithin" json:"shippedWithin"`
	SellerID        string   `dynamodbav:"sellerId" json:"sellerId"`
	LastUpdated     string   `dynamodbav:"lastUpdated" json:"lastUpdated"`
	Created         int64    `dynamodbav:"created" json:"created"`
	Updated         int64    `dynamodbav:"updated" json:"updated"`
}

// ListingRecord is the persisted snapshot of a published item.
type ListingRecord struct {
	OrgPlatform          string
	OrgURL               string
	OrgTitle             string
	OrgPrice             float64
	OrgImageURLs         []string
	OrgExtraParam        ExtraParam
	SKU                  string
	ImageURLs            []string
	Username             string
	WeightGram           float64
	BoxSizeCm            []float64
	Title                string
	Description          string
	Category             string
	StoreCategory        string
	Condition            string
	ConditionDescription string
	Aspects              map[string][]string
	CreatedAt            string
}

// Upsert builds the store write for the listing, including bookkeeping defaults.
func (l ListingRecord) Upsert(key string) UpsertRequest {
	return UpsertRequest{
		Key: key,
		Overwrite: Attributes{
			"orgPlatform":              l.OrgPlatform,
			"orgUrl":                   l.OrgURL,
			"orgTitle":                 l.OrgTitle,
			"orgPrice":                 l.OrgPrice,
			"orgImageUrls":             l.OrgImageURLs,
			"orgExtraParam":            l.OrgExtraParam,
			"ebaySku":                  l.SKU,
			"ebayImageUrls":            l.ImageURLs,
			"username":                 l.Username,
			"weightGram":               l.WeightGram,
			"boxSizeCm":                l.BoxSizeCm,
			"ebayTitle":                l.Title,
			"ebayDescription":          l.Description,
			"ebayCategory":             l.Category,
			"ebayStoreCategory":        l.StoreCategory,
			"ebayCondition":            l.Condition,
			"ebayConditionDescription": l.ConditionDescription,
			"ebayAspectParam":          l.Aspects,
			AttrIsDraft:                false,
			AttrIsImageChanged:         false,
			AttrIsTitleChanged:         false,
			AttrIsListed:               true,
			AttrIsListedGSI:            1,
			AttrIsOrgLive:              true,
		},
		CreateOnly: Attributes{
			AttrCreatedAt: l.CreatedAt,
			AttrScanCount: 0,
		},
	}
}
