package remote

import (
	"context"

	"ResaleScanner/internal/domain"
)

// Role names used in logs and metrics.
const (
	RolePlanner         = "planner"
	RoleSearch          = "search"
	RoleDetail          = "detail"
	RoleEligibility     = "eligibility"
	RoleImages          = "images"
	RoleModeration      = "moderation"
	RoleContent         = "content"
	RoleContentFallback = "content_fallback"
	RoleShortenTitle    = "shorten_title"
	RoleChooseStore     = "choose_store"
	RoleOffer           = "offer"
	RolePublish         = "publish"
)

// Functions lists the configured remote function references.
type Functions struct {
	Planner         Function
	Search          Function
	Detail          Function
	Eligibility     Function
	Images          Function
	Moderation      Function
	Content         Function
	ContentFallback Function
	ShortenTitle    Function
	ChooseStore     Function
	Offer           Function
	Publish         Function
}

// Images is the image processor's result.
type Images struct {
	URLs        []string `json:"r2ImageUrls"`
	Base64Files []string `json:"base64Images"`
}

// Moderation is the moderation function's verdict.
type Moderation struct {
	Blocked     bool `json:"blocked"`
	IsAllPassed bool `json:"isAllPassed"`
}

// OfferRequest asks for the destination pricing and policy fragments.
type OfferRequest struct {
	ID       string  `json:"id"`
	Account  string  `json:"account"`
	OrgPrice float64 `json:"orgPrice"`
	domain.Shipping
}

// Amount is a destination currency amount.
type Amount struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

// PricingSummary carries the listing price.
type PricingSummary struct {
	Price Amount `json:"price"`
}

// BestOfferTerms toggles best-offer negotiation.
type BestOfferTerms struct {
	BestOfferEnabled bool `json:"bestOfferEnabled"`
}

// ListingPolicies names the destination business policies.
type ListingPolicies struct {
	FulfillmentPolicyID string         `json:"fulfillmentPolicyId"`
	PaymentPolicyID     string         `json:"paymentPolicyId"`
	ReturnPolicyID      string         `json:"returnPolicyId"`
	BestOfferTerms      BestOfferTerms `json:"bestOfferTerms"`
}

// OfferPart is the offer builder's result; it is merged into Offer.
type OfferPart struct {
	PricingSummary  PricingSummary  `json:"pricingSummary"`
	ListingPolicies ListingPolicies `json:"listingPolicies"`
}

// ShipToLocationAvailability is the quantity on hand.
type ShipToLocationAvailability struct {
	Quantity int `json:"quantity"`
}

// Availability wraps ShipToLocationAvailability.
type Availability struct {
	ShipToLocationAvailability ShipToLocationAvailability `json:"shipToLocationAvailability"`
}

// Product is the destination product block.
type Product struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	ImageURLs   []string            `json:"imageUrls"`
	Aspects     map[string][]string `json:"aspects"`
}

// InventoryItem is the destination inventory payload.
type InventoryItem struct {
	Availability         Availability `json:"availability"`
	Condition            string       `json:"condition"`
	Product              Product      `json:"product"`
	ConditionDescription string       `json:"conditionDescription,omitempty"`
}

// Offer is the destination offer payload.
type Offer struct {
	SKU               string `json:"sku"`
	MarketplaceID     string `json:"marketplaceId"`
	Format            string `json:"format"`
	AvailableQuantity int    `json:"availableQuantity"`
	CategoryID        string `json:"categoryId"`
	OfferPart
	MerchantLocationKey string   `json:"merchantLocationKey"`
	StoreCategoryNames  []string `json:"storeCategoryNames"`
}

// PublishRequest lists one item on the destination marketplace.
type PublishRequest struct {
	SKU       string        `json:"sku"`
	Inventory InventoryItem `json:"inventoryPayload"`
	Offer     Offer         `json:"offerPayload"`
	Account   string        `json:"account"`
}

// Service exposes each remote function as a typed call.
type Service struct {
	client *Client
	fns    Functions
}

// NewService binds the client to the configured references.
func NewService(client *Client, fns Functions) *Service {
	return &Service{client: client, fns: fns}
}

// Plan asks the planner for the next search parameters.
func (s *Service) Plan(ctx context.Context) (domain.SearchCriteria, error) {
	var out domain.SearchCriteria
	err := s.client.Call(ctx, s.fns.Planner, struct{}{}, &out)
	return out, err
}

// Search returns the candidates matching criteria.
func (s *Service) Search(ctx context.Context, criteria domain.SearchCriteria) ([]domain.Candidate, error) {
	var out []domain.Candidate
	err := s.client.Call(ctx, s.fns.Search, criteria, &out)
	return out, err
}

// Detail fetches one source listing.
func (s *Service) Detail(ctx context.Context, id string) (domain.ItemDetail, error) {
	var out domain.ItemDetail
	err := s.client.Call(ctx, s.fns.Detail, map[string]string{"id": id}, &out)
	return out, err
}

// Eligible reports whether the item may be listed at all.
func (s *Service) Eligible(ctx context.Context, item domain.ItemDetail) (bool, error) {
	var out struct {
		IsEligible bool `json:"isEligible"`
	}
	err := s.client.Call(ctx, s.fns.Eligibility, map[string]any{"item": item}, &out)
	return out.IsEligible, err
}

// ProcessImages uploads normalised copies of the item photos.
func (s *Service) ProcessImages(ctx context.Context, id string, urls []string) (Images, error) {
	var out Images
	err := s.client.Call(ctx, s.fns.Images, map[string]any{"id": id, "imageUrls": urls}, &out)
	return out, err
}

// Moderate checks the thumbnail and detail against content rules.
func (s *Service) Moderate(ctx context.Context, thumbnail string, item domain.ItemDetail) (Moderation, error) {
	var out Moderation
	err := s.client.Call(ctx, s.fns.Moderation, map[string]any{"thumbnailBase64": thumbnail, "item": item}, &out)
	return out, err
}

// GenerateContent runs the primary content generator.
func (s *Service) GenerateContent(ctx context.Context, images []string, item domain.ItemDetail) (domain.GeneratedContent, error) {
	return s.generate(ctx, s.fns.Content, images, item)
}

// GenerateContentFallback runs the alternate generator used after a policy refusal.
func (s *Service) GenerateContentFallback(ctx context.Context, images []string, item domain.ItemDetail) (domain.GeneratedContent, error) {
	return s.generate(ctx, s.fns.ContentFallback, images, item)
}

func (s *Service) generate(ctx context.Context, fn Function, images []string, item domain.ItemDetail) (domain.GeneratedContent, error) {
	var out domain.GeneratedContent
	err := s.client.Call(ctx, fn, map[string]any{"imagesBase64": images, "item": item}, &out)
	return out, err
}

// ShortenTitle compresses an overlong listing title.
func (s *Service) ShortenTitle(ctx context.Context, id, title string) (string, error) {
	var out struct {
		Title string `json:"title"`
	}
	err := s.client.Call(ctx, s.fns.ShortenTitle, map[string]string{"id": id, "title": title}, &out)
	return out.Title, err
}

// ChooseStore picks the destination store for a title.
func (s *Service) ChooseStore(ctx context.Context, title string) (string, error) {
	var out struct {
		Store string `json:"store"`
	}
	err := s.client.Call(ctx, s.fns.ChooseStore, map[string]string{"title": title}, &out)
	return out.Store, err
}

// BuildOffer returns pricing and policy fragments for the offer.
func (s *Service) BuildOffer(ctx context.Context, req OfferRequest) (OfferPart, error) {
	var out OfferPart
	err := s.client.Call(ctx, s.fns.Offer, req, &out)
	return out, err
}

// Publish lists the item and returns the destination listing id.
func (s *Service) Publish(ctx context.Context, req PublishRequest) (string, error) {
	var out struct {
		ListingID string `json:"listingId"`
	}
	err := s.client.Call(ctx, s.fns.Publish, req, &out)
	return out.ListingID, err
}

// RefreshSearch reinitialises the search function.
func (s *Service) RefreshSearch(ctx context.Context) {
	s.client.Refresh(ctx, s.fns.Search)
}

// RefreshDetail reinitialises the detail function.
func (s *Service) RefreshDetail(ctx context.Context) {
	s.client.Refresh(ctx, s.fns.Detail)
}
