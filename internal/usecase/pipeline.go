package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ResaleScanner/internal/domain"
	"ResaleScanner/internal/metrics"
	"ResaleScanner/internal/ports"
	"ResaleScanner/internal/remote"
	"ResaleScanner/internal/throttle"
)

// DefaultCooldown is the pause after a source API failure.
const DefaultCooldown = 10 * time.Second

// ItemFunctions are the remote steps of the per-item pipeline.
type ItemFunctions interface {
	Detail(ctx context.Context, id string) (domain.ItemDetail, error)
	Eligible(ctx context.Context, item domain.ItemDetail) (bool, error)
	ProcessImages(ctx context.Context, id string, urls []string) (remote.Images, error)
	Moderate(ctx context.Context, thumbnail string, item domain.ItemDetail) (remote.Moderation, error)
	GenerateContent(ctx context.Context, images []string, item domain.ItemDetail) (domain.GeneratedContent, error)
	GenerateContentFallback(ctx context.Context, images []string, item domain.ItemDetail) (domain.GeneratedContent, error)
	ShortenTitle(ctx context.Context, id, title string) (string, error)
	ChooseStore(ctx context.Context, title string) (string, error)
	BuildOffer(ctx context.Context, req remote.OfferRequest) (remote.OfferPart, error)
	Publish(ctx context.Context, req remote.PublishRequest) (string, error)
	RefreshDetail(ctx context.Context)
}

var _ ItemFunctions = (*remote.Service)(nil)

// PipelineDeps wires the collaborators of the item pipeline.
type PipelineDeps struct {
	Functions ItemFunctions
	Store     ports.RecordStore
	Limiter   *throttle.Limiter
	Keys      domain.Keyspace
	Listing   ListingSettings
	Clock     throttle.Clock
	Cooldown  time.Duration
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// ItemPipeline takes one candidate from detail fetch to publication.
type ItemPipeline struct {
	fns      ItemFunctions
	store    ports.RecordStore
	limiter  *throttle.Limiter
	keys     domain.Keyspace
	listing  ListingSettings
	clock    throttle.Clock
	cooldown time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewPipeline constructs the item pipeline.
func NewPipeline(deps PipelineDeps) *ItemPipeline {
	p := &ItemPipeline{
		fns:      deps.Functions,
		store:    deps.Store,
		limiter:  deps.Limiter,
		keys:     deps.Keys,
		listing:  deps.Listing,
		clock:    deps.Clock,
		cooldown: deps.Cooldown,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
	}
	if p.clock == nil {
		p.clock = throttle.SystemClock{}
	}
	if p.limiter == nil {
		p.limiter = throttle.NewLimiter(throttle.SourceMinSpacing, throttle.SourceJitter, throttle.PublishSpacing,
			throttle.WithClock(p.clock))
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	return p
}

// Process runs every step for cand and returns its terminal outcome. pinnedStore
// is the planner's store hint. Errors other than a recoverable detail fetch
// failure are returned unhandled.
func (p *ItemPipeline) Process(ctx context.Context, cand domain.Candidate, pinnedStore string) (domain.Outcome, error) {
	id := cand.ID
	log := p.logger.With("item_id", id)
	log.Info("processing item")

	p.limiter.Source.Wait(ctx)
	item, err := p.fns.Detail(ctx, id)
	p.limiter.Source.Mark()
	if err != nil {
		if !remote.Recoverable(err) {
			return "", fmt.Errorf("fetch detail %s: %w", id, err)
		}
		log.Warn("item detail fetch failed", "error", err)
		p.fns.RefreshDetail(ctx)
		p.clock.Sleep(p.cooldown)
		return p.done(domain.OutcomeTransientSkip), nil
	}

	if !item.OnSale() {
		log.Info("item is removed or sold out", "status", item.Status)
		return p.done(domain.OutcomeTransientSkip), nil
	}

	eligible, err := p.fns.Eligible(ctx, item)
	if err != nil {
		return "", fmt.Errorf("eligibility %s: %w", id, err)
	}
	if !eligible {
		return p.exclude(ctx, log, id, "ineligible")
	}

	images, err := p.fns.ProcessImages(ctx, id, item.Photos)
	if err != nil {
		return "", fmt.Errorf("process images %s: %w", id, err)
	}

	var thumbnail string
	if len(images.Base64Files) > 0 {
		thumbnail = images.Base64Files[0]
	}
	verdict, err := p.fns.Moderate(ctx, thumbnail, item)
	if err != nil {
		return "", fmt.Errorf("moderate %s: %w", id, err)
	}
	if !verdict.IsAllPassed {
		return p.exclude(ctx, log, id, "moderation")
	}

	content, err := p.fns.GenerateContent(ctx, images.Base64Files, item)
	if err != nil {
		return "", fmt.Errorf("generate content %s: %w", id, err)
	}
	if content.Blocked {
		log.Info("content generation blocked, using fallback")
		content, err = p.fns.GenerateContentFallback(ctx, images.Base64Files, item)
		if err != nil {
			return "", fmt.Errorf("generate fallback content %s: %w", id, err)
		}
	}

	if PackageTooBig(content.Shipping) {
		return p.exclude(ctx, log, id, "package_too_big")
	}

	title := content.Listing.Title
	if TitleTooLong(title) {
		log.Info("title too long, shortening", "length", len([]rune(title)))
		title, err = p.fns.ShortenTitle(ctx, id, title)
		if err != nil {
			return "", fmt.Errorf("shorten title %s: %w", id, err)
		}
	}

	store := pinnedStore
	if !pinned(store) {
		store, err = p.fns.ChooseStore(ctx, title)
		if err != nil {
			return "", fmt.Errorf("choose store %s: %w", id, err)
		}
	}
	if !knownStore(store) {
		log.Error("store selection is invalid", "store", store)
	}

	identity := ResolveIdentity(p.listing.DeployEnv, store)
	log.Info("identity resolved", "store", store, "account", identity.Account, "username", identity.Username)

	rec, err := p.assemble(id, item, images, content, title, identity)
	if err != nil {
		return "", err
	}
	log.Debug("listing assembled", "sku", rec.SKU, "aspects", aspectNames(rec.Aspects))

	if err := p.store.Upsert(ctx, rec.Upsert(p.keys.Key(id))); err != nil {
		return "", fmt.Errorf("persist listing %s: %w", id, err)
	}

	part, err := p.fns.BuildOffer(ctx, remote.OfferRequest{
		ID:       id,
		Account:  identity.Account,
		OrgPrice: item.Price,
		Shipping: content.Shipping,
	})
	if err != nil {
		return "", fmt.Errorf("build offer %s: %w", id, err)
	}

	p.limiter.Publish.Wait(ctx)
	listingID, err := p.fns.Publish(ctx, remote.PublishRequest{
		SKU:       rec.SKU,
		Inventory: InventoryPayload(rec),
		Offer:     OfferPayload(rec, p.listing, part),
		Account:   identity.Account,
	})
	p.limiter.Publish.Mark()
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", id, err)
	}

	log.Info("item listed", "listing_id", listingID, "sku", rec.SKU)
	return p.done(domain.OutcomeListed), nil
}

func (p *ItemPipeline) assemble(id string, item domain.ItemDetail, images remote.Images,
	content domain.GeneratedContent, title string, identity Identity) (domain.ListingRecord, error) {
	description, err := RenderDescription(content.Listing)
	if err != nil {
		return domain.ListingRecord{}, fmt.Errorf("assemble listing %s: %w", id, err)
	}

	box := content.Shipping.BoxDimensions
	return domain.ListingRecord{
		OrgPlatform:          p.listing.Platform,
		OrgURL:               p.listing.OriginURL(id),
		OrgTitle:             item.Name,
		OrgPrice:             item.Price,
		OrgImageURLs:         item.Photos,
		OrgExtraParam:        ExtraParams(item),
		SKU:                  p.keys.SKU(id),
		ImageURLs:            images.URLs,
		Username:             identity.Username,
		WeightGram:           content.Shipping.Weight,
		BoxSizeCm:            []float64{box.Length, box.Width, box.Height},
		Title:                title,
		Description:          description,
		Category:             p.listing.Category,
		StoreCategory:        p.listing.StoreCategory,
		Condition:            p.listing.Condition,
		ConditionDescription: content.Listing.ConditionDescription,
		Aspects:              FilterAspects(content.Listing.Specifics),
		CreatedAt:            p.listing.CreatedAt(p.clock.Now()),
	}, nil
}

func (p *ItemPipeline) exclude(ctx context.Context, log *slog.Logger, id, reason string) (domain.Outcome, error) {
	ban := domain.BanRecord{
		OrgURL:      p.listing.OriginURL(id),
		OrgPlatform: p.listing.Platform,
		CreatedAt:   p.listing.CreatedAt(p.clock.Now()),
	}
	if err := p.store.Upsert(ctx, ban.Upsert(p.keys.Key(id))); err != nil {
		return "", fmt.Errorf("ban %s: %w", id, err)
	}
	log.Info("item excluded", "reason", reason)
	return p.done(domain.OutcomeExcluded), nil
}

func (p *ItemPipeline) done(outcome domain.Outcome) domain.Outcome {
	p.metrics.ObserveOutcome(outcome)
	return outcome
}
