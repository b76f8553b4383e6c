package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ResaleScanner/internal/domain"
	"ResaleScanner/internal/metrics"
	"ResaleScanner/internal/remote"
	"ResaleScanner/internal/throttle"
)

const (
	// DefaultItemType is the candidate type listed by the source marketplace itself.
	DefaultItemType = "ITEM_TYPE_MERCARI"
	// DefaultMinAge keeps freshly posted listings out of the pipeline.
	DefaultMinAge = 24 * time.Hour
	// DefaultMaxListed caps successful listings per search.
	DefaultMaxListed = 10
)

// CycleFunctions are the remote calls the controller makes on top of the pipeline.
type CycleFunctions interface {
	Plan(ctx context.Context) (domain.SearchCriteria, error)
	Search(ctx context.Context, criteria domain.SearchCriteria) ([]domain.Candidate, error)
	RefreshSearch(ctx context.Context)
}

var _ CycleFunctions = (*remote.Service)(nil)

// Stopper reports a requested shutdown.
type Stopper interface {
	Stopping() bool
}

// ItemProcessor runs one candidate to a terminal outcome.
type ItemProcessor interface {
	Process(ctx context.Context, cand domain.Candidate, pinnedStore string) (domain.Outcome, error)
}

// CycleDeps wires the search loop.
type CycleDeps struct {
	Functions CycleFunctions
	Pipeline  ItemProcessor
	Dedup     *DedupFilter
	Limiter   *throttle.Limiter
	Stopper   Stopper
	Clock     throttle.Clock
	Cooldown  time.Duration
	ItemType  string
	MinAge    time.Duration
	MaxListed int
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// CycleSummary counts what happened in one search cycle.
type CycleSummary struct {
	ID        string
	Searched  int
	Unique    int
	Fresh     int
	Filtered  int
	Listed    int
	Excluded  int
	Skipped   int
	Recovered bool
}

// SearchCycleController repeats plan, search, filter and process until stopped.
type SearchCycleController struct {
	fns       CycleFunctions
	pipeline  ItemProcessor
	dedup     *DedupFilter
	limiter   *throttle.Limiter
	stopper   Stopper
	clock     throttle.Clock
	cooldown  time.Duration
	itemType  string
	minAge    time.Duration
	maxListed int
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewCycleController applies defaults for zero-valued settings.
func NewCycleController(deps CycleDeps) *SearchCycleController {
	c := &SearchCycleController{
		fns:       deps.Functions,
		pipeline:  deps.Pipeline,
		dedup:     deps.Dedup,
		limiter:   deps.Limiter,
		stopper:   deps.Stopper,
		clock:     deps.Clock,
		cooldown:  deps.Cooldown,
		itemType:  deps.ItemType,
		minAge:    deps.MinAge,
		maxListed: deps.MaxListed,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
	}
	if c.clock == nil {
		c.clock = throttle.SystemClock{}
	}
	if c.limiter == nil {
		c.limiter = throttle.NewLimiter(throttle.SourceMinSpacing, throttle.SourceJitter, throttle.PublishSpacing,
			throttle.WithClock(c.clock))
	}
	if c.itemType == "" {
		c.itemType = DefaultItemType
	}
	if c.minAge == 0 {
		c.minAge = DefaultMinAge
	}
	if c.maxListed <= 0 {
		c.maxListed = DefaultMaxListed
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Run loops until the stopper reports shutdown. It returns nil on shutdown and
// the first unrecoverable error otherwise.
func (c *SearchCycleController) Run(ctx context.Context) error {
	for {
		if c.stopping() {
			c.logger.Info("search loop ended by shutdown")
			return nil
		}
		if _, err := c.RunOnce(ctx); err != nil {
			return err
		}
	}
}

// RunOnce executes a single search cycle.
func (c *SearchCycleController) RunOnce(ctx context.Context) (CycleSummary, error) {
	summary := CycleSummary{ID: uuid.NewString()}
	log := c.logger.With("cycle_id", summary.ID)
	c.metrics.ObserveCycle()

	criteria, err := c.fns.Plan(ctx)
	if err != nil {
		return summary, fmt.Errorf("plan search: %w", err)
	}
	log.Info("search criteria", "query", criteria.Query, "category", criteria.Category,
		"min_price", criteria.MinPrice, "store", criteria.Store)

	c.limiter.Source.Wait(ctx)
	found, err := c.fns.Search(ctx, criteria)
	c.limiter.Source.Mark()
	if err != nil {
		if !remote.Recoverable(err) {
			return summary, fmt.Errorf("search: %w", err)
		}
		log.Warn("search failed", "error", err)
		c.fns.RefreshSearch(ctx)
		c.clock.Sleep(c.cooldown)
		summary.Recovered = true
		return summary, nil
	}

	unique := UniqueByID(found)
	fresh := FreshCandidates(unique, c.itemType, c.clock.Now(), c.minAge)
	candidates := fresh
	if c.dedup != nil {
		candidates, err = c.dedup.Filter(ctx, fresh)
		if err != nil {
			return summary, err
		}
	}

	summary.Searched = len(found)
	summary.Unique = len(unique)
	summary.Fresh = len(fresh)
	summary.Filtered = len(candidates)
	c.metrics.ObserveCandidates("searched", summary.Searched)
	c.metrics.ObserveCandidates("unique", summary.Unique)
	c.metrics.ObserveCandidates("fresh", summary.Fresh)
	c.metrics.ObserveCandidates("filtered", summary.Filtered)
	log.Info("search results", "searched", summary.Searched, "filtered", summary.Filtered,
		"candidates", candidateIDs(candidates))

	for _, cand := range candidates {
		if summary.Listed >= c.maxListed {
			log.Info("listing cap reached for this search", "cap", c.maxListed)
			break
		}
		if c.stopping() {
			log.Info("item loop ended by shutdown")
			break
		}

		outcome, err := c.pipeline.Process(ctx, cand, criteria.Store)
		if err != nil {
			return summary, err
		}
		switch outcome {
		case domain.OutcomeListed:
			summary.Listed++
		case domain.OutcomeExcluded:
			summary.Excluded++
		default:
			summary.Skipped++
		}
	}

	log.Info("search cycle finished", "listed", summary.Listed, "excluded", summary.Excluded,
		"skipped", summary.Skipped)
	return summary, nil
}

func (c *SearchCycleController) stopping() bool {
	return c.stopper != nil && c.stopper.Stopping()
}

// UniqueByID drops repeated ids, keeping the first occurrence in order.
func UniqueByID(candidates []domain.Candidate) []domain.Candidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]domain.Candidate, 0, len(candidates))
	for _, cand := range candidates {
		if _, dup := seen[cand.ID]; dup {
			continue
		}
		seen[cand.ID] = struct{}{}
		out = append(out, cand)
	}
	return out
}

// FreshCandidates keeps candidates of itemType created at least minAge before now.
func FreshCandidates(candidates []domain.Candidate, itemType string, now time.Time, minAge time.Duration) []domain.Candidate {
	cutoff := now.Add(-minAge)
	out := make([]domain.Candidate, 0, len(candidates))
	for _, cand := range candidates {
		if cand.ItemType == itemType && !cand.Created().After(cutoff) {
			out = append(out, cand)
		}
	}
	return out
}

func candidateIDs(candidates []domain.Candidate) []string {
	ids := make([]string, len(candidates))
	for i, cand := range candidates {
		ids[i] = cand.ID
	}
	return ids
}
