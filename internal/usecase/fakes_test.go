package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"ResaleScanner/internal/domain"
	"ResaleScanner/internal/ports"
	"ResaleScanner/internal/remote"
	"ResaleScanner/internal/throttle"
)

var testFunctions = remote.Functions{
	Planner:         remote.Function{Role: remote.RolePlanner, Ref: "get-search"},
	Search:          remote.Function{Role: remote.RoleSearch, Ref: "merc-search"},
	Detail:          remote.Function{Role: remote.RoleDetail, Ref: "merc-item"},
	Eligibility:     remote.Function{Role: remote.RoleEligibility, Ref: "is-eligible"},
	Images:          remote.Function{Role: remote.RoleImages, Ref: "image-processor"},
	Moderation:      remote.Function{Role: remote.RoleModeration, Ref: "ai-check"},
	Content:         remote.Function{Role: remote.RoleContent, Ref: "ai-create"},
	ContentFallback: remote.Function{Role: remote.RoleContentFallback, Ref: "ai-create-gpt"},
	ShortenTitle:    remote.Function{Role: remote.RoleShortenTitle, Ref: "shorten-title"},
	ChooseStore:     remote.Function{Role: remote.RoleChooseStore, Ref: "choose-store"},
	Offer:           remote.Function{Role: remote.RoleOffer, Ref: "offer-part"},
	Publish:         remote.Function{Role: remote.RolePublish, Ref: "ebay-list"},
}

var testKeys = domain.Keyspace{Namespace: "ITEM", Operator: "naoto", OriginPrefix: "merc"}

// events is the shared call log of the fake transport and store.
type events struct {
	mu   sync.Mutex
	list []string
}

func (e *events) add(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, name)
}

func (e *events) snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.list...)
}

func (e *events) count(name string) int {
	n := 0
	for _, ev := range e.snapshot() {
		if ev == name {
			n++
		}
	}
	return n
}

type handler func(payload []byte) ports.InvokeResult

// fakeTransport routes invocations by function reference.
type fakeTransport struct {
	t        *testing.T
	log      *events
	handlers map[string]handler
	payloads map[string][][]byte
}

func newFakeTransport(t *testing.T, log *events) *fakeTransport {
	return &fakeTransport{t: t, log: log, handlers: map[string]handler{}, payloads: map[string][][]byte{}}
}

func (f *fakeTransport) on(ref string, h handler) {
	f.handlers[ref] = h
}

func (f *fakeTransport) Invoke(_ context.Context, function string, payload []byte) (ports.InvokeResult, error) {
	f.log.add("invoke:" + function)
	f.payloads[function] = append(f.payloads[function], payload)
	h, ok := f.handlers[function]
	if !ok {
		f.t.Errorf("unexpected invocation of %s", function)
		return ports.InvokeResult{}, fmt.Errorf("no handler for %s", function)
	}
	return h(payload), nil
}

func (f *fakeTransport) Refresh(_ context.Context, function string) error {
	f.log.add("refresh:" + function)
	return nil
}

func (f *fakeTransport) lastPayload(t *testing.T, ref string, out any) {
	t.Helper()
	calls := f.payloads[ref]
	if len(calls) == 0 {
		t.Fatalf("%s was never invoked", ref)
	}
	if err := json.Unmarshal(calls[len(calls)-1], out); err != nil {
		t.Fatalf("decode %s payload: %v", ref, err)
	}
}

func success(result any) handler {
	return func([]byte) ports.InvokeResult {
		body, err := json.Marshal(map[string]any{"success": true, "result": result})
		if err != nil {
			panic(err)
		}
		return ports.InvokeResult{Payload: body}
	}
}

func failure() handler {
	return func([]byte) ports.InvokeResult {
		return ports.InvokeResult{Payload: []byte(`{"success":false}`)}
	}
}

func crashed(message string) handler {
	return func([]byte) ports.InvokeResult {
		return ports.InvokeResult{Payload: []byte(`{"errorMessage":"` + message + `","errorType":"Error"}`)}
	}
}

// memStore is an in-memory RecordStore with the same merge rules as the real stores.
type memStore struct {
	log        *events
	limit      int
	records    map[string]domain.Attributes
	upserts    []domain.UpsertRequest
	batchCalls [][]string
}

func newMemStore(log *events) *memStore {
	return &memStore{log: log, limit: 100, records: map[string]domain.Attributes{}}
}

func (s *memStore) BatchGet(_ context.Context, keys []string) (map[string]domain.Record, error) {
	s.batchCalls = append(s.batchCalls, keys)
	if len(keys) > s.limit {
		return nil, fmt.Errorf("%d keys over limit %d", len(keys), s.limit)
	}
	out := map[string]domain.Record{}
	for _, key := range keys {
		attrs, ok := s.records[key]
		if !ok {
			continue
		}
		flag := func(name string) bool { v, _ := attrs[name].(bool); return v }
		out[key] = domain.Record{
			ID:             key,
			IsDraft:        flag(domain.AttrIsDraft),
			IsImageChanged: flag(domain.AttrIsImageChanged),
			IsTitleChanged: flag(domain.AttrIsTitleChanged),
			IsListed:       flag(domain.AttrIsListed),
		}
	}
	return out, nil
}

func (s *memStore) Upsert(_ context.Context, req domain.UpsertRequest) error {
	if s.log != nil {
		s.log.add("upsert:" + req.Key)
	}
	s.upserts = append(s.upserts, req)
	attrs, ok := s.records[req.Key]
	if !ok {
		attrs = domain.Attributes{}
		s.records[req.Key] = attrs
	}
	for name, value := range req.CreateOnly {
		if _, exists := attrs[name]; !exists {
			attrs[name] = value
		}
	}
	for name, value := range req.Overwrite {
		attrs[name] = value
	}
	return nil
}

func (s *memStore) BatchLimit() int { return s.limit }

func (s *memStore) seed(key string, attrs domain.Attributes) {
	s.records[key] = attrs
}

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func (c *fakeClock) slept() time.Duration {
	var total time.Duration
	for _, d := range c.sleeps {
		total += d
	}
	return total
}

// harness wires a pipeline over the fakes with happy-path handlers for every step.
type harness struct {
	log       *events
	transport *fakeTransport
	store     *memStore
	clock     *fakeClock
	limiter   *throttle.Limiter
	service   *remote.Service
	pipeline  *ItemPipeline
	settings  ListingSettings
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	log := &events{}
	h := &harness{
		log:       log,
		transport: newFakeTransport(t, log),
		store:     newMemStore(log),
		clock:     &fakeClock{now: time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)},
		settings:  DefaultListingSettings(),
	}
	h.limiter = throttle.NewLimiter(throttle.SourceMinSpacing, throttle.SourceJitter, throttle.PublishSpacing,
		throttle.WithClock(h.clock), throttle.WithRandom(func(int64) int64 { return 0 }))
	h.service = remote.NewService(remote.NewClient(h.transport, nil, nil), testFunctions)

	h.transport.on("merc-item", func(payload []byte) ports.InvokeResult {
		var req struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(payload, &req)
		return success(itemDetail(req.ID, domain.StatusOnSale))(payload)
	})
	h.transport.on("is-eligible", success(map[string]any{"isEligible": true}))
	h.transport.on("image-processor", success(map[string]any{
		"r2ImageUrls":  []string{"https://img.example/1.jpg", "https://img.example/2.jpg"},
		"base64Images": []string{"thumb64", "second64"},
	}))
	h.transport.on("ai-check", success(map[string]any{"blocked": false, "isAllPassed": true}))
	h.transport.on("ai-create", success(generated("Vintage anime figure", 900, 30, 20, 10)))
	h.transport.on("offer-part", success(map[string]any{
		"pricingSummary": map[string]any{"price": map[string]any{"currency": "USD", "value": "49.99"}},
		"listingPolicies": map[string]any{
			"fulfillmentPolicyId": "f1",
			"paymentPolicyId":     "p1",
			"returnPolicyId":      "r1",
			"bestOfferTerms":      map[string]any{"bestOfferEnabled": false},
		},
	}))
	h.transport.on("ebay-list", success(map[string]any{"listingId": "L-100"}))

	h.rebuild()
	return h
}

func (h *harness) rebuild() {
	h.pipeline = NewPipeline(PipelineDeps{
		Functions: h.service,
		Store:     h.store,
		Limiter:   h.limiter,
		Keys:      testKeys,
		Listing:   h.settings,
		Clock:     h.clock,
		Cooldown:  DefaultCooldown,
	})
}

func itemDetail(id, status string) map[string]any {
	return map[string]any{
		"id":     id,
		"status": status,
		"name":   "ヴィンテージ フィギュア " + id,
		"price":  5000,
		"photos": []string{"https://static.example/" + id + "/1.jpg"},
		"seller": map[string]any{"id": 4242, "num_sell_items": 17, "ratings": map[string]any{"good": 16}, "num_ratings": 17},

		"item_category_ntiers":     map[string]any{"id": 3, "name": "Figures"},
		"parent_categories_ntiers": []map[string]any{{"id": 1, "name": "Hobby"}, {"id": 2, "name": "Anime"}},
		"item_condition":           map[string]any{"id": 2, "name": "Like new", "subname": ""},
		"shipping_payer":           map[string]any{"id": 2, "name": "Seller", "code": "seller"},
		"shipping_method":          map[string]any{"id": 14, "name": "Rakuraku"},
		"shipping_from_area":       map[string]any{"id": 13, "name": "Tokyo"},
		"shipping_duration":        map[string]any{"id": 2, "name": "2-3 days", "min_days": 2, "max_days": 3},

		"num_likes": 8,
		"created":   1760000000,
		"updated":   1760100000,
	}
}

func generated(title string, weight, length, width, height float64) map[string]any {
	return map[string]any{
		"blocked": false,
		"shipping_weight_and_box_dimensions": map[string]any{
			"weight":         weight,
			"box_dimensions": map[string]any{"length": length, "width": width, "height": height},
		},
		"information_for_ebay_listing": map[string]any{
			"listing_title_for_ebay_listing":              title,
			"item_condition_description_for_ebay_listing": "Minor shelf wear.",
			"item_specifics_for_ebay_listing": map[string]any{
				"Brand":     "Bandai",
				"Character": []any{"Goku", "Vegeta"},
				"Notes":     strings.Repeat("x", 70),
			},
			"promotional_text_for_ebay_listing": "Rare figure from Japan.",
		},
	}
}

func candidate(id string) domain.Candidate {
	return domain.Candidate{ID: id, ItemType: DefaultItemType, CreatedAt: 1700000000}
}

type stopAfter struct {
	checks int
	limit  int
}

func (s *stopAfter) Stopping() bool {
	s.checks++
	return s.checks > s.limit
}
