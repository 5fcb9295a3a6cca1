package aggregator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/scipunch/newsdesk/cache"
	"github.com/scipunch/newsdesk/config"
	"github.com/scipunch/newsdesk/fetcher"
	"github.com/scipunch/newsdesk/fetcher/types"
	"github.com/scipunch/newsdesk/filter"
)

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeFetcher returns canned results per source URL
type fakeFetcher struct {
	mu      sync.Mutex
	results map[string]fetcher.Result
	calls   map[string]int

	started chan struct{} // Signalled on every call when set
	release chan struct{} // Calls block until closed when set

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	delay       time.Duration
}

func newFakeFetcher(results map[string]fetcher.Result) *fakeFetcher {
	return &fakeFetcher{results: results, calls: make(map[string]int)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, src config.Source, now time.Time) fetcher.Result {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls[src.URL]++
	res := f.results[src.URL]
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return res
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// fakeInvalidator records invalidated URLs
type fakeInvalidator struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (f *fakeInvalidator) Invalidate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	return f.err
}

func fixedClock() time.Time {
	return baseTime
}

// story creates an article of source src published minutesAgo before baseTime
func story(src, title string, minutesAgo int) types.Article {
	return types.Article{
		Title:       title,
		Link:        "https://" + src + ".example.com/" + title,
		PublishedAt: baseTime.Add(-time.Duration(minutesAgo) * time.Minute),
		SourceName:  src,
		Category:    "News",
	}
}

func titlesOf(articles []types.Article) []string {
	out := make([]string, 0, len(articles))
	for _, a := range articles {
		out = append(out, a.Title)
	}
	return out
}

func TestLoadAll_CityCouncilScenario(t *testing.T) {
	sources := []config.Source{{Name: "A", URL: "u1"}}
	f := newFakeFetcher(map[string]fetcher.Result{
		"u1": {Articles: []types.Article{
			story("A", "City Council Approves Budget", 1),
			story("A", "City council approves the budget!", 2),
			story("A", "Weather Update Tomorrow", 3),
		}},
	})
	agg := New(f, &fakeInvalidator{}, WithClock(fixedClock))
	agg.Configure(Settings{TotalArticles: 30, MaxPerSource: 5, DedupThreshold: 0.72}, nil)

	state, started, err := agg.LoadAll(context.Background(), sources, false)
	if err != nil || !started {
		t.Fatalf("LoadAll: started=%v err=%v", started, err)
	}

	want := []string{"City Council Approves Budget", "Weather Update Tomorrow"}
	if got := titlesOf(state.Articles); !reflect.DeepEqual(got, want) {
		t.Errorf("Articles = %v, want %v", got, want)
	}
	if len(state.BySource["A"]) != 3 {
		t.Errorf("source view should not be deduplicated, got %d articles", len(state.BySource["A"]))
	}
	if agg.State() != state {
		t.Error("returned state was not committed")
	}
	if !state.LoadedAt.Equal(baseTime) {
		t.Errorf("LoadedAt = %v, want %v", state.LoadedAt, baseTime)
	}
}

func TestLoadAll_NoSources(t *testing.T) {
	agg := New(newFakeFetcher(nil), &fakeInvalidator{})
	before := agg.State()

	state, started, err := agg.LoadAll(context.Background(), nil, false)
	if !errors.Is(err, ErrNoSources) {
		t.Fatalf("expected ErrNoSources, got %v", err)
	}
	if started {
		t.Error("no cycle should start without sources")
	}
	if state != before || agg.State() != before {
		t.Error("state must be untouched without sources")
	}
}

func TestLoadAll_PerSourceCap(t *testing.T) {
	words := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel", "india", "juliet", "kilo", "lima"}
	var xArticles []types.Article
	for i, w := range words {
		// Minutes ago interleave with source Y
		xArticles = append(xArticles, story("X", "Story "+w, i*2))
	}
	yArticles := []types.Article{
		story("Y", "Report mercury", 1),
		story("Y", "Report venus", 3),
		story("Y", "Report mars", 5),
	}

	sources := []config.Source{{Name: "X", URL: "x"}, {Name: "Y", URL: "y"}}
	f := newFakeFetcher(map[string]fetcher.Result{
		"x": {Articles: xArticles},
		"y": {Articles: yArticles},
	})
	agg := New(f, &fakeInvalidator{}, WithClock(fixedClock))
	agg.Configure(Settings{TotalArticles: 30, MaxPerSource: 5, SourceViewLimit: 15, DedupThreshold: 0.72}, nil)

	state, _, err := agg.LoadAll(context.Background(), sources, false)
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	counts := map[string]int{}
	for _, a := range state.Articles {
		counts[a.SourceName]++
	}
	if counts["X"] != 5 || counts["Y"] != 3 {
		t.Errorf("unexpected per-source counts: %v", counts)
	}

	// The five kept from X are its most recent ones
	var keptX []string
	for _, a := range state.Articles {
		if a.SourceName == "X" {
			keptX = append(keptX, a.Title)
		}
	}
	wantX := []string{"Story alpha", "Story bravo", "Story charlie", "Story delta", "Story echo"}
	if !reflect.DeepEqual(keptX, wantX) {
		t.Errorf("kept X articles = %v, want %v", keptX, wantX)
	}

	// Ranked list is newest first
	for i := 1; i < len(state.Articles); i++ {
		if state.Articles[i].PublishedAt.After(state.Articles[i-1].PublishedAt) {
			t.Errorf("articles not sorted at %d", i)
		}
	}

	if len(state.BySource["X"]) != 12 {
		t.Errorf("source view of X should hold all 12 articles, got %d", len(state.BySource["X"]))
	}
}

func TestLoadAll_TotalAndSourceViewLimits(t *testing.T) {
	var articles []types.Article
	words := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel", "india", "juliet"}
	for i, w := range words {
		articles = append(articles, story("A", "Story "+w, i))
	}
	sources := []config.Source{{Name: "A", URL: "a"}}
	agg := New(newFakeFetcher(map[string]fetcher.Result{"a": {Articles: articles}}), &fakeInvalidator{})
	agg.Configure(Settings{TotalArticles: 3, MaxPerSource: 10, SourceViewLimit: 4, DedupThreshold: 0.72}, nil)

	state, _, _ := agg.LoadAll(context.Background(), sources, false)
	if got := titlesOf(state.Articles); !reflect.DeepEqual(got, []string{"Story alpha", "Story bravo", "Story charlie"}) {
		t.Errorf("Articles = %v", got)
	}
	if len(state.BySource["A"]) != 4 {
		t.Errorf("expected source view capped to 4, got %d", len(state.BySource["A"]))
	}
}

func TestLoadAll_UndatedLastAndStable(t *testing.T) {
	undated := func(title string) types.Article {
		return types.Article{Title: title, SourceName: "A"}
	}
	sources := []config.Source{{Name: "A", URL: "a"}}
	f := newFakeFetcher(map[string]fetcher.Result{"a": {Articles: []types.Article{
		undated("Undated first"),
		story("A", "Dated older", 10),
		undated("Undated second"),
		story("A", "Dated newer", 1),
	}}})
	agg := New(f, &fakeInvalidator{})
	agg.Configure(Settings{MaxPerSource: 10}, nil)

	state, _, _ := agg.LoadAll(context.Background(), sources, false)
	want := []string{"Dated newer", "Dated older", "Undated first", "Undated second"}
	if got := titlesOf(state.Articles); !reflect.DeepEqual(got, want) {
		t.Errorf("Articles = %v, want %v", got, want)
	}
}

func TestLoadAll_FailureIsolation(t *testing.T) {
	sources := []config.Source{
		{Name: "A", URL: "a", Category: "Tech"},
		{Name: "Broken", URL: "b"},
		{Name: "C", URL: "c", Category: "Science"},
	}
	f := newFakeFetcher(map[string]fetcher.Result{
		"a": {Articles: []types.Article{story("A", "Compiler news", 1)}, FromCache: true},
		"b": {Articles: []types.Article{}, Err: errors.New("secondary down")},
		"c": {Articles: []types.Article{story("C", "Telescope images", 2)}},
	})
	agg := New(f, &fakeInvalidator{})

	state, _, err := agg.LoadAll(context.Background(), sources, false)
	if err != nil {
		t.Fatalf("a failing source must not fail the cycle: %v", err)
	}

	want := []FeedStatus{
		{Name: "A", Category: "Tech", OK: true, Count: 1, FromCache: true},
		{Name: "Broken", Category: "Uncategorized", OK: false, Count: 0, Error: "secondary down"},
		{Name: "C", Category: "Science", OK: true, Count: 1},
	}
	if !reflect.DeepEqual(state.Statuses, want) {
		t.Errorf("Statuses = %+v, want %+v", state.Statuses, want)
	}
	if len(state.Articles) != 2 {
		t.Errorf("expected 2 articles, got %d", len(state.Articles))
	}
	broken, ok := state.BySource["Broken"]
	if !ok || len(broken) != 0 {
		t.Errorf("failed source should have an empty view, got %v (present=%v)", broken, ok)
	}
}

func TestLoadAll_ReentrantCallIsNoop(t *testing.T) {
	sources := []config.Source{{Name: "A", URL: "a"}, {Name: "B", URL: "b"}}
	f := newFakeFetcher(map[string]fetcher.Result{
		"a": {Articles: []types.Article{story("A", "First story", 1)}},
		"b": {Articles: []types.Article{story("B", "Second story", 2)}},
	})
	f.started = make(chan struct{}, len(sources))
	f.release = make(chan struct{})
	agg := New(f, &fakeInvalidator{})
	before := agg.State()

	done := make(chan *State)
	go func() {
		state, _, _ := agg.LoadAll(context.Background(), sources, false)
		done <- state
	}()

	// Wait until the first cycle is fetching
	<-f.started
	<-f.started
	if !agg.Running() {
		t.Fatal("expected a running cycle")
	}

	state, started, err := agg.LoadAll(context.Background(), sources, true)
	if err != nil || started {
		t.Errorf("re-entrant call: started=%v err=%v", started, err)
	}
	if state != before || agg.State() != before {
		t.Error("re-entrant call must not change the state")
	}

	close(f.release)
	first := <-done

	if f.callCount("a") != 1 || f.callCount("b") != 1 {
		t.Errorf("expected one fetch per source, got a=%d b=%d", f.callCount("a"), f.callCount("b"))
	}
	if agg.State() != first || len(first.Articles) != 2 {
		t.Errorf("first cycle not committed: %+v", first)
	}
	if agg.Running() {
		t.Error("in-flight flag not cleared")
	}

	// A new cycle can run after the first one completed
	f.started = nil
	f.release = nil
	if _, started, _ := agg.LoadAll(context.Background(), sources, false); !started {
		t.Error("expected a new cycle to start")
	}
}

func TestLoadAll_ForceInvalidatesEverySource(t *testing.T) {
	sources := []config.Source{{Name: "A", URL: "a"}, {Name: "B", URL: "b"}}
	inv := &fakeInvalidator{err: errors.New("remove failed")}
	agg := New(newFakeFetcher(map[string]fetcher.Result{}), inv)

	if _, _, err := agg.LoadAll(context.Background(), sources, false); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(inv.urls) != 0 {
		t.Errorf("unforced cycle invalidated %v", inv.urls)
	}

	// Invalidation errors are logged only
	if _, _, err := agg.LoadAll(context.Background(), sources, true); err != nil {
		t.Fatalf("forced LoadAll failed: %v", err)
	}
	if !reflect.DeepEqual(inv.urls, []string{"a", "b"}) {
		t.Errorf("invalidated %v, want [a b]", inv.urls)
	}
}

func TestLoadAll_ConcurrencyLimit(t *testing.T) {
	var sources []config.Source
	results := map[string]fetcher.Result{}
	for i := 0; i < 6; i++ {
		url := fmt.Sprintf("u%d", i)
		sources = append(sources, config.Source{Name: fmt.Sprintf("S%d", i), URL: url})
		results[url] = fetcher.Result{Articles: []types.Article{}}
	}
	f := newFakeFetcher(results)
	f.delay = 20 * time.Millisecond
	agg := New(f, &fakeInvalidator{})
	agg.Configure(Settings{Concurrency: 2}, nil)

	state, _, _ := agg.LoadAll(context.Background(), sources, false)
	if len(state.Statuses) != 6 {
		t.Errorf("expected 6 statuses, got %d", len(state.Statuses))
	}
	if got := f.maxInFlight.Load(); got > 2 {
		t.Errorf("expected at most 2 concurrent fetches, got %d", got)
	}
}

func TestLoadAll_AppliesSourceFilters(t *testing.T) {
	pipeline, err := filter.NewFilterPipeline(map[string]config.Filter{
		"no_ads": {ExcludePatterns: []string{"(?i)sponsored"}},
	})
	if err != nil {
		t.Fatalf("NewFilterPipeline failed: %v", err)
	}
	sources := []config.Source{
		{Name: "A", URL: "a", Filters: []string{"no_ads"}},
		{Name: "B", URL: "b"},
	}
	f := newFakeFetcher(map[string]fetcher.Result{
		"a": {Articles: []types.Article{story("A", "Sponsored gadget", 1), story("A", "Kernel release", 2)}},
		"b": {Articles: []types.Article{story("B", "Sponsored event", 3)}},
	})
	agg := New(f, &fakeInvalidator{})
	agg.Configure(DefaultSettings(), pipeline)

	state, _, _ := agg.LoadAll(context.Background(), sources, false)
	want := []string{"Kernel release", "Sponsored event"}
	if got := titlesOf(state.Articles); !reflect.DeepEqual(got, want) {
		t.Errorf("Articles = %v, want %v", got, want)
	}
	if state.Statuses[0].Count != 1 {
		t.Errorf("status count should reflect filtered articles, got %d", state.Statuses[0].Count)
	}
}

// flakyTransport fails the first failures calls
type flakyTransport struct {
	name     string
	items    []types.RawItem
	failures int32
	calls    atomic.Int32
}

func (t *flakyTransport) Name() string {
	return t.name
}

func (t *flakyTransport) Fetch(ctx context.Context, url string, limit int) ([]types.RawItem, error) {
	if t.calls.Add(1) <= t.failures {
		return nil, errors.New(t.name + " unavailable")
	}
	return t.items, nil
}

func TestLoadAll_WithSourceFetcher(t *testing.T) {
	now := baseTime
	clock := func() time.Time { return now }

	primary := &flakyTransport{name: "api", failures: 1, items: []types.RawItem{
		types.APIItem{Title: "Primary story", Link: "https://a.example.com/1", PubDate: "2024-06-01 11:00:00"},
	}}
	secondary := &flakyTransport{name: "rss", items: []types.RawItem{
		types.FeedItem{Title: "Secondary story", Link: "https://a.example.com/2", Published: baseTime.Add(-time.Hour)},
	}}
	c := cache.New(cache.NewMemoryStore(), 15*time.Minute)
	sf := fetcher.NewSourceFetcher(c, primary, secondary, 10)
	agg := New(sf, sf, WithClock(clock))
	sources := []config.Source{{Name: "A", URL: "https://a.example.com/feed", Category: "Tech"}}

	// First cycle: primary fails, secondary serves and fills the cache
	state, _, _ := agg.LoadAll(context.Background(), sources, false)
	if got := titlesOf(state.Articles); !reflect.DeepEqual(got, []string{"Secondary story"}) {
		t.Errorf("first cycle = %v", got)
	}

	// Second cycle within TTL: served from cache
	now = baseTime.Add(10 * time.Minute)
	state, _, _ = agg.LoadAll(context.Background(), sources, false)
	if !state.Statuses[0].FromCache {
		t.Error("expected cached result within TTL")
	}
	if primary.calls.Load() != 1 || secondary.calls.Load() != 1 {
		t.Errorf("unexpected transport calls: primary=%d secondary=%d", primary.calls.Load(), secondary.calls.Load())
	}

	// Forced cycle: cache dropped, primary now works
	state, _, _ = agg.LoadAll(context.Background(), sources, true)
	if state.Statuses[0].FromCache {
		t.Error("forced cycle must not use the cache")
	}
	if got := titlesOf(state.Articles); !reflect.DeepEqual(got, []string{"Primary story"}) {
		t.Errorf("forced cycle = %v", got)
	}
	if state.Articles[0].Category != "Tech" {
		t.Errorf("Category = %q, want Tech", state.Articles[0].Category)
	}
}

func TestSettingsFromConfig(t *testing.T) {
	got := SettingsFromConfig(config.Default().Aggregate)
	if got != DefaultSettings() {
		t.Errorf("default config settings = %+v, want %+v", got, DefaultSettings())
	}

	got = SettingsFromConfig(config.Aggregate{DedupThreshold: 2, Concurrency: -1})
	want := DefaultSettings()
	want.Concurrency = 0
	if got != want {
		t.Errorf("out of range settings = %+v, want %+v", got, want)
	}
}
