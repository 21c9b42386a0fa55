package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/ca-srg/halalfinder/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) NearbySearch(ctx context.Context, query types.NearbyQuery) (*types.PlacesPage, error) {
	args := m.Called(ctx, query)
	page, _ := args.Get(0).(*types.PlacesPage)
	return page, args.Error(1)
}

func (m *mockDirectory) NextPage(ctx context.Context, token string) (*types.PlacesPage, error) {
	args := m.Called(ctx, token)
	page, _ := args.Get(0).(*types.PlacesPage)
	return page, args.Error(1)
}

type mockGeocoder struct {
	mock.Mock
}

func (m *mockGeocoder) Geocode(ctx context.Context, address string) ([]types.GeocodeResult, error) {
	args := m.Called(ctx, address)
	results, _ := args.Get(0).([]types.GeocodeResult)
	return results, args.Error(1)
}

func (m *mockGeocoder) ReverseGeocode(ctx context.Context, at types.Coordinate) ([]types.GeocodeResult, error) {
	args := m.Called(ctx, at)
	results, _ := args.Get(0).([]types.GeocodeResult)
	return results, args.Error(1)
}

type mockDetails struct {
	mock.Mock
}

func (m *mockDetails) PlaceDetails(ctx context.Context, placeID string, fields []string) (*types.PlaceDetails, error) {
	args := m.Called(ctx, placeID, fields)
	details, _ := args.Get(0).(*types.PlaceDetails)
	return details, args.Error(1)
}

var origin = types.Coordinate{Lat: 40.7128, Lng: -74.0060}

func testPolicy() types.SearchPolicy {
	return types.SearchPolicy{
		Radii:              []int{5000, 10000},
		Keywords:           []string{"halal", "alcohol-free"},
		Category:           "restaurant",
		HardExclude:        []string{"pub", "brewery", "tavern"},
		ExcludedCategories: []string{"bar", "night_club"},
		ExcludedChains:     []string{"applebee's", "olive garden"},
		ResultCap:          30,
	}
}

func place(id string, northMeters float64) types.CandidatePlace {
	// one degree of latitude is ~111.2 km
	return types.CandidatePlace{
		ID:       id,
		Name:     "Place " + id,
		Location: types.Coordinate{Lat: origin.Lat + northMeters/111195.0, Lng: origin.Lng},
		Types:    []string{"restaurant", "food"},
	}
}

func okPage(places ...types.CandidatePlace) *types.PlacesPage {
	return &types.PlacesPage{Status: types.PageStatusOK, Places: places}
}

func emptyPage() *types.PlacesPage {
	return &types.PlacesPage{Status: types.PageStatusNoMatches}
}

func forStep(radius int, keyword string) interface{} {
	return mock.MatchedBy(func(q types.NearbyQuery) bool {
		return q.RadiusMeters == radius && q.Keyword == keyword
	})
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func newTestOrchestrator(t *testing.T, dir PlacesDirectory, geocoder Geocoder, policy types.SearchPolicy, sleeper *sleepRecorder) *Orchestrator {
	t.Helper()
	opts := Options{Logger: log.New(io.Discard, "", 0)}
	if sleeper != nil {
		opts.Sleep = sleeper.sleep
	}
	o, err := NewOrchestrator(dir, geocoder, policy, opts)
	require.NoError(t, err)
	return o
}

func TestStepsAreRadiusMajor(t *testing.T) {
	steps := Steps(testPolicy())
	assert.Equal(t, []Step{
		{RadiusMeters: 5000, Keyword: "halal"},
		{RadiusMeters: 5000, Keyword: "alcohol-free"},
		{RadiusMeters: 10000, Keyword: "halal"},
		{RadiusMeters: 10000, Keyword: "alcohol-free"},
	}, steps)
}

func TestExpand(t *testing.T) {
	t.Run("collects failures and continues", func(t *testing.T) {
		var visited []int
		stats, err := Expand(context.Background(), []int{1, 2, 3}, nil, func(_ context.Context, n int) error {
			visited = append(visited, n)
			if n == 2 {
				return errors.New("step failed")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, visited)
		assert.Equal(t, 3, stats.Visited)
		assert.Len(t, stats.Failures, 1)
	})

	t.Run("stops when done", func(t *testing.T) {
		count := 0
		stats, err := Expand(context.Background(), []int{1, 2, 3, 4}, func() bool { return count >= 2 }, func(context.Context, int) error {
			count++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Visited)
	})

	t.Run("returns on cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		stats, err := Expand(ctx, []int{1, 2, 3}, nil, func(context.Context, int) error {
			cancel()
			return context.Canceled
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, stats.Visited)
	})
}

func TestFilterRules(t *testing.T) {
	level := 2
	policy := testPolicy()
	policy.MaxPriceLevel = &level
	f := NewFilter(policy)

	yes, no := true, false
	expensive, cheap := 4, 1

	tests := []struct {
		name      string
		candidate types.CandidatePlace
		allowed   bool
		reason    Reason
	}{
		{"pub name regardless of tags", types.CandidatePlace{ID: "1", Name: "Murphy's Irish Pub", Types: []string{"restaurant"}}, false, ReasonHardExclude},
		{"upper case name", types.CandidatePlace{ID: "2", Name: "THE OLD TAVERN GRILL"}, false, ReasonHardExclude},
		{"excluded category", types.CandidatePlace{ID: "3", Name: "Corner Spot", Types: []string{"restaurant", "bar"}}, false, ReasonCategory},
		{"serves alcohol regardless of name", types.CandidatePlace{ID: "4", Name: "Kabab House", ServesAlcohol: &yes}, false, ReasonServesAlcohol},
		{"chain with curly apostrophe", types.CandidatePlace{ID: "5", Name: "Applebee’s Grill + Bar"}, false, ReasonChain},
		{"price above ceiling", types.CandidatePlace{ID: "6", Name: "Fancy Halal", PriceLevel: &expensive}, false, ReasonPriceLevel},
		{"price below ceiling", types.CandidatePlace{ID: "7", Name: "Cheap Halal", PriceLevel: &cheap}, true, ReasonNone},
		{"explicitly alcohol free", types.CandidatePlace{ID: "8", Name: "Falafel Stop", ServesAlcohol: &no}, true, ReasonNone},
		{"missing data never excludes", types.CandidatePlace{ID: "9", Name: "Biryani Corner"}, true, ReasonNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, reason := f.Allow(tt.candidate)
			assert.Equal(t, tt.allowed, allowed)
			assert.Equal(t, tt.reason, reason)
		})
	}

	all := make([]types.CandidatePlace, 0, len(tests))
	for _, tt := range tests {
		all = append(all, tt.candidate)
	}
	once := f.Apply(all)
	assert.Len(t, once, 3)
	assert.Equal(t, once, f.Apply(once), "filtering is idempotent")
}

func TestAggregateMerge(t *testing.T) {
	agg := newAggregate()
	require.Equal(t, 2, agg.merge([]types.CandidatePlace{place("a", 10), place("b", 20)}))

	first := agg.entries[0]
	dup := place("a", 999)
	dup.Name = "Later record"
	assert.Equal(t, 1, agg.merge([]types.CandidatePlace{dup, place("c", 30)}), "K passing minus already present")
	assert.Equal(t, 3, agg.len())
	assert.Equal(t, first, agg.entries[0], "first seen wins")
}

func TestRankOrdersByDistance(t *testing.T) {
	candidates := []types.CandidatePlace{place("far", 3000), place("near", 500), place("mid", 1500)}
	results := rank(origin, candidates, func(a, b types.Coordinate) float64 {
		return (b.Lat - a.Lat) * 111195.0
	}, 50)

	require.Len(t, results, 3)
	assert.Equal(t, []string{"near", "mid", "far"}, []string{results[0].ID, results[1].ID, results[2].ID})
	assert.InDelta(t, 500, results[0].DistanceMeters, 0.01)
	assert.InDelta(t, 3000, results[2].DistanceMeters, 0.01)
}

func TestRunRanksWithGreatCircleDistance(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("NearbySearch", mock.Anything, forStep(5000, "halal")).
		Return(okPage(place("far", 3000), place("near", 500), place("mid", 1500)), nil)
	dir.On("NearbySearch", mock.Anything, mock.Anything).Return(emptyPage(), nil)

	o := newTestOrchestrator(t, dir, nil, testPolicy(), &sleepRecorder{})
	results, err := o.Run(context.Background(), origin)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, "near", results[0].ID)
	assert.Equal(t, "mid", results[1].ID)
	assert.Equal(t, "far", results[2].ID)
	assert.InDelta(t, 500, results[0].DistanceMeters, 5)
	assert.InDelta(t, 3000, results[2].DistanceMeters, 15)
}

func TestRunCapKeepsNearest(t *testing.T) {
	policy := testPolicy()
	policy.ResultCap = 50

	// 80 candidates delivered farthest first
	candidates := make([]types.CandidatePlace, 0, 80)
	for i := 80; i >= 1; i-- {
		candidates = append(candidates, place(fmt.Sprintf("p%02d", i), float64(i*100)))
	}

	dir := &mockDirectory{}
	dir.On("NearbySearch", mock.Anything, forStep(5000, "halal")).Return(okPage(candidates...), nil).Once()

	o := newTestOrchestrator(t, dir, nil, policy, &sleepRecorder{})
	results, err := o.Run(context.Background(), origin)
	require.NoError(t, err)

	require.Len(t, results, 50)
	assert.Equal(t, "p01", results[0].ID)
	assert.Equal(t, "p50", results[49].ID)
	dir.AssertNumberOfCalls(t, "NearbySearch", 1)
}

func TestRunZeroResults(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("NearbySearch", mock.Anything, mock.Anything).Return(emptyPage(), nil)

	o := newTestOrchestrator(t, dir, nil, testPolicy(), &sleepRecorder{})
	results, err := o.Run(context.Background(), origin)

	require.Error(t, err)
	assert.Nil(t, results)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeNoResults))
	assert.Equal(t, types.MessageNoResults, types.DisplayMessage(err))
	dir.AssertNumberOfCalls(t, "NearbySearch", 4)
}

func TestRunAllFiltered(t *testing.T) {
	yes := true
	pub := place("pub", 100)
	pub.Name = "Murphy's Irish Pub"
	wine := place("wine", 200)
	wine.ServesAlcohol = &yes

	dir := &mockDirectory{}
	dir.On("NearbySearch", mock.Anything, mock.Anything).Return(okPage(pub, wine), nil)

	o := newTestOrchestrator(t, dir, nil, testPolicy(), &sleepRecorder{})
	_, err := o.Run(context.Background(), origin)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeNoResults))
}

func TestRunProviderUnavailableEverywhere(t *testing.T) {
	failure := types.NewRetryableSearchError(types.ErrorTypeProviderUnavailable, types.MessageProviderUnavailable, 0, errors.New("503"))
	dir := &mockDirectory{}
	dir.On("NearbySearch", mock.Anything, mock.Anything).Return(nil, failure)

	o := newTestOrchestrator(t, dir, nil, testPolicy(), &sleepRecorder{})
	_, err := o.Run(context.Background(), origin)

	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeNoResults))
	assert.Equal(t, types.MessageProviderExhausted, types.DisplayMessage(err))
	dir.AssertNumberOfCalls(t, "NearbySearch", 4)
}

func TestRunSwallowsStepFailure(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("NearbySearch", mock.Anything, forStep(5000, "halal")).
		Return(nil, types.NewSearchError(types.ErrorTypeProviderUnavailable, types.MessageProviderUnavailable, errors.New("denied")))
	dir.On("NearbySearch", mock.Anything, forStep(5000, "alcohol-free")).Return(okPage(place("a", 100)), nil)
	dir.On("NearbySearch", mock.Anything, mock.Anything).Return(emptyPage(), nil)

	o := newTestOrchestrator(t, dir, nil, testPolicy(), &sleepRecorder{})
	results, err := o.Run(context.Background(), origin)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestRunDuplicateAcrossRadii(t *testing.T) {
	firstSeen := place("dup", 800)
	firstSeen.Name = "Halal Guys"
	laterSeen := place("dup", 800)
	laterSeen.Name = "Halal Guys (from wider radius)"

	dir := &mockDirectory{}
	dir.On("NearbySearch", mock.Anything, forStep(5000, "halal")).Return(okPage(firstSeen), nil)
	dir.On("NearbySearch", mock.Anything, forStep(10000, "halal")).Return(okPage(laterSeen, place("other", 900)), nil)
	dir.On("NearbySearch", mock.Anything, mock.Anything).Return(emptyPage(), nil)

	o := newTestOrchestrator(t, dir, nil, testPolicy(), &sleepRecorder{})
	results, err := o.Run(context.Background(), origin)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "dup", results[0].ID)
	assert.Equal(t, "Halal Guys", results[0].Name)
}

func TestRunDrainsPagesWithDelay(t *testing.T) {
	first := okPage(place("a", 100))
	first.NextPageToken = "t2"
	second := okPage(place("b", 200))
	second.NextPageToken = "t3"

	dir := &mockDirectory{}
	dir.On("NearbySearch", mock.Anything, forStep(5000, "halal")).Return(first, nil)
	dir.On("NearbySearch", mock.Anything, mock.Anything).Return(emptyPage(), nil)
	dir.On("NextPage", mock.Anything, "t2").Return(second, nil).Once()
	dir.On("NextPage", mock.Anything, "t3").Return(nil, errors.New("token expired")).Once()

	sleeper := &sleepRecorder{}
	o := newTestOrchestrator(t, dir, nil, testPolicy(), sleeper)
	results, err := o.Run(context.Background(), origin)
	require.NoError(t, err)

	assert.Len(t, results, 2, "pages merged before a failed continuation are kept")
	assert.Equal(t, []time.Duration{DefaultPageDelay, DefaultPageDelay}, sleeper.delays)
	dir.AssertExpectations(t)
}

func TestRunStopsPagingAtCap(t *testing.T) {
	policy := testPolicy()
	candidates := make([]types.CandidatePlace, 0, policy.ResultCap)
	for i := 0; i < policy.ResultCap; i++ {
		candidates = append(candidates, place(fmt.Sprintf("p%02d", i), float64(i*50)))
	}
	page := okPage(candidates...)
	page.NextPageToken = "never-fetched"

	dir := &mockDirectory{}
	dir.On("NearbySearch", mock.Anything, forStep(5000, "halal")).Return(page, nil).Once()

	o := newTestOrchestrator(t, dir, nil, policy, &sleepRecorder{})
	results, err := o.Run(context.Background(), origin)
	require.NoError(t, err)
	assert.Len(t, results, policy.ResultCap)
	dir.AssertNotCalled(t, "NextPage", mock.Anything, mock.Anything)
	dir.AssertNumberOfCalls(t, "NearbySearch", 1)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dir := &mockDirectory{}
	dir.On("NearbySearch", mock.Anything, mock.Anything).Run(func(mock.Arguments) { cancel() }).Return(nil, context.Canceled)

	o := newTestOrchestrator(t, dir, nil, testPolicy(), &sleepRecorder{})
	_, err := o.Run(ctx, origin)
	require.ErrorIs(t, err, context.Canceled)
	dir.AssertNumberOfCalls(t, "NearbySearch", 1)
}

func TestRunRejectsInvalidLocation(t *testing.T) {
	o := newTestOrchestrator(t, &mockDirectory{}, nil, testPolicy(), nil)
	_, err := o.Run(context.Background(), types.Coordinate{Lat: 95, Lng: 0})
	assert.True(t, types.IsErrorType(err, types.ErrorTypeValidation))
}

func TestRunFromAddress(t *testing.T) {
	t.Run("location not found", func(t *testing.T) {
		geocoder := &mockGeocoder{}
		geocoder.On("Geocode", mock.Anything, "Atlantis").Return([]types.GeocodeResult{}, nil)
		geocoder.On("Geocode", mock.Anything, "broken").Return(nil, errors.New("REQUEST_DENIED"))

		o := newTestOrchestrator(t, &mockDirectory{}, geocoder, testPolicy(), nil)
		for _, address := range []string{"Atlantis", "broken", "   "} {
			_, _, err := o.RunFromAddress(context.Background(), address)
			assert.True(t, types.IsErrorType(err, types.ErrorTypeLocationNotFound), address)
			assert.Equal(t, types.MessageLocationNotFound, types.DisplayMessage(err))
		}
		geocoder.AssertNumberOfCalls(t, "Geocode", 2)
	})

	t.Run("searches around first match", func(t *testing.T) {
		geocoder := &mockGeocoder{}
		geocoder.On("Geocode", mock.Anything, "New York").Return([]types.GeocodeResult{
			{FormattedAddress: "New York, NY, USA", Location: origin},
			{FormattedAddress: "New York, Lincolnshire, UK", Location: types.Coordinate{Lat: 53.07, Lng: -0.14}},
		}, nil)

		dir := &mockDirectory{}
		dir.On("NearbySearch", mock.Anything, mock.MatchedBy(func(q types.NearbyQuery) bool {
			return q.Location == origin && q.Category == "restaurant"
		})).Return(okPage(place("a", 100)), nil)

		o := newTestOrchestrator(t, dir, geocoder, testPolicy(), &sleepRecorder{})
		results, match, err := o.RunFromAddress(context.Background(), " New York ")
		require.NoError(t, err)
		require.NotNil(t, match)
		assert.Equal(t, "New York, NY, USA", match.FormattedAddress)
		assert.Len(t, results, 1)
	})
}

func TestDescribe(t *testing.T) {
	geocoder := &mockGeocoder{}
	geocoder.On("ReverseGeocode", mock.Anything, origin).Return([]types.GeocodeResult{{FormattedAddress: "City Hall Park"}}, nil).Once()
	geocoder.On("ReverseGeocode", mock.Anything, origin).Return(nil, errors.New("quota")).Once()

	o := newTestOrchestrator(t, &mockDirectory{}, geocoder, testPolicy(), nil)
	assert.Equal(t, "City Hall Park", o.Describe(context.Background(), origin))
	assert.Equal(t, "", o.Describe(context.Background(), origin))
}

func TestEnrichKeepsOrderAndSwallowsFailures(t *testing.T) {
	details := &mockDetails{}
	details.On("PlaceDetails", mock.Anything, "a", phoneFields).Return(&types.PlaceDetails{ID: "a", Phone: "(212) 555-0100"}, nil)
	details.On("PlaceDetails", mock.Anything, "b", phoneFields).Return(nil, errors.New("timeout"))
	details.On("PlaceDetails", mock.Anything, "c", phoneFields).Return(&types.PlaceDetails{ID: "c", InternationalPhone: "+1 212-555-0199"}, nil)

	entries := []types.ResultEntry{
		{CandidatePlace: place("a", 100), DistanceMeters: 100},
		{CandidatePlace: place("b", 200), DistanceMeters: 200},
		{CandidatePlace: place("c", 300), DistanceMeters: 300},
	}

	out := NewEnricher(details, 2, nil).Enrich(context.Background(), entries)
	require.Len(t, out, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{out[0].ID, out[1].ID, out[2].ID})
	assert.Equal(t, "(212) 555-0100", out[0].Phone)
	assert.Empty(t, out[1].Phone)
	assert.Equal(t, "+1 212-555-0199", out[2].Phone)
	assert.Empty(t, entries[0].Phone, "input is not modified")
}

func TestEnrichTreatsMissingDetailsAsFailure(t *testing.T) {
	details := &mockDetails{}
	details.On("PlaceDetails", mock.Anything, "a", phoneFields).Return(nil, nil)
	details.On("PlaceDetails", mock.Anything, "b", phoneFields).Return(&types.PlaceDetails{ID: "b", Phone: "(718) 555-0101"}, nil)

	entries := []types.ResultEntry{
		{CandidatePlace: place("a", 100), DistanceMeters: 100},
		{CandidatePlace: place("b", 200), DistanceMeters: 200},
	}

	var out []types.ResultEntry
	require.NotPanics(t, func() {
		out = NewEnricher(details, 1, nil).Enrich(context.Background(), entries)
	})
	require.Len(t, out, 2)
	assert.Empty(t, out[0].Phone)
	assert.Equal(t, "(718) 555-0101", out[1].Phone)
}

func TestRunWithEnricher(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("NearbySearch", mock.Anything, mock.Anything).Return(okPage(place("a", 100)), nil)
	details := &mockDetails{}
	details.On("PlaceDetails", mock.Anything, "a", mock.Anything).Return(&types.PlaceDetails{Phone: "555"}, nil).Once()

	o, err := NewOrchestrator(dir, nil, testPolicy(), Options{
		Logger:   log.New(io.Discard, "", 0),
		Enricher: NewEnricher(details, 4, nil),
		Sleep:    (&sleepRecorder{}).sleep,
	})
	require.NoError(t, err)

	results, err := o.Run(context.Background(), origin)
	require.NoError(t, err)
	assert.Equal(t, "555", results[0].Phone)
}

func TestNewOrchestratorValidates(t *testing.T) {
	_, err := NewOrchestrator(nil, nil, testPolicy(), Options{})
	assert.Error(t, err)

	policy := testPolicy()
	policy.Keywords = nil
	_, err = NewOrchestrator(&mockDirectory{}, nil, policy, Options{})
	assert.Error(t, err)
}
