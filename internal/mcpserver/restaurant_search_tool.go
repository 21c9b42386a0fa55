package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/ca-srg/halalfinder/internal/geo"
	"github.com/ca-srg/halalfinder/internal/types"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// DefaultToolName is the registered name of the restaurant search tool
	DefaultToolName = "find_alcohol_free_restaurants"
	maxToolLimit    = 50
)

// Searcher runs restaurant searches for the tool
type Searcher interface {
	Run(ctx context.Context, loc types.Coordinate) ([]types.ResultEntry, error)
	RunFromAddress(ctx context.Context, text string) ([]types.ResultEntry, *types.GeocodeResult, error)
}

// PhoneEnricher adds phone numbers to results
type PhoneEnricher interface {
	Enrich(ctx context.Context, entries []types.ResultEntry) []types.ResultEntry
}

// RestaurantSearchArgs are the tool call arguments. Either Address or both
// coordinates must be supplied.
type RestaurantSearchArgs struct {
	Address      string   `json:"address,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Limit        int      `json:"limit,omitempty"`
	IncludePhone bool     `json:"include_phone,omitempty"`
}

// RestaurantItem is one restaurant in a tool response
type RestaurantItem struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	Address          string   `json:"address,omitempty"`
	DistanceMeters   float64  `json:"distance_meters"`
	Distance         string   `json:"distance"`
	Rating           float64  `json:"rating,omitempty"`
	UserRatingsTotal int      `json:"user_ratings_total,omitempty"`
	OpenNow          *bool    `json:"open_now,omitempty"`
	PriceLevel       *int     `json:"price_level,omitempty"`
	Phone            string   `json:"phone,omitempty"`
	Types            []string `json:"types,omitempty"`
	MapsURL          string   `json:"maps_url"`
}

// RestaurantSearchResponse is the JSON body returned to the client
type RestaurantSearchResponse struct {
	Origin          types.Coordinate `json:"origin"`
	ResolvedAddress string           `json:"resolved_address,omitempty"`
	Count           int              `json:"count"`
	Restaurants     []RestaurantItem `json:"restaurants"`
	DurationMs      int64            `json:"duration_ms"`
}

// RestaurantSearchToolAdapter exposes the search orchestrator as an MCP tool
type RestaurantSearchToolAdapter struct {
	searcher Searcher
	enricher PhoneEnricher
	toolName string
	timeout  time.Duration
	logger   *log.Logger
}

// NewRestaurantSearchToolAdapter creates the adapter. enricher may be nil,
// in which case include_phone is ignored.
func NewRestaurantSearchToolAdapter(searcher Searcher, enricher PhoneEnricher, toolName string, timeout time.Duration) *RestaurantSearchToolAdapter {
	if toolName == "" {
		toolName = DefaultToolName
	}
	return &RestaurantSearchToolAdapter{
		searcher: searcher,
		enricher: enricher,
		toolName: toolName,
		timeout:  timeout,
		logger:   log.New(log.Writer(), "[RestaurantSearchTool] ", log.LstdFlags),
	}
}

// SetLogger replaces the adapter logger
func (a *RestaurantSearchToolAdapter) SetLogger(logger *log.Logger) {
	if logger != nil {
		a.logger = logger
	}
}

// ToolName returns the registered tool name
func (a *RestaurantSearchToolAdapter) ToolName() string {
	return a.toolName
}

// GetToolDefinition returns the MCP tool definition
func (a *RestaurantSearchToolAdapter) GetToolDefinition() *mcp.Tool {
	schemaMap := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"address": map[string]interface{}{
				"type":        "string",
				"description": "Street address, neighbourhood or landmark to search around",
			},
			"latitude": map[string]interface{}{
				"type":        "number",
				"description": "Latitude of the search origin. Use together with longitude instead of address",
				"minimum":     -90,
				"maximum":     90,
			},
			"longitude": map[string]interface{}{
				"type":        "number",
				"description": "Longitude of the search origin",
				"minimum":     -180,
				"maximum":     180,
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of restaurants to return (1-50)",
				"minimum":     1,
				"maximum":     maxToolLimit,
			},
			"include_phone": map[string]interface{}{
				"type":        "boolean",
				"description": "Look up phone numbers for each restaurant",
				"default":     false,
			},
		},
	}

	var inputSchema *jsonschema.Schema
	if schemaBytes, err := json.Marshal(schemaMap); err == nil {
		inputSchema = &jsonschema.Schema{}
		_ = json.Unmarshal(schemaBytes, inputSchema)
	}

	return &mcp.Tool{
		Name: a.toolName,
		Description: "Find restaurants that do not serve alcohol (halal, alcohol-free) near an address or coordinate. " +
			"Results are sorted by distance, closest first.",
		InputSchema: inputSchema,
	}
}

// parseArgs decodes and validates raw tool arguments
func parseArgs(raw json.RawMessage) (RestaurantSearchArgs, error) {
	var args RestaurantSearchArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return args, fmt.Errorf("invalid arguments: %w", err)
		}
	}

	args.Address = strings.TrimSpace(args.Address)
	hasCoordinate := args.Latitude != nil || args.Longitude != nil
	switch {
	case args.Address != "" && hasCoordinate:
		return args, fmt.Errorf("provide either address or latitude/longitude, not both")
	case hasCoordinate && (args.Latitude == nil || args.Longitude == nil):
		return args, fmt.Errorf("latitude and longitude must be provided together")
	case args.Address == "" && !hasCoordinate:
		return args, fmt.Errorf("address or latitude/longitude is required")
	}

	if args.Limit < 0 || args.Limit > maxToolLimit {
		return args, fmt.Errorf("limit must be between 1 and %d", maxToolLimit)
	}
	return args, nil
}

// Search executes the search described by args
func (a *RestaurantSearchToolAdapter) Search(ctx context.Context, args RestaurantSearchArgs) (*RestaurantSearchResponse, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	response := &RestaurantSearchResponse{}

	var (
		entries []types.ResultEntry
		err     error
	)
	if args.Address != "" {
		var resolved *types.GeocodeResult
		entries, resolved, err = a.searcher.RunFromAddress(ctx, args.Address)
		if resolved != nil {
			response.Origin = resolved.Location
			response.ResolvedAddress = resolved.FormattedAddress
		}
	} else {
		origin, cerr := types.NewCoordinate(*args.Latitude, *args.Longitude)
		if cerr != nil {
			return nil, types.NewSearchError(types.ErrorTypeValidation, cerr.Error(), cerr)
		}
		response.Origin = origin
		entries, err = a.searcher.Run(ctx, origin)
	}
	if err != nil {
		return nil, err
	}

	if args.Limit > 0 && len(entries) > args.Limit {
		entries = entries[:args.Limit]
	}
	if args.IncludePhone && a.enricher != nil {
		entries = a.enricher.Enrich(ctx, entries)
	}

	response.Restaurants = make([]RestaurantItem, 0, len(entries))
	for _, e := range entries {
		response.Restaurants = append(response.Restaurants, toItem(e))
	}
	response.Count = len(response.Restaurants)
	response.DurationMs = time.Since(start).Milliseconds()
	return response, nil
}

func toItem(e types.ResultEntry) RestaurantItem {
	return RestaurantItem{
		PlaceID:          e.ID,
		Name:             e.Name,
		Address:          e.Address,
		DistanceMeters:   e.DistanceMeters,
		Distance:         geo.FormatMeters(e.DistanceMeters),
		Rating:           e.Rating,
		UserRatingsTotal: e.UserRatingsTotal,
		OpenNow:          e.OpenNow,
		PriceLevel:       e.PriceLevel,
		Phone:            e.Phone,
		Types:            e.Types,
		MapsURL:          mapsURL(e.CandidatePlace),
	}
}

// mapsURL links to the place on Google Maps
func mapsURL(p types.CandidatePlace) string {
	q := url.Values{}
	q.Set("api", "1")
	q.Set("query", p.Name)
	q.Set("query_place_id", p.ID)
	return "https://www.google.com/maps/search/?" + q.Encode()
}
