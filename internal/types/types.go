package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Coordinate is the canonical latitude/longitude pair used across the code base.
// Every location value is normalized to it on entry.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// NewCoordinate validates and returns a coordinate
func NewCoordinate(lat, lng float64) (Coordinate, error) {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return Coordinate{}, fmt.Errorf("coordinate must be finite: %v,%v", lat, lng)
	}
	if lat < -90 || lat > 90 {
		return Coordinate{}, fmt.Errorf("latitude out of range: %v", lat)
	}
	if lng < -180 || lng > 180 {
		return Coordinate{}, fmt.Errorf("longitude out of range: %v", lng)
	}
	return Coordinate{Lat: lat, Lng: lng}, nil
}

// ParseCoordinate parses "lat,lng"
func ParseCoordinate(s string) (Coordinate, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Coordinate{}, fmt.Errorf("expected \"lat,lng\", got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid latitude %q: %w", parts[0], err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid longitude %q: %w", parts[1], err)
	}
	return NewCoordinate(lat, lng)
}

// String formats the coordinate the way the Places API expects it
func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

// CandidatePlace is a place record returned by the Places Directory before filtering
type CandidatePlace struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Address          string     `json:"address,omitempty"`
	Location         Coordinate `json:"location"`
	Rating           float64    `json:"rating,omitempty"`
	UserRatingsTotal int        `json:"user_ratings_total,omitempty"`
	OpenNow          *bool      `json:"open_now,omitempty"`
	Types            []string   `json:"types,omitempty"`
	PriceLevel       *int       `json:"price_level,omitempty"`
	ServesAlcohol    *bool      `json:"serves_alcohol,omitempty"`
	BusinessStatus   string     `json:"business_status,omitempty"`
	Phone            string     `json:"phone,omitempty"`
}

// ResultEntry is a candidate that survived filtering, with its distance from the search origin
type ResultEntry struct {
	CandidatePlace
	DistanceMeters float64 `json:"distance_meters"`
}

// PageStatus distinguishes a page with matches from an empty one
type PageStatus string

const (
	PageStatusOK        PageStatus = "ok"
	PageStatusNoMatches PageStatus = "no_matches"
)

// NearbyQuery is one keyword/radius scoped nearby search request
type NearbyQuery struct {
	Location     Coordinate `json:"location"`
	RadiusMeters int        `json:"radius_meters"`
	Category     string     `json:"category,omitempty"`
	Keyword      string     `json:"keyword,omitempty"`
}

// PlacesPage is a single page of nearby search results
type PlacesPage struct {
	Status        PageStatus       `json:"status"`
	Places        []CandidatePlace `json:"places"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

// HasMore reports whether a continuation page can be requested
func (p *PlacesPage) HasMore() bool {
	return p != nil && p.NextPageToken != ""
}

// PlaceDetails holds the subset of place details used for enrichment
type PlaceDetails struct {
	ID                 string `json:"id"`
	Phone              string `json:"phone,omitempty"`
	InternationalPhone string `json:"international_phone,omitempty"`
	Website            string `json:"website,omitempty"`
	ServesAlcohol      *bool  `json:"serves_alcohol,omitempty"`
}

// AddressComponent is one part of a geocoded address
type AddressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// GeocodeResult is one match from forward or reverse geocoding
type GeocodeResult struct {
	FormattedAddress string             `json:"formatted_address"`
	Location         Coordinate         `json:"location"`
	PlaceID          string             `json:"place_id,omitempty"`
	Components       []AddressComponent `json:"components,omitempty"`
}

// SearchPolicy is the static policy driving one search run
type SearchPolicy struct {
	Radii              []int    `json:"radii" yaml:"radii"`
	Keywords           []string `json:"keywords" yaml:"keywords"`
	Category           string   `json:"category" yaml:"category"`
	HardExclude        []string `json:"hard_exclude" yaml:"hard_exclude"`
	ExcludedCategories []string `json:"excluded_categories" yaml:"excluded_categories"`
	ExcludedChains     []string `json:"excluded_chains" yaml:"excluded_chains"`
	ResultCap          int      `json:"result_cap" yaml:"result_cap"`
	MaxPriceLevel      *int     `json:"max_price_level,omitempty" yaml:"max_price_level,omitempty"`
}

// Config represents the application configuration
type Config struct {
	// Places Directory
	PlacesAPIKey         string        `json:"-" env:"GOOGLE_MAPS_API_KEY"`
	PlacesBaseURL        string        `json:"places_base_url" env:"PLACES_BASE_URL,default=https://maps.googleapis.com"`
	PlacesLanguage       string        `json:"places_language" env:"PLACES_LANGUAGE,default=en"`
	PlacesRateLimit      float64       `json:"places_rate_limit" env:"PLACES_RATE_LIMIT,default=10.0"`
	PlacesRateBurst      int           `json:"places_rate_burst" env:"PLACES_RATE_BURST,default=10"`
	PlacesRequestTimeout time.Duration `json:"places_request_timeout" env:"PLACES_REQUEST_TIMEOUT,default=10s"`
	PlacesMaxRetries     int           `json:"places_max_retries" env:"PLACES_MAX_RETRIES,default=2"`
	PlacesRetryDelay     time.Duration `json:"places_retry_delay" env:"PLACES_RETRY_DELAY,default=500ms"`

	// Search policy
	SearchPolicyFile          string        `json:"search_policy_file" env:"SEARCH_POLICY_FILE"`
	SearchRadiiStr            string        `json:"-" env:"SEARCH_RADII,default=5000|10000|20000"`
	SearchRadii               []int         `json:"search_radii"`
	SearchKeywordsStr         string        `json:"-" env:"SEARCH_KEYWORDS,default=halal|alcohol-free|non-alcoholic|halal OR alcohol-free OR non-alcoholic"`
	SearchKeywords            []string      `json:"search_keywords"`
	SearchCategory            string        `json:"search_category" env:"SEARCH_CATEGORY,default=restaurant"`
	SearchHardExcludeStr      string        `json:"-" env:"SEARCH_HARD_EXCLUDE,default=pub|brewery|brewing|tavern|saloon|taproom|beer|wine bar|cocktail|sports bar|liquor"`
	SearchHardExclude         []string      `json:"search_hard_exclude"`
	SearchExcludedCategoryStr string        `json:"-" env:"SEARCH_EXCLUDED_CATEGORIES,default=bar|night_club|liquor_store"`
	SearchExcludedCategories  []string      `json:"search_excluded_categories"`
	SearchExcludedChainsStr   string        `json:"-" env:"SEARCH_EXCLUDED_CHAINS,default=applebee's|chili's|tgi friday|olive garden|buffalo wild wings|hooters|red robin|outback steakhouse"`
	SearchExcludedChains      []string      `json:"search_excluded_chains"`
	SearchResultCap           int           `json:"search_result_cap" env:"SEARCH_RESULT_CAP,default=50"`
	SearchMaxPriceLevel       int           `json:"search_max_price_level" env:"SEARCH_MAX_PRICE_LEVEL,default=-1"`
	SearchPageDelay           time.Duration `json:"search_page_delay" env:"SEARCH_PAGE_DELAY,default=200ms"`
	SearchTimeout             time.Duration `json:"search_timeout" env:"SEARCH_TIMEOUT,default=60s"`
	EnrichPhoneNumbers        bool          `json:"enrich_phone_numbers" env:"ENRICH_PHONE_NUMBERS,default=false"`
	EnrichConcurrency         int           `json:"enrich_concurrency" env:"ENRICH_CONCURRENCY,default=5"`

	// Device location
	DeviceLocationEnabled bool          `json:"device_location_enabled" env:"DEVICE_LOCATION_ENABLED,default=true"`
	DeviceLocationURL     string        `json:"device_location_url" env:"DEVICE_LOCATION_URL,default=http://ip-api.com/json/"`
	DeviceLocationTimeout time.Duration `json:"device_location_timeout" env:"DEVICE_LOCATION_TIMEOUT,default=5s"`
	DeviceLocationStatic  bool          `json:"device_location_static_fallback" env:"DEVICE_LOCATION_STATIC_FALLBACK,default=false"`
	DefaultLatitude       float64       `json:"default_latitude" env:"DEFAULT_LATITUDE,default=40.7128"`
	DefaultLongitude      float64       `json:"default_longitude" env:"DEFAULT_LONGITUDE,default=-74.0060"`

	// Web UI
	WebUIHost            string        `json:"webui_host" env:"WEBUI_HOST,default=localhost"`
	WebUIPort            int           `json:"webui_port" env:"WEBUI_PORT,default=8081"`
	WebUIReadTimeout     time.Duration `json:"webui_read_timeout" env:"WEBUI_READ_TIMEOUT,default=30s"`
	WebUIWriteTimeout    time.Duration `json:"webui_write_timeout" env:"WEBUI_WRITE_TIMEOUT,default=90s"`
	WebUIShutdownTimeout time.Duration `json:"webui_shutdown_timeout" env:"WEBUI_SHUTDOWN_TIMEOUT,default=15s"`

	// MCP server
	MCPServerHost            string        `json:"mcp_server_host" env:"MCP_SERVER_HOST,default=localhost"`
	MCPServerPort            int           `json:"mcp_server_port" env:"MCP_SERVER_PORT,default=8080"`
	MCPServerReadTimeout     time.Duration `json:"mcp_server_read_timeout" env:"MCP_SERVER_READ_TIMEOUT,default=30s"`
	MCPServerWriteTimeout    time.Duration `json:"mcp_server_write_timeout" env:"MCP_SERVER_WRITE_TIMEOUT,default=90s"`
	MCPServerIdleTimeout     time.Duration `json:"mcp_server_idle_timeout" env:"MCP_SERVER_IDLE_TIMEOUT,default=120s"`
	MCPServerShutdownTimeout time.Duration `json:"mcp_server_shutdown_timeout" env:"MCP_SERVER_SHUTDOWN_TIMEOUT,default=15s"`
	MCPIPAuthEnabled         bool          `json:"mcp_ip_auth_enabled" env:"MCP_IP_AUTH_ENABLED,default=true"`
	MCPAllowedIPsStr         string        `json:"-" env:"MCP_ALLOWED_IPS,default=127.0.0.1|::1"`
	MCPAllowedIPs            []string      `json:"mcp_allowed_ips"`
	MCPTrustedProxiesStr     string        `json:"-" env:"MCP_TRUSTED_PROXIES"`
	MCPTrustedProxies        []string      `json:"mcp_trusted_proxies"`
	MCPToolName              string        `json:"mcp_tool_name" env:"MCP_TOOL_NAME,default=find_alcohol_free_restaurants"`

	// Usage statistics
	StatsDBPath string `json:"stats_db_path" env:"STATS_DB_PATH"`

	// OpenTelemetry
	OTelEnabled              bool          `json:"otel_enabled" env:"OTEL_ENABLED,default=false"`
	OTelServiceName          string        `json:"otel_service_name" env:"OTEL_SERVICE_NAME,default=halalfinder"`
	OTelExporterOTLPEndpoint string        `json:"otel_exporter_otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelExporterOTLPProtocol string        `json:"otel_exporter_otlp_protocol" env:"OTEL_EXPORTER_OTLP_PROTOCOL,default=http/protobuf"`
	OTelResourceAttributes   string        `json:"otel_resource_attributes" env:"OTEL_RESOURCE_ATTRIBUTES"`
	OTelTracesSampler        string        `json:"otel_traces_sampler" env:"OTEL_TRACES_SAMPLER,default=always_on"`
	OTelTracesSamplerArg     float64       `json:"otel_traces_sampler_arg" env:"OTEL_TRACES_SAMPLER_ARG,default=1.0"`
	OTelMetricExportInterval time.Duration `json:"otel_metric_export_interval" env:"OTEL_METRIC_EXPORT_INTERVAL,default=60s"`
}

// DefaultLocation returns the configured map centre
func (c *Config) DefaultLocation() Coordinate {
	return Coordinate{Lat: c.DefaultLatitude, Lng: c.DefaultLongitude}
}
