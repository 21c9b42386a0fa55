package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/ca-srg/halalfinder/internal/types"
	env "github.com/netflix/go-env"
)

// Type alias for Config
type Config = types.Config

const (
	MinResultCap = 30
	MaxResultCap = 50
)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var config Config

	_, err := env.UnmarshalFromEnviron(&config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	config.SearchKeywords = splitList(config.SearchKeywordsStr, "|")
	config.SearchHardExclude = splitList(config.SearchHardExcludeStr, "|")
	config.SearchExcludedCategories = splitList(config.SearchExcludedCategoryStr, "|")
	config.SearchExcludedChains = splitList(config.SearchExcludedChainsStr, "|")
	config.MCPAllowedIPs = splitList(config.MCPAllowedIPsStr, "|")
	config.MCPTrustedProxies = splitList(config.MCPTrustedProxiesStr, "|")

	radii, err := parseRadii(config.SearchRadiiStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SEARCH_RADII: %w", err)
	}
	config.SearchRadii = radii

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// RequirePlacesAPIKey fails when no Places API key is configured
func RequirePlacesAPIKey(config *Config) error {
	if strings.TrimSpace(config.PlacesAPIKey) == "" {
		return fmt.Errorf("GOOGLE_MAPS_API_KEY is required")
	}
	return nil
}

// splitList splits a separated string, trimming blanks
func splitList(raw, sep string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseRadii(raw string) ([]int, error) {
	parts := splitList(strings.ReplaceAll(raw, ",", "|"), "|")
	radii := make([]int, 0, len(parts))
	for _, p := range parts {
		r, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("radius %q is not an integer", p)
		}
		radii = append(radii, r)
	}
	return radii, nil
}

// validateConfig validates configuration values and adjusts them to safe ranges
func validateConfig(config *Config) error {
	config.SearchResultCap = ClampResultCap(config.SearchResultCap)

	if config.EnrichConcurrency < 1 {
		config.EnrichConcurrency = 1
	}
	if config.EnrichConcurrency > 20 {
		config.EnrichConcurrency = 20
	}

	if config.PlacesMaxRetries < 0 {
		config.PlacesMaxRetries = 0
	}
	if config.PlacesMaxRetries > 10 {
		config.PlacesMaxRetries = 10
	}

	if config.SearchPageDelay < 0 {
		config.SearchPageDelay = 0
	}

	if err := validateRadii(config.SearchRadii); err != nil {
		return err
	}
	if len(config.SearchKeywords) == 0 {
		return fmt.Errorf("SEARCH_KEYWORDS must contain at least one keyword")
	}

	if err := validatePlacesConfig(config); err != nil {
		return fmt.Errorf("places configuration validation failed: %w", err)
	}

	if config.DefaultLatitude < -90 || config.DefaultLatitude > 90 ||
		config.DefaultLongitude < -180 || config.DefaultLongitude > 180 {
		return fmt.Errorf("DEFAULT_LATITUDE/DEFAULT_LONGITUDE out of range")
	}

	if err := validatePort("WEBUI_PORT", config.WebUIPort); err != nil {
		return err
	}

	if err := validateMCPConfig(config); err != nil {
		return fmt.Errorf("MCP server configuration validation failed: %w", err)
	}

	return nil
}

// ClampResultCap keeps the cap in the supported range
func ClampResultCap(n int) int {
	if n < MinResultCap {
		return MinResultCap
	}
	if n > MaxResultCap {
		return MaxResultCap
	}
	return n
}

func validateRadii(radii []int) error {
	if len(radii) == 0 {
		return fmt.Errorf("at least one search radius is required")
	}
	for i, r := range radii {
		if r <= 0 {
			return fmt.Errorf("search radius must be positive, got %d", r)
		}
		if r > 50000 {
			return fmt.Errorf("search radius cannot exceed 50000 meters, got %d", r)
		}
		if i > 0 && r <= radii[i-1] {
			return fmt.Errorf("search radii must be strictly ascending: %v", radii)
		}
	}
	return nil
}

func validatePlacesConfig(config *Config) error {
	parsedURL, err := url.Parse(config.PlacesBaseURL)
	if err != nil {
		return fmt.Errorf("invalid PLACES_BASE_URL: %w", err)
	}
	if !strings.HasPrefix(parsedURL.Scheme, "http") || parsedURL.Host == "" {
		return fmt.Errorf("PLACES_BASE_URL must be an http(s) URL with a host")
	}

	if config.PlacesRateLimit <= 0 {
		return fmt.Errorf("PLACES_RATE_LIMIT must be greater than 0")
	}
	if config.PlacesRateBurst <= 0 {
		return fmt.Errorf("PLACES_RATE_BURST must be greater than 0")
	}
	if config.PlacesRequestTimeout <= 0 {
		return fmt.Errorf("PLACES_REQUEST_TIMEOUT must be greater than 0")
	}
	return nil
}

func validateMCPConfig(config *Config) error {
	if err := validatePort("MCP_SERVER_PORT", config.MCPServerPort); err != nil {
		return err
	}
	if config.MCPServerHost == "" {
		return fmt.Errorf("MCP_SERVER_HOST cannot be empty")
	}
	if !isValidToolName(config.MCPToolName) {
		return fmt.Errorf("MCP_TOOL_NAME contains invalid characters: %s", config.MCPToolName)
	}

	if config.MCPIPAuthEnabled {
		if len(config.MCPAllowedIPs) == 0 {
			return fmt.Errorf("MCP_ALLOWED_IPS cannot be empty when IP authentication is enabled")
		}
		if err := validateIPList("MCP_ALLOWED_IPS", config.MCPAllowedIPs); err != nil {
			return err
		}
	}
	return validateIPList("MCP_TRUSTED_PROXIES", config.MCPTrustedProxies)
}

// validateIPList checks that every entry is an IP address or CIDR block
func validateIPList(name string, entries []string) error {
	for _, entry := range entries {
		if strings.Contains(entry, "/") {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				return fmt.Errorf("invalid CIDR in %s: %s", name, entry)
			}
			continue
		}
		if net.ParseIP(entry) == nil {
			return fmt.Errorf("invalid IP address in %s: %s", name, entry)
		}
	}
	return nil
}

func validatePort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535", name)
	}
	return nil
}

// isValidToolName checks if a tool name is alphanumeric with underscores
func isValidToolName(name string) bool {
	if len(name) == 0 || len(name) > 100 {
		return false
	}
	for _, char := range name {
		if !((char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') || char == '_') {
			return false
		}
	}
	return true
}
