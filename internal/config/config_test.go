package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GOOGLE_MAPS_API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, []int{5000, 10000, 20000}, cfg.SearchRadii)
	require.Equal(t, []string{"halal", "alcohol-free", "non-alcoholic", "halal OR alcohol-free OR non-alcoholic"}, cfg.SearchKeywords)
	require.Equal(t, "restaurant", cfg.SearchCategory)
	require.Equal(t, 50, cfg.SearchResultCap)
	require.Equal(t, 200*time.Millisecond, cfg.SearchPageDelay)
	require.Contains(t, cfg.SearchHardExclude, "pub")
	require.Contains(t, cfg.SearchExcludedCategories, "night_club")
	require.Contains(t, cfg.SearchExcludedChains, "applebee's")
	require.Equal(t, []string{"127.0.0.1", "::1"}, cfg.MCPAllowedIPs)
	require.NoError(t, RequirePlacesAPIKey(cfg))

	policy := PolicyFromConfig(cfg)
	require.Nil(t, policy.MaxPriceLevel, "negative price level disables the ceiling")
}

func TestLoadNormalizesRanges(t *testing.T) {
	t.Run("clamps result cap and concurrency", func(t *testing.T) {
		t.Setenv("SEARCH_RESULT_CAP", "500")
		t.Setenv("ENRICH_CONCURRENCY", "0")
		t.Setenv("PLACES_MAX_RETRIES", "-3")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, MaxResultCap, cfg.SearchResultCap)
		require.Equal(t, 1, cfg.EnrichConcurrency)
		require.Equal(t, 0, cfg.PlacesMaxRetries)
	})

	t.Run("raises small cap to the minimum", func(t *testing.T) {
		t.Setenv("SEARCH_RESULT_CAP", "5")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, MinResultCap, cfg.SearchResultCap)
	})

	t.Run("trims list entries", func(t *testing.T) {
		t.Setenv("SEARCH_KEYWORDS", " halal | | zabiha ")
		t.Setenv("SEARCH_RADII", "1000, 3000,9000")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, []string{"halal", "zabiha"}, cfg.SearchKeywords)
		require.Equal(t, []int{1000, 3000, 9000}, cfg.SearchRadii)
	})
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"descending radii":  {"SEARCH_RADII": "10000|5000"},
		"non numeric":       {"SEARCH_RADII": "5km"},
		"empty keywords":    {"SEARCH_KEYWORDS": " | "},
		"bad base url":      {"PLACES_BASE_URL": "ftp://"},
		"bad mcp port":      {"MCP_SERVER_PORT": "70000"},
		"bad allowed ip":    {"MCP_ALLOWED_IPS": "not-an-ip"},
		"bad trusted proxy": {"MCP_TRUSTED_PROXIES": "10.0.0.0/40"},
		"bad tool name":     {"MCP_TOOL_NAME": "find-restaurants"},
		"default lat range": {"DEFAULT_LATITUDE": "123"},
	}

	for name, envs := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range envs {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestRequirePlacesAPIKey(t *testing.T) {
	t.Setenv("GOOGLE_MAPS_API_KEY", "  ")
	cfg, err := Load()
	require.NoError(t, err)
	require.Error(t, RequirePlacesAPIKey(cfg))
}

func TestLoadPolicyFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
radii: [2000, 4000]
keywords: ["halal"]
excluded_chains: []
result_cap: 35
max_price_level: 2
`), 0o644))
	t.Setenv("SEARCH_POLICY_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	policy, err := LoadPolicy(cfg)
	require.NoError(t, err)
	require.Equal(t, []int{2000, 4000}, policy.Radii)
	require.Equal(t, []string{"halal"}, policy.Keywords)
	require.Equal(t, "restaurant", policy.Category, "missing fields keep environment values")
	require.Empty(t, policy.ExcludedChains, "explicit empty list clears chains")
	require.Contains(t, policy.HardExclude, "pub")
	require.Equal(t, 35, policy.ResultCap)
	require.NotNil(t, policy.MaxPriceLevel)
	require.Equal(t, 2, *policy.MaxPriceLevel)
}

func TestLoadPolicyRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()

	unordered := filepath.Join(dir, "unordered.yaml")
	require.NoError(t, os.WriteFile(unordered, []byte("radii: [9000, 1000]\n"), 0o644))
	t.Setenv("SEARCH_POLICY_FILE", unordered)
	cfg, err := Load()
	require.NoError(t, err)
	_, err = LoadPolicy(cfg)
	require.Error(t, err)

	cfg.SearchPolicyFile = filepath.Join(dir, "missing.yaml")
	_, err = LoadPolicy(cfg)
	require.Error(t, err)

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("radii: [1000\n"), 0o644))
	cfg.SearchPolicyFile = broken
	_, err = LoadPolicy(cfg)
	require.Error(t, err)
}

func TestLoadPolicyValidatesEnvironment(t *testing.T) {
	t.Setenv("SEARCH_MAX_PRICE_LEVEL", "9")

	cfg, err := Load()
	require.NoError(t, err)

	_, err = LoadPolicy(cfg)
	require.ErrorContains(t, err, "max_price_level")

	cfg.SearchMaxPriceLevel = 3
	cfg.SearchResultCap = 500
	policy, err := LoadPolicy(cfg)
	require.NoError(t, err)
	require.Equal(t, 3, *policy.MaxPriceLevel)
	require.Equal(t, MaxResultCap, policy.ResultCap)
}
