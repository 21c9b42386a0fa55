package config

import (
	"fmt"
	"os"

	"github.com/ca-srg/halalfinder/internal/types"
	"gopkg.in/yaml.v3"
)

// PolicyFromConfig builds the search policy from environment configuration
func PolicyFromConfig(config *Config) types.SearchPolicy {
	policy := types.SearchPolicy{
		Radii:              append([]int(nil), config.SearchRadii...),
		Keywords:           append([]string(nil), config.SearchKeywords...),
		Category:           config.SearchCategory,
		HardExclude:        append([]string(nil), config.SearchHardExclude...),
		ExcludedCategories: append([]string(nil), config.SearchExcludedCategories...),
		ExcludedChains:     append([]string(nil), config.SearchExcludedChains...),
		ResultCap:          config.SearchResultCap,
	}
	if config.SearchMaxPriceLevel >= 0 {
		level := config.SearchMaxPriceLevel
		policy.MaxPriceLevel = &level
	}
	return policy
}

// LoadPolicy resolves the search policy: the YAML file named by
// SEARCH_POLICY_FILE when set, otherwise the environment values.
// Fields missing from the file keep their environment values.
func LoadPolicy(config *Config) (types.SearchPolicy, error) {
	policy := PolicyFromConfig(config)
	if config.SearchPolicyFile == "" {
		if err := ValidatePolicy(&policy); err != nil {
			return types.SearchPolicy{}, fmt.Errorf("invalid search policy: %w", err)
		}
		return policy, nil
	}

	data, err := os.ReadFile(config.SearchPolicyFile)
	if err != nil {
		return types.SearchPolicy{}, fmt.Errorf("failed to read search policy file: %w", err)
	}

	var fromFile types.SearchPolicy
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return types.SearchPolicy{}, fmt.Errorf("failed to parse search policy file %s: %w", config.SearchPolicyFile, err)
	}

	mergePolicy(&policy, &fromFile)

	if err := ValidatePolicy(&policy); err != nil {
		return types.SearchPolicy{}, fmt.Errorf("invalid search policy %s: %w", config.SearchPolicyFile, err)
	}
	return policy, nil
}

func mergePolicy(dst, src *types.SearchPolicy) {
	if len(src.Radii) > 0 {
		dst.Radii = src.Radii
	}
	if len(src.Keywords) > 0 {
		dst.Keywords = src.Keywords
	}
	if src.Category != "" {
		dst.Category = src.Category
	}
	if src.HardExclude != nil {
		dst.HardExclude = src.HardExclude
	}
	if src.ExcludedCategories != nil {
		dst.ExcludedCategories = src.ExcludedCategories
	}
	if src.ExcludedChains != nil {
		dst.ExcludedChains = src.ExcludedChains
	}
	if src.ResultCap != 0 {
		dst.ResultCap = src.ResultCap
	}
	if src.MaxPriceLevel != nil {
		dst.MaxPriceLevel = src.MaxPriceLevel
	}
}

// ValidatePolicy checks policy invariants and clamps the cap
func ValidatePolicy(policy *types.SearchPolicy) error {
	if err := validateRadii(policy.Radii); err != nil {
		return err
	}
	if len(policy.Keywords) == 0 {
		return fmt.Errorf("at least one keyword is required")
	}
	if policy.MaxPriceLevel != nil && (*policy.MaxPriceLevel < 0 || *policy.MaxPriceLevel > 4) {
		return fmt.Errorf("max_price_level must be between 0 and 4")
	}
	policy.ResultCap = ClampResultCap(policy.ResultCap)
	return nil
}
