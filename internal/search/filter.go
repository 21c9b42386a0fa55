package search

import (
	"strings"

	"github.com/ca-srg/halalfinder/internal/types"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Reason names the rule that excluded a candidate
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonHardExclude   Reason = "hard_exclude"
	ReasonCategory      Reason = "excluded_category"
	ReasonServesAlcohol Reason = "serves_alcohol"
	ReasonChain         Reason = "excluded_chain"
	ReasonPriceLevel    Reason = "price_level"
)

var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "ʼ", "'")

// fold normalizes text for case-insensitive matching. A Caser keeps
// state, so one is created per call.
func fold(s string) string {
	return cases.Fold().String(apostrophes.Replace(norm.NFKC.String(s)))
}

// Filter is the exclusion predicate applied to every page before merging
type Filter struct {
	hardExclude []string
	categories  map[string]struct{}
	chains      []string
	maxPrice    *int
}

// NewFilter compiles the exclusion rules of policy
func NewFilter(policy types.SearchPolicy) *Filter {
	f := &Filter{
		hardExclude: foldAll(policy.HardExclude),
		categories:  make(map[string]struct{}, len(policy.ExcludedCategories)),
		chains:      foldAll(policy.ExcludedChains),
	}
	for _, c := range policy.ExcludedCategories {
		if c = fold(strings.TrimSpace(c)); c != "" {
			f.categories[c] = struct{}{}
		}
	}
	if policy.MaxPriceLevel != nil {
		level := *policy.MaxPriceLevel
		f.maxPrice = &level
	}
	return f
}

func foldAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = fold(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Allow reports whether c passes every rule. Missing data never excludes.
func (f *Filter) Allow(c types.CandidatePlace) (bool, Reason) {
	name := fold(c.Name)

	for _, term := range f.hardExclude {
		if strings.Contains(name, term) {
			return false, ReasonHardExclude
		}
	}
	for _, tag := range c.Types {
		if _, excluded := f.categories[fold(tag)]; excluded {
			return false, ReasonCategory
		}
	}
	if c.ServesAlcohol != nil && *c.ServesAlcohol {
		return false, ReasonServesAlcohol
	}
	for _, chain := range f.chains {
		if strings.Contains(name, chain) {
			return false, ReasonChain
		}
	}
	if f.maxPrice != nil && c.PriceLevel != nil && *c.PriceLevel > *f.maxPrice {
		return false, ReasonPriceLevel
	}
	return true, ReasonNone
}

// Apply returns the candidates that pass, in their original order
func (f *Filter) Apply(candidates []types.CandidatePlace) []types.CandidatePlace {
	kept := make([]types.CandidatePlace, 0, len(candidates))
	for _, c := range candidates {
		if ok, _ := f.Allow(c); ok {
			kept = append(kept, c)
		}
	}
	return kept
}
