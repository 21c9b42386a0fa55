package search

import (
	"github.com/ca-srg/halalfinder/internal/types"
)

// Step is one radius/keyword combination of a run
type Step struct {
	RadiusMeters int
	Keyword      string
}

// Steps expands the policy into its radius-major cross product:
// radii ascending, keywords in listed order within each radius.
func Steps(policy types.SearchPolicy) []Step {
	steps := make([]Step, 0, len(policy.Radii)*len(policy.Keywords))
	for _, radius := range policy.Radii {
		for _, keyword := range policy.Keywords {
			steps = append(steps, Step{RadiusMeters: radius, Keyword: keyword})
		}
	}
	return steps
}
