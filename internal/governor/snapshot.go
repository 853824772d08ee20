package governor

import (
	"github.com/ppiankov/intentgov/internal/criteria"
	"github.com/ppiankov/intentgov/internal/model"
	"github.com/ppiankov/intentgov/internal/policy"
)

// Sources locate the constitution and the criteria.
type Sources struct {
	Constitution string
	Criteria     string
}

// Snapshot is an immutable set of rules and criteria. Runs read it once at
// start.
type Snapshot struct {
	Rules            []policy.Rule
	ConstitutionHash string
	Criteria         []model.Criterion
}

// Load reads both sources. Failures are *model.ConfigError.
func Load(src Sources) (*Snapshot, error) {
	rules, hash, err := policy.LoadFileWithHash(src.Constitution)
	if err != nil {
		return nil, err
	}
	cs, err := criteria.Load(src.Criteria)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Rules: rules, ConstitutionHash: hash, Criteria: cs}, nil
}
