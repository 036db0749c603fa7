package experiment

import (
	"fmt"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/ranker"
)

// FusionSpec describes a system built by fusing other systems' rankings.
type FusionSpec struct {
	Name    string    `json:"name" yaml:"name"`
	Inputs  []string  `json:"inputs" yaml:"inputs"`
	K       int       `json:"k,omitempty" yaml:"k"`
	Weights []float64 `json:"weights,omitempty" yaml:"weights"`
}

// FusionSystem builds a ranker-backed system that fuses the named input
// systems. Inputs are looked up by name in systems.
func FusionSystem(spec FusionSpec, systems []System) (System, error) {
	if spec.Name == "" {
		return System{}, errors.ValidationError("fusion name is required")
	}
	if len(spec.Inputs) == 0 {
		return System{}, errors.ValidationError(fmt.Sprintf("fusion %s has no inputs", spec.Name))
	}

	byName := make(map[string]System, len(systems))
	for _, s := range systems {
		byName[s.Name] = s
	}

	rankers := make([]ranker.Ranker, len(spec.Inputs))
	for i, name := range spec.Inputs {
		s, ok := byName[name]
		if !ok {
			return System{}, errors.ValidationError(fmt.Sprintf("fusion %s: unknown input system %s", spec.Name, name))
		}
		if s.Err != nil {
			// The fusion fails with its input instead of failing the experiment
			return System{Name: spec.Name, Err: errors.Wrap(errors.CodeValidation,
				fmt.Sprintf("fusion %s: input system %s failed", spec.Name, name), s.Err)}, nil
		}
		if s.Run != nil {
			rankers[i] = ranker.NewStatic(s.Run)
		} else {
			rankers[i] = s.Ranker
		}
	}

	fusion, err := ranker.NewFusion(ranker.FusionConfig{K: spec.K, Weights: spec.Weights}, rankers...)
	if err != nil {
		return System{}, err
	}
	return System{Name: spec.Name, Ranker: fusion}, nil
}
