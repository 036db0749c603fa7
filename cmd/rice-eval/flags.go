package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ricesearch/rice-eval/internal/experiment"
)

// parseRunFlag splits NAME=FILE.
func parseRunFlag(v string) (name, path string, err error) {
	name, path, ok := strings.Cut(v, "=")
	name, path = strings.TrimSpace(name), strings.TrimSpace(path)
	if !ok || name == "" || path == "" {
		return "", "", fmt.Errorf("invalid --run %q: want NAME=FILE", v)
	}
	return name, path, nil
}

// parseFuseFlag parses NAME=A,B or NAME=A:W,B:W. Inputs without a
// weight get 1 when any input is weighted.
func parseFuseFlag(v string) (experiment.FusionSpec, error) {
	name, list, ok := strings.Cut(v, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" || strings.TrimSpace(list) == "" {
		return experiment.FusionSpec{}, fmt.Errorf("invalid --fuse %q: want NAME=A,B", v)
	}

	spec := experiment.FusionSpec{Name: name}
	var weights []float64
	weighted := false
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		input, w, hasWeight := strings.Cut(part, ":")
		weight := 1.0
		if hasWeight {
			f, err := strconv.ParseFloat(w, 64)
			if err != nil || f <= 0 {
				return experiment.FusionSpec{}, fmt.Errorf("invalid weight %q in --fuse %q", w, v)
			}
			weight = f
			weighted = true
		}
		spec.Inputs = append(spec.Inputs, input)
		weights = append(weights, weight)
	}
	if len(spec.Inputs) == 0 {
		return experiment.FusionSpec{}, fmt.Errorf("invalid --fuse %q: no inputs", v)
	}
	if weighted {
		spec.Weights = weights
	}
	return spec, nil
}
