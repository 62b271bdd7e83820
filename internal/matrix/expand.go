package matrix

// Expand produces the full Cartesian product of every family's axis values
// as JobSpecs. Enumeration is deterministic: families in declaration order,
// then lexicographic over axis declaration order with the last axis varying
// fastest. The number of specs per family equals the product of its axis
// cardinalities. Expansion has no side effects.
func Expand(families ...Family) ([]JobSpec, error) {
	if err := validate(families); err != nil {
		return nil, err
	}

	var specs []JobSpec
	for _, fam := range families {
		specs = append(specs, expandFamily(fam)...)
	}
	return specs, nil
}

func expandFamily(fam Family) []JobSpec {
	total := 1
	for _, axis := range fam.Axes {
		total *= len(axis.Values)
	}

	specs := make([]JobSpec, 0, total)
	indices := make([]int, len(fam.Axes))
	for {
		axes := make([]AxisValue, len(fam.Axes))
		for i, axis := range fam.Axes {
			axes[i] = AxisValue{Axis: axis.Name, Value: axis.Values[indices[i]]}
		}
		specs = append(specs, JobSpec{
			Family: fam.Name,
			Axes:   axes,
			Steps:  copySteps(fam.Steps),
		})

		// Odometer increment, last axis fastest.
		pos := len(indices) - 1
		for pos >= 0 {
			indices[pos]++
			if indices[pos] < len(fam.Axes[pos].Values) {
				break
			}
			indices[pos] = 0
			pos--
		}
		if pos < 0 {
			break
		}
	}
	return specs
}

func validate(families []Family) error {
	if len(families) == 0 {
		return configErrorf("no job families declared")
	}
	seenFamilies := make(map[string]struct{}, len(families))
	for _, fam := range families {
		if fam.Name == "" {
			return configErrorf("family with empty name")
		}
		if _, dup := seenFamilies[fam.Name]; dup {
			return configErrorf("duplicate family %q", fam.Name)
		}
		seenFamilies[fam.Name] = struct{}{}

		if len(fam.Steps) == 0 {
			return configErrorf("family %q declares no steps", fam.Name)
		}
		for i, step := range fam.Steps {
			if step.Run == "" {
				return configErrorf("family %q step %d has no command", fam.Name, i)
			}
		}

		seenAxes := make(map[string]struct{}, len(fam.Axes))
		for _, axis := range fam.Axes {
			if axis.Name == "" {
				return configErrorf("family %q has an axis with empty name", fam.Name)
			}
			if _, dup := seenAxes[axis.Name]; dup {
				return configErrorf("family %q declares axis %q twice", fam.Name, axis.Name)
			}
			seenAxes[axis.Name] = struct{}{}
			if len(axis.Values) == 0 {
				return configErrorf("family %q axis %q has no values", fam.Name, axis.Name)
			}
		}
	}
	return nil
}

func copySteps(steps []Step) []Step {
	out := make([]Step, len(steps))
	copy(out, steps)
	for i := range out {
		if len(steps[i].Env) > 0 {
			env := make(map[string]string, len(steps[i].Env))
			for k, v := range steps[i].Env {
				env[k] = v
			}
			out[i].Env = env
		}
	}
	return out
}
