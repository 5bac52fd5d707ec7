package registry

import (
	"regexp"
	"strings"
	"time"
)

// SetActiveModel records that a call against (provider, model) has
// started, persisting the change immediately.
func (r *Registry) SetActiveModel(provider, model string) error {
	return r.mutate(func(inst *Instance) {
		for _, am := range inst.ActiveModels {
			if am.Provider == provider && am.Model == model {
				return
			}
		}
		inst.ActiveModels = append(inst.ActiveModels, ActiveModel{
			Provider: provider,
			Model:    model,
			Since:    time.Now(),
		})
	})
}

// ClearActiveModel removes one in-flight (provider, model) marker.
func (r *Registry) ClearActiveModel(provider, model string) error {
	return r.mutate(func(inst *Instance) {
		kept := inst.ActiveModels[:0]
		for _, am := range inst.ActiveModels {
			if am.Provider == provider && am.Model == model {
				continue
			}
			kept = append(kept, am)
		}
		inst.ActiveModels = kept
	})
}

// modelMatches reports whether a peer's active-model entry should count
// toward contention for (provider, model). A match is exact, a prefix
// in either direction ("gpt-4" matches "gpt-4-turbo" and vice versa),
// or a glob (only "*" is treated as a wildcard; everything else in the
// pattern is matched literally).
func modelMatches(want, have string) bool {
	if want == have {
		return true
	}
	if strings.HasPrefix(have, want) || strings.HasPrefix(want, have) {
		return true
	}
	if strings.Contains(want, "*") {
		if ok, _ := regexp.MatchString("^"+globToRegexp(want)+"$", have); ok {
			return true
		}
	}
	return false
}

func globToRegexp(glob string) string {
	parts := strings.Split(glob, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(parts, ".*")
}

// GetActiveInstancesForModel returns every live peer (including self)
// currently holding an active-model entry matching (provider, model).
func (r *Registry) GetActiveInstancesForModel(provider, model string) ([]Instance, error) {
	active, err := r.GetActiveInstances()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	self := r.record
	registered := r.registered
	r.mu.Unlock()

	var matched []Instance
	seenSelf := false
	for _, inst := range active {
		if inst.InstanceID == self.InstanceID {
			seenSelf = true
		}
		for _, am := range inst.ActiveModels {
			if am.Provider == provider && modelMatches(model, am.Model) {
				matched = append(matched, inst)
				break
			}
		}
	}
	if registered && !seenSelf {
		for _, am := range self.ActiveModels {
			if am.Provider == provider && modelMatches(model, am.Model) {
				matched = append(matched, self)
				break
			}
		}
	}
	return matched, nil
}

// GetModelParallelLimit splits baseLimit evenly across every live
// instance currently calling (provider, model), never returning less
// than 1.
func (r *Registry) GetModelParallelLimit(provider, model string, baseLimit int) (int, error) {
	instances, err := r.GetActiveInstancesForModel(provider, model)
	if err != nil {
		return 0, err
	}
	n := len(instances)
	if n == 0 {
		n = 1
	}
	limit := baseLimit / n
	if limit < 1 {
		limit = 1
	}
	return limit, nil
}
