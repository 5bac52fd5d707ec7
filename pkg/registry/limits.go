package registry

import "math"

// GetMyParallelLimit returns this process's equal share of the total
// LLM budget across all contending instances.
func (r *Registry) GetMyParallelLimit(totalMaxLLM int) (int, error) {
	contending, err := r.GetContendingInstanceCount()
	if err != nil {
		return 0, err
	}
	limit := int(math.Floor(float64(totalMaxLLM) / float64(contending)))
	if limit < 1 {
		limit = 1
	}
	return limit, nil
}

// GetDynamicParallelLimit weights the share by inverse pending workload
// instead of splitting the budget evenly: an instance with fewer
// pending tasks gets a larger slice.
func (r *Registry) GetDynamicParallelLimit(totalMaxLLM, myPending int) (int, error) {
	active, err := r.GetActiveInstances()
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	selfID := r.record.InstanceID
	r.mu.Unlock()

	weights := make(map[string]float64, len(active)+1)
	weights[selfID] = 1 / float64(myPending+1)
	total := weights[selfID]
	for _, inst := range active {
		if inst.InstanceID == selfID {
			continue
		}
		w := 1 / float64(inst.PendingTaskCount+1)
		weights[inst.InstanceID] = w
		total += w
	}
	if total <= 0 {
		total = 1
	}

	share := weights[selfID] / total
	slot := int(math.Round(float64(totalMaxLLM) * share))
	if slot < 1 {
		slot = 1
	}
	if slot > totalMaxLLM {
		slot = totalMaxLLM
	}
	return slot, nil
}
