package reconcile

import "sbr_monitor/models"

// Merge unions local and remote by id. Records from remote whose id is not in
// local are appended; on a shared id the local copy is kept. Duplicate ids
// within either input collapse to their first occurrence. The result is
// sorted newest first and added is the number of remote ids new to local.
func Merge(local, remote []models.Measurement) (merged []models.Measurement, added int) {
	seen := make(map[string]struct{}, len(local)+len(remote))
	merged = make([]models.Measurement, 0, len(local)+len(remote))

	for _, m := range local {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
	}
	for _, m := range remote {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
		added++
	}

	models.SortHistory(merged)
	return merged, added
}

// Dedupe drops repeated ids, keeping the first occurrence, and sorts the result
func Dedupe(history []models.Measurement) []models.Measurement {
	out, _ := Merge(history, nil)
	return out
}
