package tasks

import (
	"sort"
	"strings"

	"semaphore/pkg/models"
)

// IsDuplicate reports whether the candidate defines the same automation
// as an existing task: the same source account set, the same target
// account set, and the same trigger type. Account order never matters.
func IsDuplicate(candidate models.CreateTaskRequest, existing models.Task) bool {
	if candidate.Filters.TriggerType != existing.Filters.TriggerType {
		return false
	}
	return sameSet(candidate.SourceAccounts, existing.SourceAccounts) &&
		sameSet(candidate.TargetAccounts, existing.TargetAccounts)
}

// FindDuplicate returns the first existing task the candidate
// duplicates, or nil.
func FindDuplicate(candidate models.CreateTaskRequest, existing []models.Task) *models.Task {
	for i := range existing {
		if IsDuplicate(candidate, existing[i]) {
			return &existing[i]
		}
	}
	return nil
}

func sameSet(a, b []string) bool {
	return setKey(a) == setKey(b)
}

func setKey(ids []string) string {
	unique := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	sorted := make([]string, 0, len(unique))
	for id := range unique {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}
