// Package gitutil derives git branch names for work items. Branch and
// commit mechanics beyond naming belong to the host tooling, not foreman.
package gitutil

import (
	"regexp"
	"strings"

	"github.com/harrison/foreman/internal/models"
)

// maxBranchLen keeps derived names comfortably under git's ref limits and
// readable in log output.
const maxBranchLen = 60

var invalidBranchChars = regexp.MustCompile(`[^a-z0-9]+`)

// DeriveBranchName returns the branch for a work item: the explicit
// override when the item carries one, otherwise "task/<id>-<slug>" derived
// from the item's id and name.
func DeriveBranchName(item *models.WorkItem) string {
	if item == nil {
		return ""
	}
	if branch := strings.TrimSpace(item.Branch); branch != "" {
		return branch
	}

	name := "task/" + Slugify(item.ID)
	if slug := Slugify(item.Name); slug != "" {
		name += "-" + slug
	}
	if len(name) > maxBranchLen {
		name = strings.TrimRight(name[:maxBranchLen], "-")
	}
	return name
}

// Slugify lowercases s and collapses every run of non-alphanumeric
// characters into a single dash.
func Slugify(s string) string {
	slug := invalidBranchChars.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(slug, "-")
}
