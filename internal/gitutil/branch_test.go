package gitutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/harrison/foreman/internal/models"
)

func TestDeriveBranchName(t *testing.T) {
	tests := []struct {
		name string
		item *models.WorkItem
		want string
	}{
		{
			"nil item",
			nil,
			"",
		},
		{
			"explicit branch wins",
			&models.WorkItem{ID: "t1", Name: "Whatever", Branch: "feature/custom"},
			"feature/custom",
		},
		{
			"derived from id and name",
			&models.WorkItem{ID: "task-7", Name: "Add Request Logging"},
			"task/task-7-add-request-logging",
		},
		{
			"id only",
			&models.WorkItem{ID: "T9"},
			"task/t9",
		},
		{
			"special characters collapsed",
			&models.WorkItem{ID: "t1", Name: "Fix: the  (weird) bug!!"},
			"task/t1-fix-the-weird-bug",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveBranchName(tt.item))
		})
	}
}

func TestDeriveBranchNameTruncated(t *testing.T) {
	item := &models.WorkItem{
		ID:   "task-1",
		Name: strings.Repeat("very long name ", 10),
	}
	branch := DeriveBranchName(item)
	assert.LessOrEqual(t, len(branch), 60)
	assert.False(t, strings.HasSuffix(branch, "-"))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "hello-world", Slugify("Hello, World!"))
	assert.Equal(t, "a-b-c", Slugify("  a  b  c  "))
	assert.Equal(t, "", Slugify("!!!"))
}
