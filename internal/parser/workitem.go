// Package parser loads work items from markdown files. A work-item file is
// YAML frontmatter (id, name, retry and verification overrides) followed by
// a markdown body: free text becomes the description, and bullet lists under
// the "Acceptance Criteria", "Related Files", and "Style Conventions"
// headings populate the corresponding slices.
package parser

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/harrison/foreman/internal/models"
)

// Section headings recognized in the work-item body. Matched
// case-insensitively.
const (
	sectionAcceptance  = "acceptance criteria"
	sectionFiles       = "related files"
	sectionConventions = "style conventions"
)

// WorkItemParser parses markdown work-item files.
type WorkItemParser struct {
	markdown goldmark.Markdown
}

// NewWorkItemParser creates a parser with default goldmark settings.
func NewWorkItemParser() *WorkItemParser {
	return &WorkItemParser{
		markdown: goldmark.New(),
	}
}

// ParseFile parses the work-item file at path.
func (p *WorkItemParser) ParseFile(path string) (*models.WorkItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open work item file: %w", err)
	}
	defer f.Close()
	return p.Parse(f)
}

// Parse reads a complete work-item document from r.
func (p *WorkItemParser) Parse(r io.Reader) (*models.WorkItem, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	item := &models.WorkItem{}
	body, frontmatter := extractFrontmatter(content)
	if frontmatter != nil {
		if err := yaml.Unmarshal(frontmatter, item); err != nil {
			return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
		}
	}

	doc := p.markdown.Parser().Parse(text.NewReader(body))
	if err := extractSections(doc, body, item); err != nil {
		return nil, fmt.Errorf("failed to extract sections: %w", err)
	}

	if err := item.Validate(); err != nil {
		return nil, err
	}
	return item, nil
}

// extractSections walks the markdown body. The level 1 heading, when
// present and the item has no name yet, becomes the name. Paragraph text
// before the first level 2 heading becomes the description. Bullet lists
// under recognized level 2 headings populate the matching slices.
func extractSections(doc ast.Node, source []byte, item *models.WorkItem) error {
	var descParts []string
	var currentSection string

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			headingText := strings.TrimSpace(extractText(node, source))
			if node.Level == 1 {
				if item.Name == "" {
					item.Name = headingText
				}
				return ast.WalkSkipChildren, nil
			}
			if node.Level == 2 {
				currentSection = strings.ToLower(headingText)
				return ast.WalkSkipChildren, nil
			}

		case *ast.Paragraph:
			if currentSection == "" {
				if t := strings.TrimSpace(extractText(node, source)); t != "" {
					descParts = append(descParts, t)
				}
			}
			return ast.WalkSkipChildren, nil

		case *ast.List:
			items := extractListItems(node, source)
			switch currentSection {
			case sectionAcceptance:
				item.AcceptanceCriteria = append(item.AcceptanceCriteria, items...)
			case sectionFiles:
				item.RelatedFiles = append(item.RelatedFiles, items...)
			case sectionConventions:
				item.StyleConventions = append(item.StyleConventions, items...)
			}
			return ast.WalkSkipChildren, nil
		}

		return ast.WalkContinue, nil
	})
	if err != nil {
		return err
	}

	item.Description = strings.Join(descParts, "\n\n")
	return nil
}

// extractListItems returns the trimmed text of each top-level item in list.
func extractListItems(list *ast.List, source []byte) []string {
	var items []string
	for li := list.FirstChild(); li != nil; li = li.NextSibling() {
		var parts []string
		for c := li.FirstChild(); c != nil; c = c.NextSibling() {
			if t := strings.TrimSpace(extractText(c, source)); t != "" {
				parts = append(parts, t)
			}
		}
		if joined := strings.Join(parts, " "); joined != "" {
			items = append(items, joined)
		}
	}
	return items
}

// extractText collects the raw text content beneath n.
func extractText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

// extractFrontmatter splits a document into body and YAML frontmatter. The
// frontmatter must start on the first line with "---" and end with a
// matching "---"; documents without one return a nil frontmatter.
func extractFrontmatter(content []byte) (body, frontmatter []byte) {
	lines := bytes.Split(content, []byte("\n"))

	if len(lines) < 3 || !bytes.Equal(bytes.TrimSpace(lines[0]), []byte("---")) {
		return content, nil
	}

	for i := 1; i < len(lines); i++ {
		if bytes.Equal(bytes.TrimSpace(lines[i]), []byte("---")) {
			frontmatter = bytes.Join(lines[1:i], []byte("\n"))
			body = bytes.Join(lines[i+1:], []byte("\n"))
			return body, frontmatter
		}
	}

	return content, nil
}
