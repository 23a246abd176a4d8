package services

import (
	"bufio"
	"strings"
)

// PlanSections is the parsed form of an AI-generated plan: the document
// split into blocks keyed by their "## " heading text, in order.
type PlanSections struct {
	order    []string
	sections map[string]string
}

// Canonical headings the plan consumer looks up
const (
	SectionWhy    = "Why"
	SectionWhat   = "What Changes"
	SectionImpact = "Impact"
	SectionTasks  = "Tasks"
)

// ParsePlanSections splits plan text into headed blocks. Text before the
// first heading is stored under the empty key. Duplicate headings keep
// the first block.
func ParsePlanSections(text string) *PlanSections {
	parsed := &PlanSections{sections: make(map[string]string)}

	current := ""
	var body []string

	flush := func() {
		if _, exists := parsed.sections[current]; exists {
			return
		}
		content := strings.TrimSpace(strings.Join(body, "\n"))
		if current == "" && content == "" {
			return
		}
		parsed.order = append(parsed.order, current)
		parsed.sections[current] = content
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if heading, ok := strings.CutPrefix(line, "## "); ok {
			flush()
			current = strings.TrimSpace(heading)
			body = nil
			continue
		}
		body = append(body, line)
	}
	flush()

	return parsed
}

// Get returns the body of the named section
func (p *PlanSections) Get(heading string) (string, bool) {
	content, ok := p.sections[heading]
	return content, ok
}

// Headings returns the section headings in document order
func (p *PlanSections) Headings() []string {
	return append([]string(nil), p.order...)
}
