package collector

import (
	"regexp"
	"strings"
)

// criteriaPatterns are tried in fixed priority order. Each captures a
// labeled block terminated by a blank line, a markdown heading or end of
// text. The first pattern yielding at least one non-empty line wins.
var criteriaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)Acceptance Criteria:(.*?)(?:\n\n|\n#|\z)`),
	regexp.MustCompile(`(?is)AC:(.*?)(?:\n\n|\n#|\z)`),
	regexp.MustCompile(`(?is)Requirements:(.*?)(?:\n\n|\n#|\z)`),
	regexp.MustCompile(`(?is)User Story:(.*?)(?:\n\n|\n#|\z)`),
}

var (
	imgTagPattern  = regexp.MustCompile(`<img[^>]+src="([^"]+)"[^>]*>`)
	altAttrPattern = regexp.MustCompile(`alt="([^"]*)"`)
)

// inlineTagPattern removes markup remnants from criteria lines; the
// extraction runs over the raw HTML-origin description
var inlineTagPattern = regexp.MustCompile(`<[^>]+>`)

// imageHosts are the domain substrings that mark a URL as fetchable from
// the originating system. Images hosted anywhere else are ignored.
var imageHosts = []string{"dev.azure.com", "visualstudio.com"}

// ExtractAcceptanceCriteria pulls the acceptance-criteria block out of a
// raw description. Lines are stripped of leading list/heading markers;
// an empty result means the item simply has none.
func ExtractAcceptanceCriteria(description string) []string {
	for _, pattern := range criteriaPatterns {
		match := pattern.FindStringSubmatch(description)
		if match == nil {
			continue
		}

		var criteria []string
		for _, line := range strings.Split(match[1], "\n") {
			line = inlineTagPattern.ReplaceAllString(line, "")
			line = strings.TrimSpace(line)
			line = strings.TrimLeft(line, "-*#")
			line = strings.TrimSpace(line)
			if line != "" {
				criteria = append(criteria, line)
			}
		}

		if len(criteria) > 0 {
			return criteria
		}
	}

	return nil
}

// ImageTag is one <img> reference found in raw text
type ImageTag struct {
	URL string
	Alt string
}

// ExtractImageRefs scans raw text for <img> tags whose src points at the
// originating system. External images are not fetchable with the PAT and
// are skipped without logging.
func ExtractImageRefs(text string) []ImageTag {
	var refs []ImageTag

	for _, match := range imgTagPattern.FindAllStringSubmatch(text, -1) {
		url := match[1]
		if !isKnownImageHost(url) {
			continue
		}

		// The alt attribute is pulled from the full tag in a second pass;
		// a single pattern cannot capture it on both sides of src
		alt := ""
		if attr := altAttrPattern.FindStringSubmatch(match[0]); attr != nil {
			alt = attr[1]
		}

		refs = append(refs, ImageTag{URL: url, Alt: alt})
	}

	return refs
}

func isKnownImageHost(url string) bool {
	for _, host := range imageHosts {
		if strings.Contains(url, host) {
			return true
		}
	}
	return false
}
