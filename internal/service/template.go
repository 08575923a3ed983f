package service

import (
	"regexp"
	"strings"

	"github.com/jpcardenas/sms-dispatch/internal/domain"
)

// LinkPlaceholder marks where the dynamic short link goes in a template.
const LinkPlaceholder = "{link}"

var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

// RenderMessage substitutes every {field} placeholder present in the job's
// metadata. The dynamic link is wrapped in line breaks: carriers score bare
// inline URLs as spam far more often. Unknown placeholders are left intact.
func RenderMessage(content string, metadata domain.Metadata, dynamicLink string) string {
	rendered := content

	for key, value := range metadata {
		rendered = strings.ReplaceAll(rendered, "{"+key+"}", value)
	}

	if dynamicLink != "" && strings.Contains(rendered, LinkPlaceholder) {
		rendered = strings.ReplaceAll(rendered, LinkPlaceholder, "\n"+dynamicLink+"\n")
	}

	return rendered
}

// TemplateFields lists the placeholder names used in a message template.
func TemplateFields(content string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(content, -1)

	fields := make([]string, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			fields = append(fields, m[1])
		}
	}

	return fields
}
