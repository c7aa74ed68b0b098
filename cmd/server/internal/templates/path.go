package templates

import (
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Slug replaces every whitespace run in name with a single hyphen.
func Slug(name string) string {
	return whitespaceRun.ReplaceAllString(name, "-")
}

// ContentPath derives <department>/<appCode>/<slug>.json.
func ContentPath(department, appCode, name string) string {
	return strings.Join([]string{department, appCode, Slug(name) + ".json"}, "/")
}
