// internal/delivery/render.go
package delivery

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/unclebandit/dripleopard-backend/internal/model"
)

var placeholderPattern = regexp.MustCompile(`\{(.*?)}`)

// Placeholders returns the placeholder names referenced by a template string.
// "Hi {name}, your {topic}" yields ["name", "topic"].
func Placeholders(s string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(s, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// RenderTemplate fills {placeholder} slots in the subject and content with the
// contact's info. Every referenced placeholder must have a value; a reference
// the contact lacks is an error, since retrying cannot repair it.
func RenderTemplate(tpl model.Template, info model.ContactInfo) (string, string, error) {
	if tpl.Subject == "" || tpl.Content == "" {
		return "", "", fmt.Errorf("template has empty subject or content")
	}

	for _, field := range []struct{ name, text string }{
		{"subject", tpl.Subject},
		{"content", tpl.Content},
	} {
		for _, name := range Placeholders(field.text) {
			if _, ok := info[name]; !ok {
				return "", "", fmt.Errorf("%s references placeholder %q missing from contact info", field.name, name)
			}
		}
	}

	subject := tpl.Subject
	content := tpl.Content
	for k, v := range info {
		subject = strings.ReplaceAll(subject, "{"+k+"}", v)
		content = strings.ReplaceAll(content, "{"+k+"}", v)
	}
	return subject, content, nil
}
