package policy

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultSupportLevel is applied to the support-level label when none is configured.
const DefaultSupportLevel = "testing"

const labelSupportLevel = "support-level"

// Links are optional documentation links appended to every policy body.
type Links struct {
	Playbook       string `yaml:"playbook" json:"playbook" toml:"playbook"`
	DeploymentRepo string `yaml:"deployment_repo" json:"deployment_repo" toml:"deployment_repo"`
}

// Common holds the settings shared by every builder.
type Common struct {
	Prefix       string // usually the environment name
	SystemName   string
	SupportLevel string
	Links        Links
}

func (c Common) labels() map[string]string {
	level := c.SupportLevel
	if level == "" {
		level = DefaultSupportLevel
	}
	return map[string]string{labelSupportLevel: level}
}

func (c Common) documentation(alertName, content string) Documentation {
	return Documentation{
		Content:  content,
		Subject:  Subject(c.SystemName, alertName),
		MimeType: MimeMarkdown,
	}
}

type link struct {
	title string
	url   string
}

// docBody assembles the markdown body: summary, severity, impact, then links.
// Links with an empty URL are dropped, and so is the whole section if none remain.
func docBody(summary, impact string, links ...link) string {
	var b strings.Builder
	b.WriteString("### Summary\n")
	b.WriteString(summary)
	b.WriteString("\n\n### Severity\nWarning\n\n")
	b.WriteString(impact)
	b.WriteString("\n")

	var rendered []string
	for _, l := range links {
		if l.url == "" {
			continue
		}
		rendered = append(rendered, fmt.Sprintf("- [%s](%s)", l.title, l.url))
	}
	if len(rendered) > 0 {
		b.WriteString("\n---\n#### Link\n")
		b.WriteString(strings.Join(rendered, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

func percent(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e4)/1e2, 'f', -1, 64) + "%"
}
