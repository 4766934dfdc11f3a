package registry

import (
	"strings"

	"github.com/runbookd/runbookd/pkg/models"
)

// ParseSteps extracts procedure steps from a runbook.md document.
//
// The parser scans for a "## Steps" heading followed by numbered items
// ("1.", "2.", ...). Each item's leading **bold** text is the step title and
// the remainder is body. Sub-bullets "- tools: a, b" and
// "- requires_confirmation: true" set the tool hints and confirmation flag;
// other indented lines continue the body. Any other "##" heading ends the
// section.
func ParseSteps(doc string) []models.Step {
	p := stepParser{}

	for _, line := range strings.Split(doc, "\n") {
		p.consume(strings.TrimSpace(line))
	}

	p.flush()

	return p.steps
}

type stepParser struct {
	steps   []models.Step
	inSteps bool
	open    bool
	current models.Step
}

func (p *stepParser) consume(line string) {
	if strings.HasPrefix(line, "## ") {
		if strings.EqualFold(line, "## steps") {
			p.inSteps = true

			return
		}

		if p.inSteps {
			p.flush()
			p.inSteps = false
		}

		return
	}

	if !p.inSteps {
		return
	}

	if rest, ok := cutNumberedItem(line); ok {
		p.flush()

		p.open = true
		p.current = models.Step{Number: len(p.steps) + 1}
		p.current.Title, p.current.Body = splitBoldTitle(rest)

		return
	}

	if !p.open {
		return
	}

	if bullet, ok := strings.CutPrefix(line, "- "); ok {
		bullet = strings.TrimSpace(bullet)

		if tools, found := strings.CutPrefix(bullet, "tools:"); found {
			p.current.SuggestedTools = splitTools(tools)

			return
		}

		if flag, found := strings.CutPrefix(bullet, "requires_confirmation:"); found {
			p.current.RequiresConfirmation = strings.EqualFold(strings.TrimSpace(flag), "true")

			return
		}
		// Plain sub-bullets continue the body.
		p.appendBody(line)

		return
	}

	if line != "" {
		p.appendBody(line)
	}
}

func (p *stepParser) appendBody(line string) {
	if p.current.Body != "" {
		p.current.Body += "\n"
	}

	p.current.Body += line
}

func (p *stepParser) flush() {
	if !p.open {
		return
	}

	p.current.Body = strings.TrimSpace(p.current.Body)
	p.steps = append(p.steps, p.current)
	p.open = false
}

// cutNumberedItem parses "N. rest" and returns rest.
func cutNumberedItem(line string) (string, bool) {
	dot := strings.Index(line, ". ")
	if dot <= 0 {
		return "", false
	}

	for _, c := range line[:dot] {
		if c < '0' || c > '9' {
			return "", false
		}
	}

	return strings.TrimSpace(line[dot+2:]), true
}

// splitBoldTitle extracts a leading **title**, returning the title and the
// remaining body with any "—"/"-" separator stripped. Without bold text the
// whole line becomes the title.
func splitBoldTitle(text string) (title, body string) {
	start := strings.Index(text, "**")
	if start < 0 {
		return text, ""
	}

	end := strings.Index(text[start+2:], "**")
	if end < 0 {
		return text, ""
	}

	title = text[start+2 : start+2+end]
	body = strings.TrimSpace(text[start+2+end+2:])

	for _, sep := range []string{"—", "–", "-"} {
		if rest, ok := strings.CutPrefix(body, sep); ok {
			body = strings.TrimSpace(rest)

			break
		}
	}

	return title, body
}

func splitTools(raw string) []string {
	var tools []string

	for _, tool := range strings.Split(raw, ",") {
		if tool = strings.TrimSpace(tool); tool != "" {
			tools = append(tools, tool)
		}
	}

	return tools
}
