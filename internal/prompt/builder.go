// Package prompt renders the instruction template sent to the model.
//
// Placeholders use the {name} form. A doubled brace ("{{" or "}}") emits a
// literal brace, and any brace that does not open an identifier placeholder is
// copied through unchanged. Rendering is a single pass: substituted values are
// never scanned for placeholders.
package prompt

import (
	"fmt"
	"strings"

	"github.com/vecihi-bot/internal/models"
)

// Known placeholder names, in the order they appear in PromptInput
var Known = []string{"bot_name", "location", "date", "time", "context", "question"}

// DefaultTemplate is the instruction template used by the sample configuration
const DefaultTemplate = `[INST] You are {bot_name}, a friendly chatbot.
- Today is {date}
- Current time is {time}
- Your location is {location}
- You respect anyone and expect to be respected
- You do not like vulgar language
- You do not have access to realtime data
Use the provided context to answer the question.
Context:{context}
---
Question:{question} [/INST]`

// Render substitutes the input into the template
func Render(template string, in models.PromptInput) (string, error) {
	vars := in.Vars()

	var b strings.Builder
	b.Grow(len(template) + len(in.Context) + len(in.Question))

	err := scan(template, func(literal string) {
		b.WriteString(literal)
	}, func(name string) error {
		value, ok := vars[name]
		if !ok {
			return fmt.Errorf("%w: unknown placeholder {%s}", models.ErrTemplate, name)
		}
		b.WriteString(value)
		return nil
	})
	if err != nil {
		return "", err
	}

	return b.String(), nil
}

// Validate reports the first placeholder the template references that Render
// cannot supply
func Validate(template string) error {
	_, err := Render(template, models.PromptInput{})
	return err
}

// Placeholders lists the placeholder names referenced by the template, in
// order of first appearance
func Placeholders(template string) []string {
	seen := make(map[string]bool)
	var names []string
	_ = scan(template, func(string) {}, func(name string) error {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		return nil
	})
	return names
}

// scan walks the template once, handing literal runs to emit and placeholder
// names to substitute
func scan(template string, emit func(string), substitute func(string) error) error {
	i := 0
	start := 0
	for i < len(template) {
		c := template[i]
		switch {
		case c == '{' && i+1 < len(template) && template[i+1] == '{':
			emit(template[start:i] + "{")
			i += 2
			start = i
		case c == '}' && i+1 < len(template) && template[i+1] == '}':
			emit(template[start:i] + "}")
			i += 2
			start = i
		case c == '{':
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 || !isIdentifier(template[i+1:i+1+end]) {
				i++
				continue
			}
			emit(template[start:i])
			if err := substitute(template[i+1 : i+1+end]); err != nil {
				return err
			}
			i += end + 2
			start = i
		default:
			i++
		}
	}
	emit(template[start:])
	return nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
