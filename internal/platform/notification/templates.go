package notification

import (
	"fmt"
	"strings"
	"sync"
)

// Template ids for the built-in journey messages.
const (
	TemplateProceed     = "proceed"
	TemplateTransfer    = "transfer"
	TemplateCompleted   = "completed"
	TemplateReverted    = "reverted"
	TemplateStepAdded   = "step-added"
	TemplateNoteUpdated = "note-updated"
	TemplateNoteRemoved = "note-removed"
)

type Template struct {
	ID    string
	Title string
	Body  string
}

// TemplateEngine renders {{key}} placeholders in titles and bodies.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	for _, t := range []Template{
		{
			ID:    TemplateProceed,
			Title: "Please proceed to {{station}}",
			Body:  "Staff at {{station}} are ready for you. {{location}}",
		},
		{
			ID:    TemplateTransfer,
			Title: "Next stop: {{station}}",
			Body:  "You have finished at {{from}}. Please go to {{station}} and wait for queue number {{queue}}.",
		},
		{
			ID:    TemplateCompleted,
			Title: "{{station}} completed",
			Body:  "You have finished at {{station}}.",
		},
		{
			ID:    TemplateReverted,
			Title: "Your visit was updated",
			Body:  "Your step at {{station}} is now {{status}}.",
		},
		{
			ID:    TemplateStepAdded,
			Title: "A step was added to your visit",
			Body:  "{{station}} was added to your visit as {{status}}.",
		},
		{
			ID:    TemplateNoteUpdated,
			Title: "New note from {{station}}",
			Body:  "{{notes}}",
		},
		{
			ID:    TemplateNoteRemoved,
			Title: "Note removed",
			Body:  "The note from {{station}} was removed.",
		},
	} {
		t := t
		e.templates[t.ID] = &t
	}
	return e
}

// RegisterTemplate adds or replaces a template, letting a site localize the
// built-in wording.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render returns the filled title and body. Placeholders without data are
// removed so patients never see raw braces.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (title, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	title, body = t.Title, t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		title = strings.ReplaceAll(title, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return strings.TrimSpace(stripPlaceholders(title)), strings.TrimSpace(stripPlaceholders(body)), nil
}

func stripPlaceholders(s string) string {
	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			return s
		}
		end := strings.Index(s[start:], "}}")
		if end < 0 {
			return s
		}
		s = s[:start] + s[start+end+2:]
	}
}
