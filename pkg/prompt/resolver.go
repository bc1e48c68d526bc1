package prompt

import (
	"sort"
	"strings"

	"ai-factcheck-be/pkg/apperror"
)

// Resolver maps report types and follow-up commands to provider-ready text.
type Resolver struct {
	templates map[ReportType]string
	commands  map[string]string
}

func NewResolver() *Resolver {
	return &Resolver{
		templates: reportTemplates,
		commands:  followupCommands,
	}
}

// System returns the system instruction shared by every report type.
func (r *Resolver) System() string {
	return SystemInstruction
}

// Initial builds the first user turn sent to the model.
func (r *Resolver) Initial(rt ReportType, query string, hasImage bool) (string, error) {
	tmpl, ok := r.templates[rt]
	if !ok {
		return "", apperror.NewValidation("report_type", "unsupported report type "+string(rt))
	}
	query = strings.TrimSpace(query)
	if query == "" && !hasImage {
		return "", apperror.NewValidation("query", "query text or image is required")
	}

	var b strings.Builder
	b.WriteString(tmpl)
	b.WriteString("\n\n")
	if query == "" {
		b.WriteString(imageOnlyInstruction)
		return b.String(), nil
	}
	b.WriteString("Material to analyze:\n\"\"\"\n")
	b.WriteString(query)
	b.WriteString("\n\"\"\"")
	if hasImage {
		b.WriteString("\n\n")
		b.WriteString(imageAttachedInstruction)
	}
	return b.String(), nil
}

// Followup builds a follow-up user turn. A command expands to its
// instruction; extra text is appended after it.
func (r *Resolver) Followup(text, command string) (string, error) {
	text = strings.TrimSpace(text)
	command = strings.TrimSpace(command)
	if text == "" && command == "" {
		return "", apperror.NewValidation("text", "follow-up text or command is required")
	}
	if command == "" {
		return text, nil
	}
	if !strings.HasPrefix(command, "/") {
		command = "/" + command
	}
	instruction, ok := r.commands[strings.ToLower(command)]
	if !ok {
		return "", apperror.NewValidation("command", "unknown command "+command)
	}
	if text == "" {
		return instruction, nil
	}
	return instruction + "\n\n" + text, nil
}

// Commands lists the supported follow-up commands.
func (r *Resolver) Commands() []string {
	out := make([]string, 0, len(r.commands))
	for c := range r.commands {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
