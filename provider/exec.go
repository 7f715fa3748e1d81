package provider

import (
	"errors"
	"strings"
)

// ErrEmptyTemplate is returned by an Exec provider without a command.
var ErrEmptyTemplate = errors.New("exec command template is empty")

var _ Provider = (*Exec)(nil)

// Exec runs a user-supplied command line. The placeholders {tag} and {dest}
// are replaced with the shell-quoted tag and destination.
type Exec struct {
	Template        string
	CleanupTemplate string
}

// NewExec creates an Exec provider for template.
func NewExec(template string) *Exec {
	return &Exec{Template: template}
}

func (p *Exec) Name() string { return "exec" }

func (p *Exec) Build(tag, destination string) (Command, error) {
	if strings.TrimSpace(p.Template) == "" {
		return Command{}, ErrEmptyTemplate
	}
	r := strings.NewReplacer("{tag}", quote(tag), "{dest}", quote(destination))
	cmd := Command{Run: r.Replace(p.Template)}
	if p.CleanupTemplate != "" {
		cmd.Cleanup = r.Replace(p.CleanupTemplate)
	}
	return cmd, nil
}
