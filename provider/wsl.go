package provider

import "strings"

var _ Provider = (*WSL)(nil)

// WSL runs another provider's commands inside a WSL distribution through a
// login shell, so docker and rsync resolve the way they do interactively.
type WSL struct {
	Distribution string
	User         string
	Inner        Provider
}

// WrapWSL wraps inner for the given distribution and user.
func WrapWSL(inner Provider, distribution, user string) *WSL {
	return &WSL{Distribution: distribution, User: user, Inner: inner}
}

func (w *WSL) Name() string { return w.Inner.Name() }

func (w *WSL) Build(tag, destination string) (Command, error) {
	cmd, err := w.Inner.Build(tag, destination)
	if err != nil {
		return Command{}, err
	}
	cmd.Run = w.wrap(cmd.Run)
	if cmd.Cleanup != "" {
		cmd.Cleanup = w.wrap(cmd.Cleanup)
	}
	return cmd, nil
}

var doubleQuoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, "`", "\\`")

func (w *WSL) wrap(command string) string {
	args := []string{"wsl"}
	if w.Distribution != "" {
		args = append(args, "--distribution", quote(w.Distribution))
	}
	if w.User != "" {
		args = append(args, "--user", quote(w.User))
	}
	args = append(args, "--", "bash", "-lic", `"`+doubleQuoteEscaper.Replace(command)+`"`)
	return strings.Join(args, " ")
}
