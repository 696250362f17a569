// Package registry holds the commands the bot answers to: a fixed set of
// built-ins plus composite commands declared by the operator in a file.
// A Registry is built once at startup and never mutated afterwards.
package registry

import (
	"html"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

type Kind int

const (
	KindBuiltin Kind = iota + 1
	KindComposite
)

type Builtin string

const (
	CmdStart    Builtin = "start"
	CmdHelp     Builtin = "help"
	CmdData     Builtin = "data"
	CmdStatus   Builtin = "status"
	CmdExecute  Builtin = "execute"
	CmdReboot   Builtin = "reboot"
	CmdUpload   Builtin = "upload"
	CmdDownload Builtin = "download"
	CmdCancel   Builtin = "cancel"
)

// Info describes a command for help listings and the transport's command menu.
type Info struct {
	Name        string
	Description string
	Composite   bool
}

var builtins = []Info{
	{Name: string(CmdStart), Description: "Show available commands"},
	{Name: string(CmdHelp), Description: "Show available commands"},
	{Name: string(CmdData), Description: "Show available commands"},
	{Name: string(CmdStatus), Description: "Server status"},
	{Name: string(CmdExecute), Description: "Run a shell command"},
	{Name: string(CmdReboot), Description: "Reboot the server"},
	{Name: string(CmdUpload), Description: "Upload a file to the server"},
	{Name: string(CmdDownload), Description: "Download a file from the server"},
	{Name: string(CmdCancel), Description: "Cancel the current action"},
}

// Step is one shell command of a composite command.
type Step struct {
	Label   string
	Command string
}

// Composite is a named sequence of shell steps reported as one message.
type Composite struct {
	Name        string
	Title       string
	Description string
	Steps       []Step
}

// DisplayTitle is the first line of the composite's report.
func (c Composite) DisplayTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return "<b>🔹 " + c.Name + ":</b>"
}

func (c *Composite) set(key, value string) {
	switch key {
	case "title":
		c.Title = value
	case "description":
		c.Description = value
	default:
		for i := range c.Steps {
			if c.Steps[i].Label == key {
				c.Steps[i].Command = value
				return
			}
		}
		c.Steps = append(c.Steps, Step{Label: key, Command: value})
	}
}

// Entry is the result of a lookup.
type Entry struct {
	Kind      Kind
	Builtin   Builtin
	Composite *Composite
}

type Registry struct {
	composites map[string]*Composite
	order      []string
	builtin    map[string]Builtin
}

var commandName = regexp.MustCompile(`^[A-Za-z0-9_]{1,32}$`)

// New builds an immutable registry. Composite commands whose names are
// invalid, duplicated or shadow a built-in are skipped with a warning.
func New(composites []Composite, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		composites: make(map[string]*Composite, len(composites)),
		builtin:    make(map[string]Builtin, len(builtins)),
	}
	for _, b := range builtins {
		r.builtin[b.Name] = Builtin(b.Name)
	}
	for i := range composites {
		c := composites[i]
		switch {
		case !commandName.MatchString(c.Name):
			logger.Warn("skipping composite command with invalid name", zap.String("command", c.Name))
			continue
		case r.builtin[c.Name] != "":
			logger.Warn("composite command shadows a built-in, skipping", zap.String("command", c.Name))
			continue
		case r.composites[c.Name] != nil:
			logger.Warn("duplicate composite command, skipping", zap.String("command", c.Name))
			continue
		}
		c.Steps = append([]Step(nil), c.Steps...)
		r.composites[c.Name] = &c
		r.order = append(r.order, c.Name)
	}
	return r
}

// Lookup resolves a command name, case-sensitively.
func (r *Registry) Lookup(name string) (Entry, bool) {
	if b, ok := r.builtin[name]; ok {
		return Entry{Kind: KindBuiltin, Builtin: b}, true
	}
	if c, ok := r.composites[name]; ok {
		cp := *c
		cp.Steps = append([]Step(nil), c.Steps...)
		return Entry{Kind: KindComposite, Composite: &cp}, true
	}
	return Entry{}, false
}

// Commands lists built-ins first, then composite commands in file order.
func (r *Registry) Commands() []Info {
	out := make([]Info, 0, len(builtins)+len(r.order))
	out = append(out, builtins...)
	for _, name := range r.order {
		c := r.composites[name]
		desc := c.Description
		if desc == "" {
			desc = PlainText(c.DisplayTitle())
		}
		out = append(out, Info{Name: name, Description: desc, Composite: true})
	}
	return out
}

// Composites returns copies of the loaded composite commands in file order.
func (r *Registry) Composites() []Composite {
	out := make([]Composite, 0, len(r.order))
	for _, name := range r.order {
		c := *r.composites[name]
		c.Steps = append([]Step(nil), c.Steps...)
		out = append(out, c)
	}
	return out
}

var markup = regexp.MustCompile(`<[^>]*>`)

// PlainText drops HTML markup and entities, e.g. from an operator-written
// title or a message Telegram refused to parse.
func PlainText(s string) string {
	return strings.TrimSpace(html.UnescapeString(markup.ReplaceAllString(s, "")))
}
