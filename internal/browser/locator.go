package browser

import (
	"errors"
	"fmt"
	"strings"
)

// Locator names a UI element independently of the driver. Exactly one of CSS
// or Role is set. Parent scopes the lookup; First picks the first match when
// several elements resolve.
//
// CSS, Name and HasText may contain {key} placeholders filled by Bind.
type Locator struct {
	CSS     string   `yaml:"css,omitempty" json:"css,omitempty"`
	Role    string   `yaml:"role,omitempty" json:"role,omitempty"`
	Name    string   `yaml:"name,omitempty" json:"name,omitempty"`
	HasText string   `yaml:"has_text,omitempty" json:"has_text,omitempty"`
	First   bool     `yaml:"first,omitempty" json:"first,omitempty"`
	Parent  *Locator `yaml:"within,omitempty" json:"within,omitempty"`
}

// CSS returns a locator for a CSS query.
func CSS(selector string) Locator { return Locator{CSS: selector} }

// Role returns a locator matching an ARIA role with an exact accessible name.
func Role(role, name string) Locator { return Locator{Role: role, Name: name} }

// Within scopes l to descendants of parent.
func (l Locator) Within(parent Locator) Locator {
	p := parent
	l.Parent = &p
	return l
}

// WithText keeps only elements whose text contains text.
func (l Locator) WithText(text string) Locator {
	l.HasText = text
	return l
}

// FirstMatch resolves to the first of several matches.
func (l Locator) FirstMatch() Locator {
	l.First = true
	return l
}

// Chain returns the locator path from the outermost scope to l.
func (l Locator) Chain() []Locator {
	var chain []Locator
	for cur := &l; cur != nil; cur = cur.Parent {
		c := *cur
		c.Parent = nil
		chain = append([]Locator{c}, chain...)
	}
	return chain
}

// Bind returns a copy with {key} placeholders replaced from vars, including
// in parent scopes.
func (l Locator) Bind(vars map[string]string) Locator {
	if len(vars) == 0 {
		return l
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return l.bind(strings.NewReplacer(pairs...))
}

func (l Locator) bind(r *strings.Replacer) Locator {
	l.CSS = r.Replace(l.CSS)
	l.Name = r.Replace(l.Name)
	l.HasText = r.Replace(l.HasText)
	if l.Parent != nil {
		p := l.Parent.bind(r)
		l.Parent = &p
	}
	return l
}

// Unbound reports placeholders left after binding.
func (l Locator) Unbound() bool {
	for _, c := range l.Chain() {
		for _, s := range []string{c.CSS, c.Name, c.HasText} {
			if i := strings.IndexByte(s, '{'); i >= 0 && strings.IndexByte(s[i:], '}') > 0 {
				return true
			}
		}
	}
	return false
}

// Validate checks that every link of the chain selects something.
func (l Locator) Validate() error {
	for _, c := range l.Chain() {
		switch {
		case c.CSS == "" && c.Role == "":
			return errors.New("locator needs css or role")
		case c.CSS != "" && c.Role != "":
			return fmt.Errorf("locator %s sets both css and role", c)
		case c.Role == "" && c.Name != "":
			return fmt.Errorf("locator %s sets name without role", c)
		}
	}
	return nil
}

// String renders the chain in a playwright-like form for logs.
func (l Locator) String() string {
	chain := l.Chain()
	parts := make([]string, 0, len(chain))
	for _, c := range chain {
		var b strings.Builder
		if c.Role != "" {
			fmt.Fprintf(&b, "role=%s", c.Role)
			if c.Name != "" {
				fmt.Fprintf(&b, "[name=%q]", c.Name)
			}
		} else {
			b.WriteString(c.CSS)
		}
		if c.HasText != "" {
			fmt.Fprintf(&b, ":has-text(%q)", c.HasText)
		}
		if c.First {
			b.WriteString(" >> nth=0")
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, " >> ")
}
