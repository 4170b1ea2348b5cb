package prompts

import (
	"fmt"
	"strings"
	"text/template"
)

// Spec declares one prompt. System and User are text/template sources
// rendered against Input.
type Spec struct {
	Name       PromptName
	Version    int
	System     string
	User       string
	Validators []Validator
}

func compile(s Spec) (Template, error) {
	if strings.TrimSpace(string(s.Name)) == "" {
		return Template{}, fmt.Errorf("prompt spec has no name")
	}
	if s.Version < 1 {
		return Template{}, fmt.Errorf("prompt %s: version must be at least 1", s.Name)
	}
	parse := func(part, src string) (*template.Template, error) {
		t, err := template.New(string(s.Name) + "." + part).Option("missingkey=zero").Parse(src)
		if err != nil {
			return nil, fmt.Errorf("prompt %s: parse %s: %w", s.Name, part, err)
		}
		return t, nil
	}
	sys, err := parse("system", s.System)
	if err != nil {
		return Template{}, err
	}
	user, err := parse("user", s.User)
	if err != nil {
		return Template{}, err
	}
	return Template{
		Name:     s.Name,
		Version:  s.Version,
		System:   renderer(sys),
		User:     renderer(user),
		Validate: all(s.Validators),
	}, nil
}

func renderer(t *template.Template) func(Input) (string, error) {
	return func(in Input) (string, error) {
		var b strings.Builder
		if err := t.Execute(&b, in); err != nil {
			return "", err
		}
		return strings.TrimSpace(b.String()), nil
	}
}

// RegisterSpec panics on a malformed spec. Specs are compiled into the binary.
func RegisterSpec(s Spec) {
	t, err := compile(s)
	if err != nil {
		panic(err)
	}
	Register(t)
}
