package prompts

import (
	"fmt"
	"sync"
)

type Template struct {
	Name     PromptName
	Version  int
	System   func(Input) (string, error)
	User     func(Input) (string, error)
	Validate Validator
}

// Prompt is a rendered prompt. Text is what gets sent to a single-turn
// completion endpoint.
type Prompt struct {
	Name    string
	Version int
	System  string
	User    string
}

func (p Prompt) Text() string {
	if p.System == "" {
		return p.User
	}
	return p.System + "\n\n" + p.User
}

var (
	mu           sync.RWMutex
	registry     = map[PromptName]Template{}
	registerOnce sync.Once
)

func Register(t Template) {
	mu.Lock()
	defer mu.Unlock()
	registry[t.Name] = t
}

func Build(name PromptName, in Input) (Prompt, error) {
	registerOnce.Do(RegisterAll)

	mu.RLock()
	t, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return Prompt{}, fmt.Errorf("unknown prompt: %s", string(name))
	}
	if t.System == nil || t.User == nil {
		return Prompt{}, fmt.Errorf("prompt %s missing system/user renderers", string(name))
	}
	if t.Validate != nil {
		if err := t.Validate(in); err != nil {
			return Prompt{}, fmt.Errorf("%s: %w", string(name), err)
		}
	}
	sys, err := t.System(in)
	if err != nil {
		return Prompt{}, fmt.Errorf("%s: render system: %w", string(name), err)
	}
	user, err := t.User(in)
	if err != nil {
		return Prompt{}, fmt.Errorf("%s: render user: %w", string(name), err)
	}
	return Prompt{
		Name:    string(t.Name),
		Version: t.Version,
		System:  sys,
		User:    user,
	}, nil
}
