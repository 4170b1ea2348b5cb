package prompts

import (
	"errors"
	"fmt"
	"strings"
)

// Validator rejects an Input before it is rendered.
type Validator func(Input) error

// NonBlank fails when the text field is empty after trimming.
func NonBlank(field string, get func(Input) string) Validator {
	return func(in Input) error {
		if strings.TrimSpace(get(in)) == "" {
			return fmt.Errorf("%s required", field)
		}
		return nil
	}
}

// AtLeastOne fails when the count field is zero or negative.
func AtLeastOne(field string, get func(Input) int) Validator {
	return func(in Input) error {
		if n := get(in); n < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", field, n)
		}
		return nil
	}
}

// all reports every failing check at once.
func all(vs []Validator) Validator {
	if len(vs) == 0 {
		return nil
	}
	return func(in Input) error {
		var errs []error
		for _, v := range vs {
			if v == nil {
				continue
			}
			if err := v(in); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
