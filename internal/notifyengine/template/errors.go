package template

import "fmt"

// MissingVariableError reports a required schema variable absent from the
// variables map passed to Render.
type MissingVariableError struct {
	Name string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("template: missing required variable %q", e.Name)
}

// TypeMismatchError reports a variable whose runtime type did not match
// what a filter expected.
type TypeMismatchError struct {
	Name string
	Want string
	Got  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("template: variable %q: want %s, got %s", e.Name, e.Want, e.Got)
}
