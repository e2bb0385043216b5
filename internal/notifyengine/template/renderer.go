// Package template implements the sandboxed template renderer: {{var}}
// substitution, {% if %}/{% for %} control constructs, the fixed filter
// set, and schema validation. Grounded on TemplateEngine
// (src/server/service/template_engine.go), which wraps html/template with
// a FuncMap; this package keeps that wrap-a-stdlib-engine shape but adds a
// translate step (syntax.go) in front of it, since the documented author
// syntax ({{var}}, {% if %}, {% for %}) is not text/template's own dot-
// prefixed, {{if .x}}-style syntax. Renders through text/template rather
// than html/template since most channels are not HTML.
package template

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	textTemplate "text/template"
	"time"

	"github.com/apimgr/notifyengine/internal/notifyengine/model"
)

// VarType is the declared type of a template variable.
type VarType string

const (
	VarString VarType = "string"
	VarNumber VarType = "number"
	VarBool   VarType = "bool"
	VarTime   VarType = "time"
	VarAny    VarType = "any"
)

// VarSpec declares one variable's type and whether it is required.
type VarSpec struct {
	Type     VarType
	Required bool
}

// Schema is a template's variable contract.
type Schema map[string]VarSpec

// Definition is a parsed, validated template ready to render.
type Definition struct {
	Name    string
	Channel model.Channel
	Subject string
	Body    string
	Schema  Schema
	Locale  string
}

func funcMap() textTemplate.FuncMap {
	return textTemplate.FuncMap{
		"truncate_words":  truncateWords,
		"format_date":     formatDate,
		"format_number":   formatNumber,
		"format_currency": formatCurrency,
		"sanitize_html":   sanitizeHTML,
		"to_json":         toJSON,
		"arabic_number":   arabicNumber,
	}
}

// Validate translates subject and body from the documented {{var}}/{% if %}
// syntax, parses the result, and confirms every required schema variable
// is referenced at least once in either, enforced at create/update time
// rather than deferred to render time.
func Validate(subject, body string, schema Schema) error {
	tSubject, err := translate(subject)
	if err != nil {
		return fmt.Errorf("template: invalid subject: %w", err)
	}
	tBody, err := translate(body)
	if err != nil {
		return fmt.Errorf("template: invalid body: %w", err)
	}
	if _, err := textTemplate.New("subject").Funcs(funcMap()).Parse(tSubject); err != nil {
		return fmt.Errorf("template: invalid subject: %w", err)
	}
	if _, err := textTemplate.New("body").Funcs(funcMap()).Parse(tBody); err != nil {
		return fmt.Errorf("template: invalid body: %w", err)
	}

	combined := tSubject + "\n" + tBody
	for name, spec := range schema {
		if !spec.Required {
			continue
		}
		if !strings.Contains(combined, "."+name) {
			return &MissingVariableError{Name: name}
		}
	}
	return nil
}

// Render substitutes vars into def.Subject/def.Body, applying schema
// validation first. Returns rendered subject and body.
func Render(def Definition, vars map[string]interface{}) (subject, body string, err error) {
	for name, spec := range def.Schema {
		if !spec.Required {
			continue
		}
		v, ok := vars[name]
		if !ok || v == nil {
			return "", "", &MissingVariableError{Name: name}
		}
		if mismatchErr := checkType(name, spec.Type, v); mismatchErr != nil {
			return "", "", mismatchErr
		}
	}

	data := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		data[k] = v
	}

	subject, err = execute("subject", def.Subject, data)
	if err != nil {
		return "", "", err
	}
	body, err = execute("body", def.Body, data)
	if err != nil {
		return "", "", err
	}

	subject = wrapDirection(def.Locale, subject)
	body = wrapDirection(def.Locale, body)
	return subject, body, nil
}

func execute(name, tmplText string, data map[string]interface{}) (string, error) {
	translated, err := translate(tmplText)
	if err != nil {
		return "", fmt.Errorf("template: parse %s: %w", name, err)
	}
	tmpl, err := textTemplate.New(name).Funcs(funcMap()).Option("missingkey=zero").Parse(translated)
	if err != nil {
		return "", fmt.Errorf("template: parse %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("template: render %s: %w", name, err)
	}
	return buf.String(), nil
}

func checkType(name string, want VarType, v interface{}) error {
	switch want {
	case VarAny, "":
		return nil
	case VarString:
		if _, ok := v.(string); !ok {
			return &TypeMismatchError{Name: name, Want: string(want), Got: fmt.Sprintf("%T", v)}
		}
	case VarNumber:
		switch v.(type) {
		case int, int64, float64, float32:
			return nil
		case string:
			if _, err := strconv.ParseFloat(v.(string), 64); err == nil {
				return nil
			}
		}
		return &TypeMismatchError{Name: name, Want: string(want), Got: fmt.Sprintf("%T", v)}
	case VarBool:
		if _, ok := v.(bool); !ok {
			return &TypeMismatchError{Name: name, Want: string(want), Got: fmt.Sprintf("%T", v)}
		}
	case VarTime:
		if _, ok := v.(time.Time); !ok {
			return &TypeMismatchError{Name: name, Want: string(want), Got: fmt.Sprintf("%T", v)}
		}
	}
	return nil
}
