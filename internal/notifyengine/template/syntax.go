package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// translate rewrites the notification template syntax documented for
// authors -- {{var}} placeholders, {{var | filter}} / {{var | filter(arg)}}
// filter pipelines, and {% if %}/{% elif %}/{% else %}/{% endif %},
// {% for x in list %}/{% endfor %} control constructs -- into text/template
// syntax, which is what actually executes. Authors never see or write a
// leading dot, and no arbitrary expression is ever evaluated: only
// variable paths, equality/inequality conditions, and for-in loops over a
// named variable are recognized, so a template cannot reach outside the
// data map passed to Render.
func translate(src string) (string, error) {
	var out strings.Builder
	var loopVars []string
	last := 0

	for _, m := range tagPattern.FindAllStringSubmatchIndex(src, -1) {
		out.WriteString(src[last:m[0]])
		last = m[1]

		if m[2] >= 0 {
			rendered, vars, err := translateStatement(src[m[2]:m[3]], loopVars)
			if err != nil {
				return "", err
			}
			out.WriteString(rendered)
			loopVars = vars
			continue
		}

		rendered, err := translateExpr(src[m[4]:m[5]], loopVars)
		if err != nil {
			return "", err
		}
		out.WriteString("{{" + rendered + "}}")
	}
	out.WriteString(src[last:])
	return out.String(), nil
}

var tagPattern = regexp.MustCompile(`\{%\s*(.*?)\s*%\}|\{\{\s*(.*?)\s*\}\}`)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

func translateStatement(stmt string, loopVars []string) (string, []string, error) {
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return "", loopVars, fmt.Errorf("template: empty {%% %%} tag")
	}

	switch fields[0] {
	case "if":
		cond, err := translateCondition(strings.TrimSpace(stmt[len("if"):]), loopVars)
		if err != nil {
			return "", loopVars, err
		}
		return "{{if " + cond + "}}", loopVars, nil

	case "elif":
		cond, err := translateCondition(strings.TrimSpace(stmt[len("elif"):]), loopVars)
		if err != nil {
			return "", loopVars, err
		}
		return "{{else if " + cond + "}}", loopVars, nil

	case "else":
		return "{{else}}", loopVars, nil

	case "endif":
		return "{{end}}", loopVars, nil

	case "for":
		if len(fields) != 4 || fields[2] != "in" {
			return "", loopVars, fmt.Errorf("template: malformed %q, want 'for x in list'", stmt)
		}
		varName := fields[1]
		if !identPattern.MatchString(varName) || strings.Contains(varName, ".") {
			return "", loopVars, fmt.Errorf("template: invalid loop variable %q", varName)
		}
		list := translatePath(fields[3], loopVars)
		next := append(append([]string{}, loopVars...), varName)
		return "{{range $" + varName + " := " + list + "}}", next, nil

	case "endfor":
		if len(loopVars) == 0 {
			return "", loopVars, fmt.Errorf("template: %q has no matching {%% for %%}", stmt)
		}
		return "{{end}}", loopVars[:len(loopVars)-1], nil

	default:
		return "", loopVars, fmt.Errorf("template: unknown tag %q", fields[0])
	}
}

// translateExpr handles one {{ ... }} placeholder: a base variable or
// literal, optionally piped through one or more registered filters.
func translateExpr(expr string, loopVars []string) (string, error) {
	parts, err := splitOn(expr, '|')
	if err != nil {
		return "", err
	}
	if len(parts) == 0 || parts[0] == "" {
		return "", fmt.Errorf("template: empty {{ }} expression")
	}

	pipeline, err := translateValue(parts[0], loopVars)
	if err != nil {
		return "", err
	}
	for _, filt := range parts[1:] {
		call, err := translateFilterCall(filt, loopVars)
		if err != nil {
			return "", err
		}
		pipeline += " | " + call
	}
	return pipeline, nil
}

func translateFilterCall(tok string, loopVars []string) (string, error) {
	tok = strings.TrimSpace(tok)
	name, argsStr, hasArgs := cutArgs(tok)
	if !identPattern.MatchString(name) || strings.Contains(name, ".") {
		return "", fmt.Errorf("template: malformed filter %q", tok)
	}
	if _, ok := funcMap()[name]; !ok {
		return "", fmt.Errorf("template: unknown filter %q", name)
	}
	if !hasArgs || strings.TrimSpace(argsStr) == "" {
		return name, nil
	}

	argToks, err := splitOn(argsStr, ',')
	if err != nil {
		return "", err
	}
	rendered := make([]string, 0, len(argToks))
	for _, a := range argToks {
		v, err := translateValue(a, loopVars)
		if err != nil {
			return "", err
		}
		rendered = append(rendered, v)
	}
	return name + " " + strings.Join(rendered, " "), nil
}

// cutArgs splits "name(args)" into ("name", "args", true) or returns
// (tok, "", false) when tok has no parenthesized argument list.
func cutArgs(tok string) (name, args string, ok bool) {
	open := strings.IndexByte(tok, '(')
	if open < 0 {
		return tok, "", false
	}
	if !strings.HasSuffix(tok, ")") {
		return tok, "", false
	}
	return strings.TrimSpace(tok[:open]), tok[open+1 : len(tok)-1], true
}

func translateCondition(cond string, loopVars []string) (string, error) {
	cond = strings.TrimSpace(cond)
	for _, op := range [...][2]string{{"==", "eq"}, {"!=", "ne"}} {
		if idx := strings.Index(cond, op[0]); idx >= 0 {
			left, err := translateValue(cond[:idx], loopVars)
			if err != nil {
				return "", err
			}
			right, err := translateValue(cond[idx+len(op[0]):], loopVars)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s %s %s", op[1], left, right), nil
		}
	}
	return translateValue(cond, loopVars)
}

// translateValue converts one literal or variable-path token into a
// text/template pipeline fragment: quoted strings pass through re-quoted,
// numbers and booleans pass through unchanged, and bare identifiers
// resolve to either a loop variable ($x) or a field of the data map
// (.field).
func translateValue(tok string, loopVars []string) (string, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return "", fmt.Errorf("template: empty value")
	}
	if len(tok) >= 2 && tok[0] == '\'' && tok[len(tok)-1] == '\'' {
		return strconv.Quote(tok[1 : len(tok)-1]), nil
	}
	if len(tok) >= 2 && tok[0] == '"' && tok[len(tok)-1] == '"' {
		return tok, nil
	}
	if _, err := strconv.ParseFloat(tok, 64); err == nil {
		return tok, nil
	}
	if tok == "true" || tok == "false" {
		return tok, nil
	}
	if !identPattern.MatchString(tok) {
		return "", fmt.Errorf("template: invalid value %q", tok)
	}
	return translatePath(tok, loopVars), nil
}

// translatePath resolves a dotted identifier against the active loop
// variable stack, innermost scope first.
func translatePath(path string, loopVars []string) string {
	segs := strings.Split(path, ".")
	head := segs[0]
	for i := len(loopVars) - 1; i >= 0; i-- {
		if loopVars[i] != head {
			continue
		}
		if len(segs) == 1 {
			return "$" + head
		}
		return "$" + head + "." + strings.Join(segs[1:], ".")
	}
	return "." + path
}

// splitOn splits s on sep at top level only, ignoring occurrences inside
// single- or double-quoted substrings.
func splitOn(s string, sep byte) ([]string, error) {
	var parts []string
	var cur strings.Builder
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			cur.WriteByte(c)
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
			cur.WriteByte(c)
		case c == sep:
			parts = append(parts, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("template: unterminated string literal in %q", s)
	}
	parts = append(parts, strings.TrimSpace(cur.String()))
	return parts, nil
}
