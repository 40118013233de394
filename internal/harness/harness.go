// Package harness turns user submissions into complete programs.
//
// Two strategies exist. Literal mode embeds one test case's input values as
// source literals and prints the user function's result; a submission with N
// test cases therefore compiles N programs. Stdin mode keeps the user
// program as written and the executor feeds input on standard input.
package harness

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/sudankdk/codejudge/internal/languages"
	"github.com/sudankdk/codejudge/internal/problems"
)

var (
	ErrUnknownProblem = errors.New("unknown problem")
	ErrNoDriver       = errors.New("no harness driver for language")
)

var funcs = template.FuncMap{"indent": indent}

// literal drivers, keyed by language id. .Call is the rendered call template.
var literalDrivers = map[string]*template.Template{
	"c": template.Must(template.New("c").Funcs(funcs).Parse(`#include <stdio.h>
#include <stdlib.h>
#include <string.h>

{{.UserCode}}

int main(void) {
{{indent 4 .Call}}
    return 0;
}
`)),
	"cpp": template.Must(template.New("cpp").Funcs(funcs).Parse(`#include <algorithm>
#include <iostream>
#include <string>
#include <vector>
using namespace std;

{{.UserCode}}

int main() {
{{indent 4 .Call}}
    return 0;
}
`)),
	"java": template.Must(template.New("java").Funcs(funcs).Parse(`import java.util.*;

public class {{.Class}} {
{{.UserCode}}

    public static void main(String[] args) {
        {{.Class}} solution = new {{.Class}}();
{{indent 8 .Call}}
    }
}
`)),
	"python": template.Must(template.New("python").Funcs(funcs).Parse(`{{.UserCode}}


if __name__ == "__main__":
{{indent 4 .Call}}
`)),
}

var javaStdinDriver = template.Must(template.New("java-stdin").Parse(`import java.io.*;
import java.util.*;

public class {{.Class}} {
{{.UserCode}}
}
`))

type driverData struct {
	Class    string
	UserCode string
	Call     string
}

type callKey struct {
	problem  string
	language string
}

// Generator is safe for concurrent use; all templates are parsed up front.
type Generator struct {
	catalog *problems.Catalog
	calls   map[callKey]*template.Template
}

func NewGenerator(catalog *problems.Catalog) (*Generator, error) {
	g := &Generator{
		catalog: catalog,
		calls:   make(map[callKey]*template.Template),
	}
	for _, id := range catalog.IDs() {
		p, _ := catalog.Get(id)
		for lang, src := range p.Calls {
			t, err := template.New(id + "/" + lang).Option("missingkey=error").Parse(src)
			if err != nil {
				return nil, fmt.Errorf("problem %q call template for %s: %w", id, lang, err)
			}
			g.calls[callKey{problem: id, language: lang}] = t
		}
	}
	return g, nil
}

// Literal renders a program that calls the user's function once with the test
// case input embedded as literals.
func (g *Generator) Literal(profile languages.Profile, userCode, problemID string, tc problems.TestCase) (string, error) {
	if _, err := g.catalog.Get(problemID); err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownProblem, problemID)
	}
	call, ok := g.calls[callKey{problem: problemID, language: profile.ID}]
	if !ok {
		return "", fmt.Errorf("%w: %s has no %s call template", ErrUnknownProblem, problemID, profile.ID)
	}
	driver, ok := literalDrivers[profile.ID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoDriver, profile.ID)
	}

	var sb strings.Builder
	if err := call.Execute(&sb, struct{ Args []string }{Args: tc.Input}); err != nil {
		return "", fmt.Errorf("render call for test %d: %w", tc.ID, err)
	}

	return render(driver, driverData{
		Class:    profile.ClassName(),
		UserCode: strings.TrimSpace(userCode),
		Call:     strings.TrimSpace(sb.String()),
	})
}

var (
	publicClass = regexp.MustCompile(`(?m)^(\s*public\s+(?:final\s+|abstract\s+)*class\s+)(\w+)`)
	anyClass    = regexp.MustCompile(`(?m)^(\s*(?:final\s+|abstract\s+)*class\s+)(\w+)`)
)

// Stdin returns the program for free-form execution. Only Java is touched:
// the top-level public class (or, lacking one, the first class) is renamed to
// match the source file. Code with no class at all becomes the body of a
// generated class. Only the declaration is renamed, not references to it.
func (g *Generator) Stdin(profile languages.Profile, userCode string) (string, error) {
	if profile.ID != "java" {
		return userCode, nil
	}
	class := profile.ClassName()
	for _, re := range []*regexp.Regexp{publicClass, anyClass} {
		if loc := re.FindStringSubmatchIndex(userCode); loc != nil {
			return userCode[:loc[4]] + class + userCode[loc[5]:], nil
		}
	}
	return render(javaStdinDriver, driverData{Class: class, UserCode: strings.TrimSpace(userCode)})
}

func render(t *template.Template, data driverData) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render %s driver: %w", t.Name(), err)
	}
	return sb.String(), nil
}

func indent(n int, s string) string {
	pad := strings.Repeat(" ", n)
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			lines[i] = pad + l
		}
	}
	return strings.Join(lines, "\n")
}
