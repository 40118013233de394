// Package problems holds the static problem catalog: statements, starter
// templates, per-language call templates and test cases.
package problems

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed problems.toml
var defaultCatalog []byte

var ErrProblemNotFound = errors.New("problem not found")

type Example struct {
	Input  string `json:"input" toml:"input"`
	Output string `json:"output" toml:"output"`
}

// TestCase input values are source-level literals, injected verbatim into the
// generated driver.
type TestCase struct {
	ID       int      `json:"id"`
	Input    []string `json:"input" toml:"input"`
	Expected string   `json:"expected" toml:"expected"`
}

type Problem struct {
	ID          string            `json:"id" toml:"id"`
	Title       string            `json:"title" toml:"title"`
	Difficulty  string            `json:"difficulty" toml:"difficulty"`
	Acceptance  string            `json:"acceptance,omitempty" toml:"acceptance"`
	Description string            `json:"description" toml:"description"`
	Examples    []Example         `json:"examples" toml:"examples"`
	Constraints []string          `json:"constraints" toml:"constraints"`
	Signatures  map[string]string `json:"functionSignature,omitempty" toml:"signatures"`
	Templates   map[string]string `json:"-" toml:"templates"`
	Calls       map[string]string `json:"-" toml:"calls"`
	TestCases   []TestCase        `json:"-" toml:"tests"`
}

// Template returns the starter code for a language.
func (p Problem) Template(lang string) (string, bool) {
	t, ok := p.Templates[lang]
	return t, ok
}

// Call returns the driver call template for a language.
func (p Problem) Call(lang string) (string, bool) {
	c, ok := p.Calls[lang]
	return c, ok
}

// Cases returns the first n test cases, or all of them when n <= 0.
func (p Problem) Cases(n int) []TestCase {
	if n <= 0 || n >= len(p.TestCases) {
		return p.TestCases
	}
	return p.TestCases[:n]
}

type catalogToml struct {
	Problems []Problem `toml:"problems"`
}

// Catalog is immutable after Load.
type Catalog struct {
	problems map[string]Problem
}

// Load reads a catalog file. An empty path loads the embedded default catalog.
func Load(file string) (*Catalog, error) {
	data := defaultCatalog
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read problem catalog: %w", err)
		}
		data = b
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var raw catalogToml
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal problem catalog: %w", err)
	}

	problems := make(map[string]Problem, len(raw.Problems))
	for _, p := range raw.Problems {
		if p.ID == "" {
			return nil, errors.New("problem without id")
		}
		if _, dup := problems[p.ID]; dup {
			return nil, fmt.Errorf("duplicate problem %q", p.ID)
		}
		if len(p.TestCases) == 0 {
			return nil, fmt.Errorf("problem %q has no test cases", p.ID)
		}
		for i := range p.TestCases {
			p.TestCases[i].ID = i + 1
		}
		problems[p.ID] = p
	}
	return &Catalog{problems: problems}, nil
}

func (c *Catalog) Get(id string) (Problem, error) {
	p, ok := c.problems[id]
	if !ok {
		return Problem{}, ErrProblemNotFound
	}
	return p, nil
}

func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.problems))
	for id := range c.problems {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DisplayInput renders the case input the way clients show it, e.g. "12, 5".
func (tc TestCase) DisplayInput() string {
	parts := make([]string, len(tc.Input))
	for i, in := range tc.Input {
		if unq, err := strconv.Unquote(in); err == nil {
			in = unq
		}
		parts[i] = in
	}
	return strings.Join(parts, ", ")
}
