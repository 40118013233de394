package languages

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/google/shlex"
	"github.com/pelletier/go-toml/v2"
)

//go:embed languages.toml
var defaultCatalog []byte

var ErrLanguageNotFound = errors.New("language not found")

// Profile describes how one language is compiled and run inside a container.
// CompileCmd is empty for interpreted languages.
type Profile struct {
	ID         string
	Name       string
	Image      string
	SourceFile string
	CompileCmd []string
	RunCmd     []string
}

// Compiled reports whether the profile has a compile step.
func (p Profile) Compiled() bool {
	return len(p.CompileCmd) > 0
}

// ClassName is the source file stem. Java requires the public class to match it.
func (p Profile) ClassName() string {
	return strings.TrimSuffix(p.SourceFile, path.Ext(p.SourceFile))
}

type languageToml struct {
	Name       string `toml:"name"`
	Image      string `toml:"image"`
	SourceFile string `toml:"source_file"`
	Compile    string `toml:"compile"`
	Run        string `toml:"run"`
}

type catalogToml struct {
	Languages map[string]languageToml `toml:"languages"`
}

// Registry is a read-only lookup of language profiles. It is built once at
// startup and shared by every request.
type Registry struct {
	profiles map[string]Profile
}

// Load reads a catalog file. An empty path loads the embedded default catalog.
func Load(file string) (*Registry, error) {
	data := defaultCatalog
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read language catalog: %w", err)
		}
		data = b
	}
	return Parse(data)
}

func Parse(data []byte) (*Registry, error) {
	var raw catalogToml
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal language catalog: %w", err)
	}
	if len(raw.Languages) == 0 {
		return nil, errors.New("language catalog is empty")
	}

	profiles := make(map[string]Profile, len(raw.Languages))
	for id, l := range raw.Languages {
		p, err := l.profile(id)
		if err != nil {
			return nil, err
		}
		profiles[id] = p
	}
	return &Registry{profiles: profiles}, nil
}

func (l languageToml) profile(id string) (Profile, error) {
	if l.Image == "" || l.SourceFile == "" || l.Run == "" {
		return Profile{}, fmt.Errorf("language %q: image, source_file and run are required", id)
	}
	run, err := shlex.Split(l.Run)
	if err != nil {
		return Profile{}, fmt.Errorf("language %q: parse run command: %w", id, err)
	}
	var compile []string
	if l.Compile != "" {
		compile, err = shlex.Split(l.Compile)
		if err != nil {
			return Profile{}, fmt.Errorf("language %q: parse compile command: %w", id, err)
		}
	}
	name := l.Name
	if name == "" {
		name = id
	}
	return Profile{
		ID:         id,
		Name:       name,
		Image:      l.Image,
		SourceFile: l.SourceFile,
		CompileCmd: compile,
		RunCmd:     run,
	}, nil
}

func (r *Registry) Get(id string) (Profile, error) {
	p, ok := r.profiles[id]
	if !ok {
		return Profile{}, ErrLanguageNotFound
	}
	return p, nil
}

// List returns all profiles sorted by id.
func (r *Registry) List() []Profile {
	out := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Images returns the distinct container images used by the catalog.
func (r *Registry) Images() []string {
	seen := make(map[string]bool)
	var images []string
	for _, p := range r.List() {
		if !seen[p.Image] {
			seen[p.Image] = true
			images = append(images, p.Image)
		}
	}
	return images
}
