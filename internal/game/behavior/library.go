package behavior

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Library resolves behavior ids to definitions.
//
// Thread-safe: protected by sync.RWMutex.
type Library struct {
	mu        sync.RWMutex
	behaviors map[string]*Behavior
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{behaviors: make(map[string]*Behavior)}
}

// Register adds b. Ids are case-insensitive.
func (lib *Library) Register(b *Behavior) error {
	id := strings.ToLower(strings.TrimSpace(b.ID))
	if id == "" {
		return errors.New("behavior id is empty")
	}

	lib.mu.Lock()
	defer lib.mu.Unlock()
	if _, ok := lib.behaviors[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateBehavior, b.ID)
	}
	lib.behaviors[id] = b
	return nil
}

// Resolve returns the behavior registered under id.
func (lib *Library) Resolve(id string) (*Behavior, bool) {
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	b, ok := lib.behaviors[strings.ToLower(strings.TrimSpace(id))]
	return b, ok
}

// IDs returns registered ids, sorted.
func (lib *Library) IDs() []string {
	lib.mu.RLock()
	defer lib.mu.RUnlock()

	ids := make([]string, 0, len(lib.behaviors))
	for id := range lib.behaviors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (lib *Library) Len() int {
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	return len(lib.behaviors)
}

// Validate reports behaviors that can never run anything.
func (lib *Library) Validate() error {
	var errs []error
	for _, id := range lib.IDs() {
		b, _ := lib.Resolve(id)
		if len(b.Flows) == 0 {
			errs = append(errs, fmt.Errorf("behavior %s: no flows", id))
		}
	}
	return errors.Join(errs...)
}

// File is the YAML layout of a behaviors file.
type File struct {
	Behaviors []BehaviorDef `yaml:"behaviors"`
}

type BehaviorDef struct {
	ID    string    `yaml:"id"`
	Flows []FlowDef `yaml:"flows"`
}

// FlowDef declares one flow: either inline steps, a script file or inline lua.
type FlowDef struct {
	Trigger string    `yaml:"trigger"`
	Steps   []StepDef `yaml:"steps"`
	Script  string    `yaml:"script"`
	Lua     string    `yaml:"lua"`
}

type StepDef struct {
	Action string            `yaml:"action"`
	Params map[string]string `yaml:"params"`
}

// LoadFile reads a behaviors file. Script paths are relative to the file.
// Returns an empty library if the file does not exist.
func LoadFile(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewLibrary(), nil
		}
		return nil, fmt.Errorf("reading behaviors %s: %w", path, err)
	}

	lib, err := Load(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("loading behaviors %s: %w", path, err)
	}
	return lib, nil
}

// Load parses a behaviors document. All definition problems are reported
// together via errors.Join.
func Load(data []byte, baseDir string) (*Library, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}

	lib := NewLibrary()
	var errs []error
	for i, def := range file.Behaviors {
		b, err := def.build(baseDir)
		if err != nil {
			errs = append(errs, fmt.Errorf("behavior #%d (%s): %w", i+1, def.ID, err))
			continue
		}
		if err := lib.Register(b); err != nil {
			errs = append(errs, fmt.Errorf("behavior #%d: %w", i+1, err))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return lib, nil
}

func (def BehaviorDef) build(baseDir string) (*Behavior, error) {
	if strings.TrimSpace(def.ID) == "" {
		return nil, errors.New("missing id")
	}

	b := &Behavior{ID: def.ID}
	var errs []error
	for i, fd := range def.Flows {
		flow, err := fd.build(baseDir)
		if err != nil {
			errs = append(errs, fmt.Errorf("flow #%d: %w", i+1, err))
			continue
		}
		b.Flows = append(b.Flows, flow)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return b, nil
}

func (fd FlowDef) build(baseDir string) (Flow, error) {
	trigger, err := ParseSignal(fd.Trigger)
	if err != nil {
		return nil, err
	}

	kinds := 0
	for _, set := range []bool{len(fd.Steps) > 0, fd.Script != "", fd.Lua != ""} {
		if set {
			kinds++
		}
	}
	if kinds != 1 {
		return nil, errors.New("exactly one of steps, script or lua is required")
	}

	switch {
	case fd.Script != "":
		path := fd.Script
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		return LoadLuaFlow(trigger, path)
	case fd.Lua != "":
		return NewLuaFlow(trigger, "inline:"+trigger.String(), fd.Lua)
	}

	steps := make([]Action, 0, len(fd.Steps))
	var errs []error
	for i, sd := range fd.Steps {
		action, err := NewAction(sd.Action, sd.Params)
		if err != nil {
			errs = append(errs, fmt.Errorf("step #%d: %w", i+1, err))
			continue
		}
		steps = append(steps, action)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return NewStepFlow(trigger, steps...), nil
}
