package ludus

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// Instance is an instance directory found under the instances directory.
type Instance struct {
	Name string // directory name, used as the instance identifier
	Dir  string // absolute path to the instance directory
}

// Archetype is a template directory found under the archetypes directory.
type Archetype struct {
	Name string
	Dir  string
}

// DiscoverInstance loads a single instance by name. It returns
// ErrInstanceNotFound if the directory does not exist.
func DiscoverInstance(instancesDir, name string) (Instance, error) {
	if err := validateName("instance", name); err != nil {
		return Instance{}, err
	}
	dir := filepath.Join(instancesDir, name)

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return Instance{}, fmt.Errorf("%w: %s", ErrInstanceNotFound, name)
	} else if err != nil {
		return Instance{}, fmt.Errorf("stat instance directory: %w", err)
	}
	if !info.IsDir() {
		return Instance{}, fmt.Errorf("%w: %s", ErrInstanceNotFound, name)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return Instance{}, fmt.Errorf("resolve instance directory: %w", err)
	}
	return Instance{Name: name, Dir: absDir}, nil
}

// DiscoverInstances lists every instance directory, sorted by name.
// A missing instances directory yields an empty list.
func DiscoverInstances(instancesDir string) ([]Instance, error) {
	names, dir, err := listDirs(instancesDir)
	if err != nil {
		return nil, fmt.Errorf("read instances directory: %w", err)
	}
	return lo.Map(names, func(n string, _ int) Instance {
		return Instance{Name: n, Dir: filepath.Join(dir, n)}
	}), nil
}

// DiscoverArchetypes lists every archetype directory, sorted by name.
// A missing archetypes directory yields an empty list.
func DiscoverArchetypes(archetypesDir string) ([]Archetype, error) {
	names, dir, err := listDirs(archetypesDir)
	if err != nil {
		return nil, fmt.Errorf("read archetypes directory: %w", err)
	}
	return lo.Map(names, func(n string, _ int) Archetype {
		return Archetype{Name: n, Dir: filepath.Join(dir, n)}
	}), nil
}

// listDirs returns the sorted names of the visible subdirectories of dir
// and dir's absolute path.
func listDirs(dir string) ([]string, string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, "", err
	}
	entries, err := os.ReadDir(absDir)
	if os.IsNotExist(err) {
		return []string{}, absDir, nil
	} else if err != nil {
		return nil, "", err
	}

	names := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		return e.Name(), e.IsDir() && !strings.HasPrefix(e.Name(), ".")
	})
	sort.Strings(names)
	return names, absDir, nil
}
