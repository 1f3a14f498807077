package rules

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Catalog holds the poses offered to clients. It is safe for concurrent use;
// [Catalog.Reload] swaps the whole set atomically.
type Catalog struct {
	mu    sync.RWMutex
	poses []Pose
	byID  map[string]int
	match matcher
}

// NewCatalog builds a catalog from poses. A later pose replaces an earlier one
// with the same id but keeps its position.
func NewCatalog(poses ...Pose) *Catalog {
	c := &Catalog{match: newMatcher()}
	c.set(poses)
	return c
}

// Load builds a catalog from the embedded poses (when includeBuiltin is set)
// followed by each file in order.
func Load(includeBuiltin bool, files ...string) (*Catalog, error) {
	poses, err := collect(includeBuiltin, files)
	if err != nil {
		return nil, err
	}
	return NewCatalog(poses...), nil
}

// Reload re-reads the sources and replaces the catalog contents. On error the
// previous contents are kept.
func (c *Catalog) Reload(includeBuiltin bool, files ...string) error {
	poses, err := collect(includeBuiltin, files)
	if err != nil {
		return err
	}
	c.set(poses)
	slog.Info("pose catalog reloaded", "poses", c.Len(), "files", len(files))
	return nil
}

func collect(includeBuiltin bool, files []string) ([]Pose, error) {
	var poses []Pose
	if includeBuiltin {
		poses = append(poses, Builtin()...)
	}
	for _, f := range files {
		ps, err := LoadFile(f)
		if err != nil {
			return nil, err
		}
		poses = append(poses, ps...)
	}
	if len(poses) == 0 {
		return nil, fmt.Errorf("%w: no poses in any source", ErrPoseNotFound)
	}
	return poses, nil
}

func (c *Catalog) set(poses []Pose) {
	list := make([]Pose, 0, len(poses))
	byID := make(map[string]int, len(poses))
	for _, p := range poses {
		if i, ok := byID[p.ID]; ok {
			list[i] = p
			continue
		}
		byID[p.ID] = len(list)
		list = append(list, p)
	}

	c.mu.Lock()
	c.poses = list
	c.byID = byID
	c.mu.Unlock()
}

// Len returns the number of poses.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.poses)
}

// List returns all poses in catalog order.
func (c *Catalog) List() []Pose {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Pose, len(c.poses))
	copy(out, c.poses)
	return out
}

// Lookup returns the pose with the given id. The id is normalised first, so
// "Warrior II" finds "warrior_ii".
func (c *Catalog) Lookup(id string) (Pose, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byID[NormalizeID(id)]
	if !ok {
		return Pose{}, false
	}
	return c.poses[i], true
}

// Resolve finds the pose a user most likely meant by query: an exact id or
// display-name match first, then the closest phonetic or fuzzy match on
// display names and ids. Returns [ErrPoseNotFound] when nothing is close
// enough.
func (c *Catalog) Resolve(query string) (Pose, error) {
	if p, ok := c.Lookup(query); ok {
		return p, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	q := strings.TrimSpace(query)
	for _, p := range c.poses {
		if strings.EqualFold(p.Name, q) {
			return p, nil
		}
	}

	// Names first, then ids, so index i maps back to c.poses[i % n].
	n := len(c.poses)
	candidates := make([]string, 0, 2*n)
	for _, p := range c.poses {
		candidates = append(candidates, p.Name)
	}
	for _, p := range c.poses {
		candidates = append(candidates, p.ID)
	}
	if i, score := c.match.best(q, candidates); i >= 0 {
		p := c.poses[i%n]
		slog.Debug("pose resolved by similarity", "query", query, "pose", p.ID, "score", score)
		return p, nil
	}
	return Pose{}, fmt.Errorf("%w: %q", ErrPoseNotFound, query)
}
