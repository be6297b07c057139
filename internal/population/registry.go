package population

import (
	"sort"
	"strings"
	"sync"

	"github.com/hession/citysim/internal/store"
)

// Registry tracks names in use, case-insensitively. One registry is shared by
// everything generating citizens for the same city.
type Registry struct {
	mu    sync.Mutex
	names map[string]string // lowercased -> as registered
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]string)}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Taken reports whether name is already registered
func (r *Registry) Taken(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.names[normalize(name)]
	return ok
}

// Register claims name. It returns false if the name is empty or taken.
func (r *Registry) Register(name string) bool {
	key := normalize(name)
	if key == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[key]; ok {
		return false
	}
	r.names[key] = strings.TrimSpace(name)
	return true
}

// Names returns the registered names, sorted
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered names
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.names)
}

// Seed registers every citizen name already in the store
func (r *Registry) Seed(st store.Store) error {
	citizens, err := st.List()
	if err != nil {
		return err
	}
	for _, c := range citizens {
		r.Register(c.Name)
	}
	return nil
}

// Reset forgets all names
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = make(map[string]string)
}
