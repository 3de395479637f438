package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownModel is returned when a model id is not in the
	// supported set for its worker kind.
	ErrUnknownModel = errors.New("unknown model")
	// ErrNoWorkerImplementation is returned when no launcher is
	// registered for a worker kind.
	ErrNoWorkerImplementation = errors.New("no worker implementation registered")
)

// Launcher spawns one worker process of the given kind for the given
// model, bound to the supplied channel pair. It returns a handle to the
// running process.
type Launcher func(ctx context.Context, kind Kind, modelID string, ch Channels) (Process, error)

// Registry maps worker kinds to their supported models and launchers.
type Registry struct {
	mu        sync.RWMutex
	models    map[Kind]map[string]struct{}
	launchers map[Kind]Launcher
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		models:    make(map[Kind]map[string]struct{}),
		launchers: make(map[Kind]Launcher),
	}
}

// Allow adds model ids to the supported set for a kind.
func (r *Registry) Allow(kind Kind, modelIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.models[kind]
	if !ok {
		set = make(map[string]struct{})
		r.models[kind] = set
	}
	for _, id := range modelIDs {
		set[id] = struct{}{}
	}
}

// Register installs the launcher for a kind, replacing any previous one.
func (r *Registry) Register(kind Kind, launcher Launcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.launchers[kind] = launcher
}

// Resolve validates the model id and returns the launcher for a kind.
func (r *Registry) Resolve(kind Kind, modelID string) (Launcher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.models[kind][modelID]; !ok {
		return nil, fmt.Errorf("%w: %q for %s", ErrUnknownModel, modelID, kind)
	}
	launcher, ok := r.launchers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoWorkerImplementation, kind)
	}
	return launcher, nil
}

// SupportedModels returns the sorted supported model ids for a kind.
func (r *Registry) SupportedModels(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.models[kind]))
	for id := range r.models[kind] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
