package followup

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/alekspetrov/autonomy/internal/autopilot"
)

// ErrUnknownTool is returned for a tool with no registered generator.
var ErrUnknownTool = errors.New("no follow-up generator for tool")

// Tool names of the built-in generators.
const (
	ToolSentiment      = "sentiment"
	ToolDataInspection = "data_inspection"
	ToolCodeSearch     = "code_search"
)

// Registry maps tool names to generators that accept the tool's raw JSON
// result. It is how the CLI and gateway reach a typed generator.
type Registry struct {
	mu   sync.RWMutex
	gens map[string]func(json.RawMessage) (string, error)
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{gens: make(map[string]func(json.RawMessage) (string, error))}
}

// DefaultRegistry returns a Registry with the built-in generators.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	Register[SentimentResult](r, ToolSentiment, Sentiment{})
	Register[InspectionResult](r, ToolDataInspection, DataInspection{})
	Register[CodeSearchResult](r, ToolCodeSearch, CodeSearch{})
	return r
}

// Register adds gen under name, replacing any previous generator.
func Register[R any](r *Registry, name string, gen autopilot.FollowUpGenerator[R]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gens[name] = func(raw json.RawMessage) (string, error) {
		var result R
		if err := json.Unmarshal(raw, &result); err != nil {
			return "", fmt.Errorf("decode %s result: %w", name, err)
		}
		return autopilot.SafeFollowUp(gen, result), nil
	}
}

// Generate decodes raw as the tool's result type and runs its generator.
func (r *Registry) Generate(tool string, raw []byte) (string, error) {
	r.mu.RLock()
	gen, ok := r.gens[tool]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, tool)
	}
	return gen(raw)
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.gens))
	for name := range r.gens {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
