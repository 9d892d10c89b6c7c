// Package tools implements the dynamic tool table the orchestrator dispatches
// plan steps against. Tools are either built in or user-defined; builtin
// identities are immutable for the lifetime of the registry.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/codefionn/taskpilot/internal/logger"
)

// Source records who registered a tool.
type Source string

const (
	SourceBuiltin Source = "builtin"
	SourceUser    Source = "user"
)

// Sentinel errors so callers can branch on failure cause.
var (
	ErrToolNotFound  = errors.New("tool not found")
	ErrToolDisabled  = errors.New("tool is disabled")
	ErrToolNoHandler = errors.New("tool has no executor")
)

// Handler executes a tool in-process.
type Handler func(ctx context.Context, args map[string]interface{}) (string, error)

// Parameter describes one tool argument for schema generation and prompt
// formatting.
type Parameter struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Definition describes a registered tool. Exactly one of Handler or Endpoint
// is expected to be set; Endpoint names a server-backed executor reached via
// HTTP POST.
type Definition struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Parameters  map[string]Parameter `json:"parameters,omitempty"`
	Required    []string             `json:"required,omitempty"`
	Enabled     bool                 `json:"enabled"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
	Endpoint    string               `json:"endpoint,omitempty"`
	Handler     Handler              `json:"-"`
}

type registryEntry struct {
	def    Definition
	source Source
	seq    int
}

// Registry manages available tools. Reads may run concurrently; writes take
// the registry lock.
type Registry struct {
	mu         sync.RWMutex
	entries    map[string]*registryEntry
	seqCounter int
	httpClient *http.Client
}

// NewRegistry creates a new tool registry. httpClient is used for
// server-backed tools; nil gets a default with a 30s timeout.
func NewRegistry(httpClient *http.Client) *Registry {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Registry{
		entries:    make(map[string]*registryEntry),
		httpClient: httpClient,
	}
}

// Register inserts or replaces a tool. A user registration over an existing
// builtin id is a silent no-op: builtin identities cannot be shadowed.
func (r *Registry) Register(def Definition, source Source) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.entries[def.ID]
	if ok && existing.source == SourceBuiltin && source == SourceUser {
		logger.Debug("Ignoring user registration over builtin tool %s", def.ID)
		return
	}

	now := time.Now()
	if ok {
		// Same identity: keep its position in creation order.
		def.CreatedAt = existing.def.CreatedAt
		def.UpdatedAt = now
		r.entries[def.ID] = &registryEntry{def: def, source: source, seq: existing.seq}
		return
	}

	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now
	r.seqCounter++
	r.entries[def.ID] = &registryEntry{def: def, source: source, seq: r.seqCounter}
}

// UpsertUserTool registers a user-defined tool.
func (r *Registry) UpsertUserTool(def Definition) {
	r.Register(def, SourceUser)
}

// Get returns a copy of the tool definition, or nil if unknown.
func (r *Registry) Get(id string) *Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil
	}
	def := entry.def
	return &def
}

// IsBuiltin reports whether id names a builtin tool.
func (r *Registry) IsBuiltin(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	return ok && entry.source == SourceBuiltin
}

// List returns all tool definitions ordered by ascending creation time,
// ties broken by registration order.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Definition, 0, len(r.entries))
	seqs := make(map[string]int, len(r.entries))
	for _, entry := range r.entries {
		result = append(result, entry.def)
		seqs[entry.def.ID] = entry.seq
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return seqs[result[i].ID] < seqs[result[j].ID]
	})
	return result
}

// ListEnabled returns the enabled tools in List order.
func (r *Registry) ListEnabled() []Definition {
	all := r.List()
	result := make([]Definition, 0, len(all))
	for _, def := range all {
		if def.Enabled {
			result = append(result, def)
		}
	}
	return result
}

// SetToolEnabled toggles a tool. Unknown ids are ignored; provenance is
// never touched.
func (r *Registry) SetToolEnabled(id string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return
	}
	entry.def.Enabled = enabled
	entry.def.UpdatedAt = time.Now()
}

// Remove deletes a user tool and returns true. Builtin tools cannot be
// removed; the call returns false without mutation.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok || entry.source == SourceBuiltin {
		return false
	}
	delete(r.entries, id)
	return true
}

// Execute resolves nameOrID (id first, then name) and runs the tool.
// Failures are distinguishable via errors.Is against the package sentinels.
// No retries happen here; retry policy belongs to the caller.
func (r *Registry) Execute(ctx context.Context, nameOrID string, args map[string]interface{}) (string, error) {
	def, err := r.resolve(nameOrID)
	if err != nil {
		return "", err
	}

	if args == nil {
		args = make(map[string]interface{})
	}

	switch {
	case def.Handler != nil:
		return def.Handler(ctx, args)
	case def.Endpoint != "":
		return r.executeRemote(ctx, def, args)
	default:
		return "", fmt.Errorf("%w: %s", ErrToolNoHandler, def.Name)
	}
}

func (r *Registry) resolve(nameOrID string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[nameOrID]
	if !ok {
		for _, e := range r.entries {
			if e.def.Name == nameOrID {
				entry = e
				ok = true
				break
			}
		}
	}
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrToolNotFound, nameOrID)
	}
	if !entry.def.Enabled {
		return Definition{}, fmt.Errorf("%w: %s", ErrToolDisabled, entry.def.Name)
	}
	return entry.def, nil
}

type remoteRequest struct {
	Tool string                 `json:"tool"`
	Args map[string]interface{} `json:"args"`
}

type remoteResponse struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

func (r *Registry) executeRemote(ctx context.Context, def Definition, args map[string]interface{}) (string, error) {
	payload, err := json.Marshal(remoteRequest{Tool: def.ID, Args: args})
	if err != nil {
		return "", fmt.Errorf("failed to encode tool request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, def.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build tool request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tool %s request failed: %w", def.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("tool %s response read failed: %w", def.Name, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tool %s failed: status %d: %s", def.Name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// Servers may answer with {"result": ...} or a bare string body.
	var parsed remoteResponse
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error != "" {
			return "", fmt.Errorf("tool %s failed: %s", def.Name, parsed.Error)
		}
		if parsed.Result != "" {
			return parsed.Result, nil
		}
	}
	return string(body), nil
}

// ToOpenAITools projects the registry into the function-calling shape
// tool-calling LLM APIs expect. The projection has no side effects.
func (r *Registry) ToOpenAITools(onlyEnabled bool) []map[string]interface{} {
	defs := r.List()
	schemas := make([]map[string]interface{}, 0, len(defs))
	for _, def := range defs {
		if onlyEnabled && !def.Enabled {
			continue
		}

		properties := make(map[string]interface{}, len(def.Parameters))
		for name, param := range def.Parameters {
			properties[name] = map[string]interface{}{
				"type":        param.Type,
				"description": param.Description,
			}
		}

		parameters := map[string]interface{}{
			"type":       "object",
			"properties": properties,
		}
		if len(def.Required) > 0 {
			parameters["required"] = append([]string(nil), def.Required...)
		}

		schemas = append(schemas, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        def.Name,
				"description": def.Description,
				"parameters":  parameters,
			},
		})
	}
	return schemas
}

// GetStringParam returns a string argument or the default.
func GetStringParam(args map[string]interface{}, key string, defaultVal string) string {
	if val, ok := args[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return defaultVal
}
