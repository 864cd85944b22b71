package plug

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/preauto/preauto/pkg/storage"
)

// Registry holds manually declared plug definitions, persisted as a JSON
// document. Ids are derived deterministically from vendor + short id so
// re-registering the same device is an update, not a duplicate.
// Safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	path  string
	plugs []Definition
	now   func() time.Time
}

type registryDocument struct {
	Plugs []Definition `json:"plugs"`
}

// NewRegistry loads (or initializes) the registry backed by plugs.json under
// dataDir.
func NewRegistry(dataDir string) *Registry {
	r := &Registry{
		path: filepath.Join(dataDir, "plugs.json"),
		now:  time.Now,
	}
	var doc registryDocument
	storage.ReadJSON(r.path, &doc)
	r.plugs = doc.Plugs
	return r
}

// List returns copies of all registered definitions.
func (r *Registry) List() []Definition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Definition(nil), r.plugs...)
}

// ListByVendor returns the definitions for one vendor.
func (r *Registry) ListByVendor(vendor string) []Definition {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Definition
	for _, p := range r.plugs {
		if p.Vendor == vendor {
			out = append(out, p)
		}
	}
	return out
}

// Upsert normalizes and stores a definition. The id is always rebuilt as
// plug:<vendor>:<shortId>; a definition without a stable short id (explicit,
// connection device id, or host) is rejected so ids stay deterministic
// across restarts.
func (r *Registry) Upsert(def Definition) (Definition, error) {
	normalized, err := normalizeDefinition(def, r.now())
	if err != nil {
		return Definition{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.plugs {
		if existing.ID == normalized.ID {
			normalized.CreatedAt = existing.CreatedAt
			r.plugs[i] = normalized
			r.persist()
			return normalized, nil
		}
	}

	r.plugs = append(r.plugs, normalized)
	r.persist()
	return normalized, nil
}

// Remove deletes a definition by plug id. Returns false if unknown.
func (r *Registry) Remove(plugID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.plugs {
		if p.ID == plugID {
			r.plugs = append(r.plugs[:i], r.plugs[i+1:]...)
			r.persist()
			return true
		}
	}
	return false
}

func (r *Registry) persist() {
	if err := storage.WriteJSON(r.path, registryDocument{Plugs: r.plugs}); err != nil {
		log.Warn().Err(err).Str("path", r.path).Msg("Failed to persist plug registry")
	}
}

func normalizeDefinition(def Definition, now time.Time) (Definition, error) {
	vendor := strings.ToLower(strings.TrimSpace(def.Vendor))
	if vendor == "" {
		vendor = "generic"
	}

	shortID := strings.TrimSpace(def.ShortID)
	if shortID == "" {
		shortID = strings.TrimSpace(def.Connection.DeviceID)
	}
	if shortID == "" {
		shortID = strings.TrimSpace(def.Connection.Host)
	}
	if shortID == "" {
		if v, ok := VendorFromID(def.ID); ok && v == vendor {
			shortID = strings.TrimPrefix(def.ID, "plug:"+vendor+":")
		}
	}
	if shortID == "" {
		return Definition{}, fmt.Errorf("plug definition needs a stable short id (shortId, connection.deviceId or connection.host)")
	}

	name := def.Name
	if name == "" {
		name = shortID
	}

	out := def
	out.ID = MakeID(vendor, shortID)
	out.Vendor = vendor
	out.ShortID = shortID
	out.Name = name
	out.Manual = true
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
	out.UpdatedAt = now
	return out, nil
}
