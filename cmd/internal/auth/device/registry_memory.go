package device

import (
	"context"
	"sort"
	"sync"
	"time"

	"parley/cmd/identity/ids"
)

// MemoryRegistry is an in-memory Registry used for development and tests.
type MemoryRegistry struct {
	mu    sync.RWMutex
	byID  map[string]Device
	byKey map[string]string // userID + "\x00" + fingerprint -> id
}

// NewMemoryRegistry constructs an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		byID:  make(map[string]Device),
		byKey: make(map[string]string),
	}
}

func key(userID, fingerprint string) string {
	return userID + "\x00" + fingerprint
}

func (r *MemoryRegistry) LookupOrCreate(_ context.Context, now time.Time, userID string, info Info, ip string) (Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byKey[key(userID, info.Fingerprint)]; ok {
		d := r.byID[id]
		d.LastSeenAt = now
		d.IP = ip
		d.Active = true
		r.byID[id] = d
		return d, nil
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Device{}, err
	}
	d := Device{
		ID:          id,
		UserID:      userID,
		Fingerprint: info.Fingerprint,
		Type:        info.Type,
		OS:          info.OS,
		Browser:     info.Browser,
		IP:          ip,
		LastSeenAt:  now,
		Active:      true,
		CreatedAt:   now,
	}
	r.byID[id] = d
	r.byKey[key(userID, info.Fingerprint)] = id
	return d, nil
}

func (r *MemoryRegistry) Get(_ context.Context, id string) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byID[id]
	if !ok {
		return Device{}, ErrNotFound
	}
	return d, nil
}

func (r *MemoryRegistry) Touch(_ context.Context, now time.Time, id string, ip string) error {
	return r.update(id, func(d *Device) {
		d.LastSeenAt = now
		d.IP = ip
	})
}

func (r *MemoryRegistry) ListActive(_ context.Context, userID string) ([]Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Device
	for _, d := range r.byID {
		if d.UserID == userID && d.Active {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeenAt.After(out[j].LastSeenAt)
	})
	return out, nil
}

func (r *MemoryRegistry) Deactivate(_ context.Context, now time.Time, id string) error {
	return r.update(id, func(d *Device) {
		d.Active = false
		d.LastSeenAt = now
	})
}

func (r *MemoryRegistry) update(id string, fn func(*Device)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	fn(&d)
	r.byID[id] = d
	return nil
}
