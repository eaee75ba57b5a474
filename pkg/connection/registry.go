package connection

import "sync"

// Registry maps message type and sender names to dense ids starting at 0.
// Registering a name twice returns the same id.
type Registry struct {
	mu          sync.RWMutex
	typeIDs     map[string]uint32
	typeNames   []string
	senderIDs   map[string]uint32
	senderNames []string
}

func NewRegistry() *Registry {
	return &Registry{
		typeIDs:   make(map[string]uint32),
		senderIDs: make(map[string]uint32),
	}
}

// RegisterType returns the id for name and whether it was newly assigned.
func (r *Registry) RegisterType(name string) (uint32, bool) {
	id, isNew, _ := r.AnnounceType(name, nil)
	return id, isNew
}

// RegisterSender returns the id for name and whether it was newly assigned.
func (r *Registry) RegisterSender(name string) (uint32, bool) {
	id, isNew, _ := r.AnnounceSender(name, nil)
	return id, isNew
}

// AnnounceType is RegisterType for names that must reach peers. announce
// runs with the new id before the name is committed; if it fails the name
// stays unregistered and the next call tries again.
func (r *Registry) AnnounceType(name string, announce func(id uint32) error) (uint32, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return register(name, r.typeIDs, &r.typeNames, announce)
}

// AnnounceSender is AnnounceType for sender names.
func (r *Registry) AnnounceSender(name string, announce func(id uint32) error) (uint32, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return register(name, r.senderIDs, &r.senderNames, announce)
}

func register(name string, ids map[string]uint32, names *[]string, announce func(uint32) error) (uint32, bool, error) {
	if id, ok := ids[name]; ok {
		return id, false, nil
	}
	id := uint32(len(*names))
	if announce != nil {
		if err := announce(id); err != nil {
			return 0, false, err
		}
	}
	ids[name] = id
	*names = append(*names, name)
	return id, true, nil
}

func (r *Registry) TypeID(name string) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.typeIDs[name]
	return id, ok
}

func (r *Registry) SenderID(name string) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.senderIDs[name]
	return id, ok
}

func (r *Registry) TypeName(id uint32) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.typeNames) {
		return "", false
	}
	return r.typeNames[id], true
}

func (r *Registry) SenderName(id uint32) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.senderNames) {
		return "", false
	}
	return r.senderNames[id], true
}

// Types returns type names indexed by id.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.typeNames...)
}

// Senders returns sender names indexed by id.
func (r *Registry) Senders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.senderNames...)
}
