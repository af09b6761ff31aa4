package character

// Store exposes character retrieval for the relay and HTTP handlers.
type Store interface {
	List() []Character
	FindByID(id string) (Character, bool)
}

// MemoryStore implements Store over an immutable slice loaded at start.
type MemoryStore struct {
	items []Character
	index map[string]int
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied characters.
func NewMemoryStore(items []Character) *MemoryStore {
	copied := append([]Character(nil), items...)
	index := make(map[string]int, len(copied))
	for i, item := range copied {
		if _, exists := index[item.ID]; !exists {
			index[item.ID] = i
		}
	}
	return &MemoryStore{items: copied, index: index}
}

// List returns the roster in load order.
func (s *MemoryStore) List() []Character {
	return append([]Character(nil), s.items...)
}

// FindByID looks up a character. Unknown ids report false, not an error.
func (s *MemoryStore) FindByID(id string) (Character, bool) {
	i, ok := s.index[id]
	if !ok {
		return Character{}, false
	}
	return s.items[i], true
}

// Views returns the public projection of the roster.
func Views(store Store) []View {
	items := store.List()
	views := make([]View, 0, len(items))
	for _, item := range items {
		views = append(views, item.Public())
	}
	return views
}
