package game

import "sync"

// lockTable hands out one mutex per game id so every mutating operation on a
// game serializes inside this process. Serializing per game makes the
// remove-old-guess/add-new-guess pair on the aggregate safe without store
// transactions. Entries are reference counted and dropped when the last
// holder releases, so the table does not grow with expired games.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*lockEntry)}
}

// acquire locks the game's mutex and returns its release func.
func (t *lockTable) acquire(gameID string) func() {
	t.mu.Lock()
	entry, ok := t.locks[gameID]
	if !ok {
		entry = &lockEntry{}
		t.locks[gameID] = entry
	}
	entry.refs++
	t.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		t.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(t.locks, gameID)
		}
		t.mu.Unlock()
	}
}
