package core

import (
	"sort"
	"sync"
)

// KeyLock serializes work per entity key (a uid, a group id, a chat id).
// Entries are reference counted and dropped when unused.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*keyEntry
}

type keyEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyLock returns an empty lock table.
func NewKeyLock() *KeyLock {
	return &KeyLock{locks: make(map[string]*keyEntry)}
}

// Lock acquires every key and returns the matching unlock function.
// Keys are deduplicated and taken in sorted order so that two callers
// locking overlapping sets cannot deadlock.
func (l *KeyLock) Lock(keys ...string) func() {
	uniq := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		uniq = append(uniq, k)
	}
	sort.Strings(uniq)

	entries := make([]*keyEntry, 0, len(uniq))
	for _, k := range uniq {
		l.mu.Lock()
		e, ok := l.locks[k]
		if !ok {
			e = &keyEntry{}
			l.locks[k] = e
		}
		e.refs++
		l.mu.Unlock()

		e.mu.Lock()
		entries = append(entries, e)
	}

	return func() {
		for i := len(entries) - 1; i >= 0; i-- {
			entries[i].mu.Unlock()
			l.release(uniq[i])
		}
	}
}

func (l *KeyLock) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.locks[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(l.locks, key)
	}
}

// UserKey names the lock guarding a user record.
func UserKey(uid string) string { return "user:" + uid }

// GroupKey names the lock guarding a group's membership.
func GroupKey(groupID string) string { return "group:" + groupID }

// ChatKey names the lock guarding appends to a chat log.
func ChatKey(chatID string) string { return "chat:" + chatID }
