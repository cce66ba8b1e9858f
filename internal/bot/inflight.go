package bot

import "sync"

// inflight admits at most one download per user.
type inflight struct {
	mu    sync.Mutex
	users map[int64]struct{}
}

func newInflight() *inflight {
	return &inflight{users: make(map[int64]struct{})}
}

// acquire reserves the user slot; the returned release must be called once.
func (f *inflight) acquire(userID int64) (release func(), ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.users[userID]; busy {
		return nil, false
	}
	f.users[userID] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.users, userID)
			f.mu.Unlock()
		})
	}, true
}

func (f *inflight) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}
