package search

import "sync"

// CancellationRegistry tracks running page scans by caller supplied token.
//
// A scan registers its token before the first page query and polls Active
// before each following one. Cancel removes the token so the scan stops
// once its in-flight query returns. The registry also remembers the last
// page each scan reached. Entries are removed by Done on every exit path.
//
// Entries belong to one Registration: Done only removes the entries of the
// registration it is given, so a cancelled scan finishing late cannot drop a
// newer scan that reused its token.
//
// One registry is created per process and shared by the engines that need
// it. All methods are safe for concurrent use.
type CancellationRegistry struct {
	active   sync.Map // token -> *Registration
	progress sync.Map // token -> *Registration
}

// Registration is one scan's claim on a token.
type Registration struct {
	mu   sync.Mutex
	page int
	set  bool
}

// SetProgress records the last page the scan queried.
func (g *Registration) SetProgress(page int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.page, g.set = page, true
}

func (g *Registration) progress() (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.page, g.set
}

// NewCancellationRegistry returns an empty registry.
func NewCancellationRegistry() *CancellationRegistry {
	return &CancellationRegistry{}
}

// Register marks token as running. It returns false if the token is
// already registered.
func (r *CancellationRegistry) Register(token string) (*Registration, bool) {
	g := &Registration{}
	if _, loaded := r.active.LoadOrStore(token, g); loaded {
		return nil, false
	}
	r.progress.Store(token, g)
	return g, true
}

// Cancel asks the scan identified by token to stop. It returns false when
// no such scan is running.
func (r *CancellationRegistry) Cancel(token string) bool {
	_, ok := r.active.LoadAndDelete(token)
	return ok
}

// Active reports whether the scan may continue.
func (r *CancellationRegistry) Active(token string) bool {
	_, ok := r.active.Load(token)
	return ok
}

// holds reports whether token is still registered to g.
func (r *CancellationRegistry) holds(token string, g *Registration) bool {
	v, ok := r.active.Load(token)
	return ok && v.(*Registration) == g
}

// Progress returns the last page recorded for token.
func (r *CancellationRegistry) Progress(token string) (int, bool) {
	v, ok := r.progress.Load(token)
	if !ok {
		return 0, false
	}
	return v.(*Registration).progress()
}

// Done forgets token if it still belongs to g.
func (r *CancellationRegistry) Done(token string, g *Registration) {
	r.active.CompareAndDelete(token, g)
	r.progress.CompareAndDelete(token, g)
}

// Len returns the number of running scans.
func (r *CancellationRegistry) Len() int {
	n := 0
	r.active.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
