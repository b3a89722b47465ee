package registry

import (
	"errors"
	"fmt"

	"companion/internal/logging"
	"companion/internal/session"

	"github.com/google/uuid"
)

var (
	ErrNoSession   = errors.New("no such session")
	ErrLastSession = errors.New("cannot remove the last visible session")
)

// Store persists sessions. filestore.Store satisfies it.
type Store interface {
	Save(p session.Persisted) error
	Delete(id string) error
	LoadAll() ([]session.Persisted, error)
}

// Registry owns every session, their display order and the active pointer.
// Like the sessions it holds, it is confined to the event loop goroutine.
type Registry struct {
	sessions map[string]*session.Session
	order    []string
	active   string
	spawns   []string
	profiles []Profile

	store   Store
	logger  logging.Logger
	newID   func() string
	newName func() string
}

type Option func(*Registry)

func WithLogger(logger logging.Logger) Option {
	return func(r *Registry) { r.logger = logging.OrNop(logger) }
}

// WithIDGenerator replaces uuid-based ids, for tests.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

func WithNameGenerator(fn func() string) Option {
	return func(r *Registry) { r.newName = fn }
}

func WithProfiles(profiles []Profile) Option {
	return func(r *Registry) { r.profiles = profiles }
}

// New creates an empty registry. store may be nil, in which case nothing is
// persisted.
func New(store Store, opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]*session.Session),
		store:    store,
		logger:   logging.NewComponentLogger("SessionRegistry"),
		newID:    uuid.NewString,
		newName:  GenerateName,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load restores persisted sessions in creation order and activates the first
// visible one. Unreadable files were already skipped by the store.
func (r *Registry) Load() (int, error) {
	if r.store == nil {
		return 0, nil
	}
	all, err := r.store.LoadAll()
	if err != nil {
		return 0, err
	}
	loaded := 0
	for _, p := range all {
		if _, exists := r.sessions[p.ID]; exists {
			continue
		}
		r.insert(session.FromPersisted(p))
		loaded++
	}
	if r.active == "" {
		r.active = r.firstVisibleOrAny()
	}
	r.logger.Info("Loaded %d persisted sessions", loaded)
	return loaded, nil
}

func (r *Registry) insert(s *session.Session) {
	r.sessions[s.ID] = s
	r.order = append(r.order, s.ID)
}

// Create adds a session, activates it and schedules an agent spawn for it.
// An empty name gets a generated one.
func (r *Registry) Create(name, cwd, profile string) *session.Session {
	s := r.CreateDetached(name, cwd, profile)
	r.ScheduleSpawn(s.ID)
	return s
}

// CreateDetached is Create without the spawn, for sessions whose agent is
// started externally.
func (r *Registry) CreateDetached(name, cwd, profile string) *session.Session {
	if name == "" {
		name = r.newName()
	}
	s := session.New(r.newID(), name, cwd)
	s.EnvProfile = profile
	r.insert(s)
	r.active = s.ID
	return s
}

func (r *Registry) Get(id string) (*session.Session, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

// Active returns the active session, or nil when there is none.
func (r *Registry) Active() *session.Session {
	return r.sessions[r.active]
}

func (r *Registry) ActiveID() string { return r.active }

func (r *Registry) Len() int { return len(r.order) }

// All returns sessions in display order, archived ones included.
func (r *Registry) All() []*session.Session {
	out := make([]*session.Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id])
	}
	return out
}

// Visible returns non-archived sessions in display order.
func (r *Registry) Visible() []*session.Session {
	out := make([]*session.Session, 0, len(r.order))
	for _, id := range r.order {
		if s := r.sessions[id]; !s.Archived {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) visibleIDs() []string {
	ids := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if !r.sessions[id].Archived {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Registry) firstVisibleOrAny() string {
	if visible := r.visibleIDs(); len(visible) > 0 {
		return visible[0]
	}
	if len(r.order) > 0 {
		return r.order[0]
	}
	return ""
}

// SwitchTo activates id if it exists.
func (r *Registry) SwitchTo(id string) bool {
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	r.active = id
	return true
}

// SwitchToIndex activates the index-th visible session (0-based).
func (r *Registry) SwitchToIndex(index int) bool {
	visible := r.visibleIDs()
	if index < 0 || index >= len(visible) {
		return false
	}
	r.active = visible[index]
	return true
}

// Next and Prev cycle through visible sessions. They do nothing with fewer
// than two visible sessions or when the active one is archived.
func (r *Registry) Next() bool { return r.step(1) }
func (r *Registry) Prev() bool { return r.step(-1) }

func (r *Registry) step(delta int) bool {
	visible := r.visibleIDs()
	if len(visible) <= 1 {
		return false
	}
	for i, id := range visible {
		if id == r.active {
			r.active = visible[(i+delta+len(visible))%len(visible)]
			return true
		}
	}
	return false
}

// ActiveIndex is the position of the active session among visible ones, or
// -1 when it is archived or absent.
func (r *Registry) ActiveIndex() int {
	for i, id := range r.visibleIDs() {
		if id == r.active {
			return i
		}
	}
	return -1
}

func (r *Registry) isLastVisible(id string) bool {
	s, ok := r.sessions[id]
	if !ok || s.Archived {
		return false
	}
	return len(r.visibleIDs()) == 1
}

// Kill destroys the active session: its process is aborted, its file
// deleted and it is removed from the registry. The last visible session
// cannot be killed.
func (r *Registry) Kill() (*session.Session, error) {
	s := r.Active()
	if s == nil {
		return nil, ErrNoSession
	}
	if r.isLastVisible(s.ID) {
		return nil, ErrLastSession
	}
	s.AbortProcess()

	var err error
	if r.store != nil {
		if err = r.store.Delete(s.ID); err != nil {
			r.logger.Warn("Failed to delete session %s: %v", s.ID, err)
		}
	}
	delete(r.sessions, s.ID)
	r.order = removeID(r.order, s.ID)
	r.spawns = removeID(r.spawns, s.ID)
	r.active = r.firstVisibleOrAny()
	return s, err
}

// Archive hides the active session and moves to the next visible one.
func (r *Registry) Archive() (*session.Session, error) {
	s := r.Active()
	if s == nil {
		return nil, ErrNoSession
	}
	if r.isLastVisible(s.ID) {
		return nil, ErrLastSession
	}
	s.Archived = true
	err := r.Persist(s.ID)
	if visible := r.visibleIDs(); len(visible) > 0 {
		r.active = visible[0]
	}
	return s, err
}

// Unarchive restores the index-th session of the full order (0-based).
func (r *Registry) Unarchive(index int) (*session.Session, error) {
	if index < 0 || index >= len(r.order) {
		return nil, fmt.Errorf("%w: %d", ErrNoSession, index+1)
	}
	s := r.sessions[r.order[index]]
	s.Archived = false
	return s, r.Persist(s.ID)
}

// Persist writes one session through the store.
func (r *Registry) Persist(id string) error {
	s, ok := r.sessions[id]
	if !ok {
		return ErrNoSession
	}
	if r.store == nil {
		return nil
	}
	if err := r.store.Save(s.ToPersisted()); err != nil {
		r.logger.Error("Failed to persist session %s: %v", id, err)
		return err
	}
	return nil
}

// PersistAll writes every session, continuing past failures.
func (r *Registry) PersistAll() error {
	var errs []error
	for _, id := range r.order {
		if err := r.Persist(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ScheduleSpawn marks a session as needing an agent process.
func (r *Registry) ScheduleSpawn(id string) {
	for _, pending := range r.spawns {
		if pending == id {
			return
		}
	}
	r.spawns = append(r.spawns, id)
}

// TakeSpawns returns and clears the pending spawn list.
func (r *Registry) TakeSpawns() []string {
	out := r.spawns
	r.spawns = nil
	return out
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, candidate := range ids {
		if candidate != id {
			out = append(out, candidate)
		}
	}
	return out
}
