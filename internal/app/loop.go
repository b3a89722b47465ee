package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"companion/internal/async"
	"companion/internal/external/claudecode"
	"companion/internal/logging"
	"companion/internal/observability"
	"companion/internal/protocol"
	"companion/internal/registry"
	"companion/internal/session"
)

const (
	defaultTickInterval = 100 * time.Millisecond
	defaultFlashTTL     = 3 * time.Second
	eventBuffer         = 256
	actionBuffer        = 64
)

// Spawner runs one agent process and blocks until it exits or ctx is
// cancelled. claudecode.Launcher satisfies it.
type Spawner interface {
	Run(ctx context.Context, spec claudecode.LaunchSpec) error
}

type Config struct {
	DefaultCWD   string
	DefaultModel string
	Port         int
	TickInterval time.Duration
	FlashTTL     time.Duration
	Metrics      *observability.Metrics
	Logger       logging.Logger

	// Overridable for tests.
	GitInfo  func(cwd string) session.GitInfo
	Shell    func(dir, command string) (string, error)
	Worktree func(cwd, branch string) (string, bool, error)
	Now      func() time.Time
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.FlashTTL <= 0 {
		c.FlashTTL = defaultFlashTTL
	}
	if c.Logger == nil {
		c.Logger = logging.NewComponentLogger("EventLoop")
	}
	if c.GitInfo == nil {
		c.GitInfo = GatherGitInfo
	}
	if c.Shell == nil {
		c.Shell = ShellOutput
	}
	if c.Worktree == nil {
		c.Worktree = CreateWorktree
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Loop is the single owner of all session state. Terminal actions, bridge
// events and process exits are funnelled into Run, which applies them one at
// a time and publishes a Snapshot whenever something changed.
type Loop struct {
	cfg     Config
	reg     *registry.Registry
	spawner Spawner
	logger  logging.Logger

	actions   chan Action
	events    chan Event
	snapshots chan Snapshot
	done      chan struct{}

	spawnCtx    context.Context
	spawnCancel context.CancelFunc
	wg          sync.WaitGroup

	flash     string
	flashAt   time.Time
	tick      int
	dirty     bool
	quit      bool
	turnStart map[string]time.Time
}

func New(reg *registry.Registry, spawner Spawner, cfg Config) *Loop {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		cfg:         cfg,
		reg:         reg,
		spawner:     spawner,
		logger:      logging.OrNop(cfg.Logger),
		actions:     make(chan Action, actionBuffer),
		events:      make(chan Event, eventBuffer),
		snapshots:   make(chan Snapshot, 1),
		done:        make(chan struct{}),
		spawnCtx:    ctx,
		spawnCancel: cancel,
		turnStart:   make(map[string]time.Time),
		dirty:       true,
	}
}

// Snapshots delivers the latest view state. Older unread snapshots are
// replaced. The channel is closed when Run returns.
func (l *Loop) Snapshots() <-chan Snapshot { return l.snapshots }

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Dispatch hands an action to the loop. It reports false once the loop has
// stopped.
func (l *Loop) Dispatch(a Action) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.actions <- a:
		return true
	case <-l.done:
		return false
	}
}

// Post hands an event to the loop, dropping it once the loop has stopped.
func (l *Loop) Post(ev Event) {
	select {
	case <-l.done:
		return
	default:
	}
	select {
	case l.events <- ev:
	case <-l.done:
	}
}

// Run processes inputs until ctx is cancelled or a Quit action arrives. All
// sessions are persisted on the way out; agent processes keep running until
// Shutdown.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.snapshots)
	defer close(l.done)
	defer func() {
		if err := l.reg.PersistAll(); err != nil {
			l.logger.Error("Failed to persist sessions on exit: %v", err)
		}
	}()

	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()

	l.refreshGitAll()
	l.startSpawns()
	l.publishIfDirty()

	for {
		select {
		case <-ctx.Done():
			return nil
		case a := <-l.actions:
			l.handleAction(a)
		case ev, ok := <-l.events:
			if !ok {
				return nil
			}
			l.handleEvent(ev)
		case <-ticker.C:
			l.handleTick()
		}

		l.startSpawns()
		l.publishIfDirty()
		if l.quit {
			l.logger.Info("Quit requested")
			return nil
		}
	}
}

// Shutdown stops every agent process and waits for them to exit.
func (l *Loop) Shutdown(ctx context.Context) error {
	l.spawnCancel()
	waited := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) setFlash(msg string) {
	l.flash = msg
	l.flashAt = l.cfg.Now()
	l.dirty = true
}

func (l *Loop) handleTick() {
	l.tick++
	if l.flash != "" && l.cfg.Now().Sub(l.flashAt) > l.cfg.FlashTTL {
		l.flash = ""
		l.dirty = true
	}
	for _, s := range l.reg.All() {
		if s.Status.Busy() {
			l.dirty = true
			break
		}
	}
}

// apply carries out the follow-up work a session transition asked for.
func (l *Loop) apply(s *session.Session, effects session.Effects) {
	if effects.RefreshGit {
		s.Git = l.cfg.GitInfo(s.CWD)
	}
	if effects.Persist {
		_ = l.reg.Persist(s.ID)
	}
	if effects.Spawn {
		l.reg.ScheduleSpawn(s.ID)
	}
	if effects.Flash != "" {
		l.setFlash(effects.Flash)
	}
	l.dirty = true
}

// trackTurn times turns from the first Running transition to the result.
func (l *Loop) trackTurn(s *session.Session, before session.Status, msg protocol.Message) {
	if before != session.StatusRunning && s.Status == session.StatusRunning {
		if _, ok := l.turnStart[s.ID]; !ok {
			l.turnStart[s.ID] = l.cfg.Now()
		}
	}
	if _, isResult := msg.(protocol.ResultMessage); isResult {
		if start, ok := l.turnStart[s.ID]; ok {
			l.cfg.Metrics.ObserveTurn(l.cfg.Now().Sub(start))
			delete(l.turnStart, s.ID)
		}
	}
}

func (l *Loop) connectedCount() int {
	n := 0
	for _, s := range l.reg.All() {
		if s.Connected {
			n++
		}
	}
	return n
}

func (l *Loop) handleEvent(ev Event) {
	switch ev := ev.(type) {
	case Connected:
		s, ok := l.reg.Get(ev.SessionID)
		if !ok {
			l.logger.Warn("Connection for unknown session %s ignored", ev.SessionID)
			return
		}
		l.logger.Info("Agent connected for session %s", ev.SessionID)
		l.apply(s, s.Attach(ev.Sender))
		l.cfg.Metrics.SetConnected(l.connectedCount())

	case MessageReceived:
		s, ok := l.reg.Get(ev.SessionID)
		if !ok {
			return
		}
		before := s.Status
		l.apply(s, s.Handle(ev.Message))
		l.trackTurn(s, before, ev.Message)

	case Disconnected:
		s, ok := l.reg.Get(ev.SessionID)
		if !ok || !s.Connected {
			return
		}
		if ev.Sender != nil && !s.IsSender(ev.Sender) {
			l.logger.Debug("Ignoring disconnect of a replaced connection for session %s", ev.SessionID)
			return
		}
		l.logger.Info("Agent disconnected for session %s", ev.SessionID)
		delete(l.turnStart, s.ID)
		l.apply(s, s.Detach())
		l.cfg.Metrics.SetConnected(l.connectedCount())

	case ProcessExited:
		s, ok := l.reg.Get(ev.SessionID)
		if !ok || !s.ClearProcess(ev.handle) {
			return
		}
		if ev.Err != nil && !errors.Is(ev.Err, context.Canceled) {
			s.AddSystem("Agent exited: " + ev.Err.Error())
		}
		l.dirty = true
	}
}

type processHandle struct {
	cancel context.CancelFunc
}

func (p *processHandle) Abort() { p.cancel() }

// startSpawns launches agents for every session that asked for one.
func (l *Loop) startSpawns() {
	for _, id := range l.reg.TakeSpawns() {
		s, ok := l.reg.Get(id)
		if !ok {
			continue
		}
		if s.HasProcess() {
			l.logger.Debug("Session %s already has an agent process", id)
			continue
		}
		if l.spawner == nil {
			continue
		}
		model := s.Model
		if model == "" {
			model = l.cfg.DefaultModel
		}
		spec := claudecode.LaunchSpec{
			SessionID: s.ID,
			CWD:       s.CWD,
			Model:     model,
			ResumeID:  s.ConversationID,
			Env:       l.reg.ProfileVars(s.EnvProfile),
		}

		ctx, cancel := context.WithCancel(l.spawnCtx)
		handle := &processHandle{cancel: cancel}
		s.SetProcess(handle)
		l.logger.Info("Spawning agent for session %s (resume=%t)", id, spec.ResumeID != "")

		async.GoTracked(&l.wg, l.logger, "agent-"+id, func() {
			defer cancel()
			err := l.spawner.Run(ctx, spec)
			if errors.Is(err, context.Canceled) {
				err = nil
			}
			l.cfg.Metrics.ObserveSpawn(err)
			if err != nil {
				l.logger.Warn("Agent for session %s failed: %v", spec.SessionID, err)
			}
			l.Post(ProcessExited{SessionID: spec.SessionID, Err: err, handle: handle})
		})
		l.dirty = true
	}
}

func (l *Loop) refreshGitAll() {
	for _, s := range l.reg.All() {
		s.Git = l.cfg.GitInfo(s.CWD)
	}
}

func (l *Loop) handleAction(a Action) {
	l.dirty = true

	switch a := a.(type) {
	case Quit:
		l.quit = true
		return
	case RunCommand:
		l.runCommand(ParseCommand(a.Text))
		return
	case SwitchSession:
		l.reg.SwitchToIndex(a.Index)
		return
	case NextSession:
		l.reg.Next()
		return
	case PrevSession:
		l.reg.Prev()
		return
	}

	s := l.reg.Active()
	if s == nil {
		l.setFlash("No active session")
		return
	}

	before := s.Status
	switch a := a.(type) {
	case SendText:
		text := strings.TrimSpace(a.Text)
		if text == "" {
			return
		}
		l.apply(s, s.SubmitText(text))
	case SendImage:
		l.apply(s, s.SubmitImage(a.Text, a.Data, a.MediaType))
	case ApprovePermission:
		effects, err := s.Approve()
		l.applyResult(s, effects, err)
	case DenyPermission:
		effects, err := s.Deny()
		l.applyResult(s, effects, err)
	case AlwaysAllowPermission:
		effects, err := s.AlwaysAllow()
		l.applyResult(s, effects, err)
	case SelectQuestionOption:
		effects, err := s.SelectQuestionOption(a.N)
		l.applyResult(s, effects, err)
	case MoveQuestionCursor:
		_ = s.MoveQuestionCursor(a.Delta)
	case ConfirmQuestion:
		effects, err := s.ConfirmQuestion()
		l.applyResult(s, effects, err)
	case DismissQuestion:
		_ = s.DismissQuestion()
	case Interrupt:
		s.Interrupt()
	case TogglePlanMode:
		l.apply(s, s.TogglePlanMode())
		l.setFlash(fmt.Sprintf("Permission mode: %s", s.PermissionMode))
	default:
		l.logger.Warn("Unhandled action %T", a)
	}
	l.trackTurn(s, before, nil)
}

func (l *Loop) applyResult(s *session.Session, effects session.Effects, err error) {
	if err != nil && effects.Flash == "" {
		l.logger.Debug("Action on session %s: %v", s.ID, err)
	}
	l.apply(s, effects)
}

func (l *Loop) snapshot() Snapshot {
	all := l.reg.All()
	snap := Snapshot{
		Sessions: make([]SessionView, 0, len(all)),
		Flash:    l.flash,
		Profiles: l.reg.Profiles(),
		Port:     l.cfg.Port,
		Tick:     l.tick,
		Taken:    l.cfg.Now(),
	}
	activeID := l.reg.ActiveID()
	for i, s := range all {
		isActive := s.ID == activeID
		snap.Sessions = append(snap.Sessions, viewOf(s, isActive))
		if !s.Archived {
			snap.Visible = append(snap.Visible, i)
		}
		if isActive {
			snap.Active = &snap.Sessions[i]
		}
	}
	return snap
}

func (l *Loop) publishIfDirty() {
	if !l.dirty {
		return
	}
	l.dirty = false
	snap := l.snapshot()
	select {
	case <-l.snapshots:
	default:
	}
	select {
	case l.snapshots <- snap:
	default:
	}
}
