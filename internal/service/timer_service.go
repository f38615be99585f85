package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pomodoro/bot/internal/clock"
	"pomodoro/bot/internal/logging"
	"pomodoro/bot/internal/model"
	"pomodoro/bot/internal/repository"
	"pomodoro/bot/internal/scheduler"
)

var (
	ErrInvalidDuration = errors.New("work and break minutes must be between 1 and 1440")
	ErrStopped         = errors.New("timer service stopped")
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseWorking
	PhaseOnBreak
	PhaseAwaitingDecision
)

func (p Phase) String() string {
	switch p {
	case PhaseWorking:
		return "working"
	case PhaseOnBreak:
		return "on_break"
	case PhaseAwaitingDecision:
		return "awaiting_decision"
	default:
		return "idle"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

type UserStore interface {
	FindByPlatformID(ctx context.Context, platformID int64) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	BackfillNames(ctx context.Context, user *model.User) error
}

type SessionStore interface {
	Create(ctx context.Context, session *model.PomodoroSession) error
	GetByID(ctx context.Context, sessionID string) (*model.PomodoroSession, error)
	IncrementCompleted(ctx context.Context, sessionID string, updatedAt time.Time) error
	SumCompletedForDay(ctx context.Context, userID string, day time.Time) (int, error)
}

type TimerOptions struct {
	Clock               clock.Clock
	Logger              *slog.Logger
	Location            *time.Location
	DefaultWorkMinutes  int
	DefaultBreakMinutes int
}

// TimerSnapshot is a read-only view of one user's timer.
type TimerSnapshot struct {
	UserID       int64      `json:"userId"`
	ChatID       int64      `json:"chatId"`
	Phase        Phase      `json:"phase"`
	SessionID    string     `json:"sessionId,omitempty"`
	WorkMinutes  int        `json:"workMinutes"`
	BreakMinutes int        `json:"breakMinutes"`
	Since        time.Time  `json:"since"`
	DueAt        *time.Time `json:"dueAt,omitempty"`
}

// TimerService owns the work/break cycle of every user.
//
// mu guards only the table. Each userTimer has its own lock, held for a whole
// transition including persistence and notification, so one user's slow store
// or messenger never blocks another user. When both are needed the userTimer
// lock is taken first. Every scheduled callback carries the
// generation it was created under and does nothing once the generation moved on.
type TimerService struct {
	users    UserStore
	sessions SessionStore
	notifier Notifier
	sched    scheduler.Scheduler
	clock    clock.Clock
	logger   *slog.Logger
	location *time.Location

	defaultWork  int
	defaultBreak int

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	timers  map[int64]*userTimer
	stopped bool
}

type userTimer struct {
	mu           sync.Mutex
	phase        Phase
	generation   uint64
	handle       scheduler.Handle
	sessionID    string
	workMinutes  int
	breakMinutes int
	chatID       int64
	since        time.Time
	breakMessage MessageRef
}

func NewTimerService(
	users UserStore,
	sessions SessionStore,
	notifier Notifier,
	sched scheduler.Scheduler,
	opts TimerOptions,
) *TimerService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if sched == nil {
		sched = scheduler.Runtime{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.DefaultWorkMinutes <= 0 {
		opts.DefaultWorkMinutes = model.DefaultWorkMinutes
	}
	if opts.DefaultBreakMinutes <= 0 {
		opts.DefaultBreakMinutes = model.DefaultBreakMinutes
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &TimerService{
		users:        users,
		sessions:     sessions,
		notifier:     notifier,
		sched:        sched,
		clock:        opts.Clock,
		logger:       opts.Logger.With("component", "timer"),
		location:     opts.Location,
		defaultWork:  opts.DefaultWorkMinutes,
		defaultBreak: opts.DefaultBreakMinutes,
		ctx:          ctx,
		cancel:       cancel,
		timers:       make(map[int64]*userTimer),
	}
}

// Defaults reports the durations used when a caller supplies none.
func (s *TimerService) Defaults() (workMinutes, breakMinutes int) {
	return s.defaultWork, s.defaultBreak
}

// StartTimer begins a new session for p and returns once the work wait is
// scheduled. Any running timer of p is cancelled without applying its effects.
func (s *TimerService) StartTimer(ctx context.Context, p model.Participant, workMinutes, breakMinutes int) (*model.PomodoroSession, error) {
	if !validMinutes(workMinutes) || !validMinutes(breakMinutes) {
		return nil, ErrInvalidDuration
	}

	t, err := s.lockTimer(p.PlatformID)
	if err != nil {
		return nil, err
	}
	defer t.mu.Unlock()

	if s.isStopped() {
		return nil, ErrStopped
	}
	s.resetLocked(t)
	t.chatID = p.ChatID

	user, err := s.ensureUser(ctx, p)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	session := &model.PomodoroSession{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		WorkMinutes:  workMinutes,
		BreakMinutes: breakMinutes,
		StartedAt:    now,
		Completed:    0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("start timer: %w", err)
	}

	t.phase = PhaseWorking
	t.sessionID = session.ID
	t.workMinutes = workMinutes
	t.breakMinutes = breakMinutes
	t.since = now
	gen := t.generation
	userID := p.PlatformID
	t.handle = s.sched.AfterFunc(minutes(workMinutes), func() {
		s.runExpiry(userID, gen, PhaseWorking, s.expireWork)
	})

	s.logger.Debug("work started", "user_id", userID, "session_id", session.ID, "work_minutes", workMinutes, "break_minutes", breakMinutes)
	s.notify(ctx, t, Notice{Kind: NoticeWorkStarted, UserID: userID})
	return session, nil
}

// SkipBreak ends a running break immediately. It reports false and does
// nothing unless the user is on a break.
func (s *TimerService) SkipBreak(ctx context.Context, userID int64) bool {
	t := s.lookup(userID)
	if t == nil {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.phase != PhaseOnBreak {
		return false
	}
	if t.handle != nil {
		t.handle.Cancel()
	}
	_ = s.expireBreak(ctx, userID, t)
	return true
}

// NextRound starts another session with the durations of sessionID, or the
// defaults when that session cannot be found.
func (s *TimerService) NextRound(ctx context.Context, p model.Participant, sessionID string) (*model.PomodoroSession, error) {
	workMinutes, breakMinutes := s.defaultWork, s.defaultBreak
	if sessionID != "" {
		previous, err := s.sessions.GetByID(ctx, sessionID)
		switch {
		case err == nil:
			workMinutes, breakMinutes = previous.WorkMinutes, previous.BreakMinutes
		case errors.Is(err, repository.ErrNotFound):
			s.logger.Warn("next round for unknown session, using defaults", "user_id", p.PlatformID, "session_id", sessionID)
		default:
			return nil, fmt.Errorf("look up previous session: %w", err)
		}
	}
	return s.StartTimer(ctx, p, workMinutes, breakMinutes)
}

// EndCycle closes the cycle after the user declines another round and drops
// the user from the table. It reports false while a work or break wait is
// still running.
func (s *TimerService) EndCycle(ctx context.Context, p model.Participant) (bool, error) {
	t, err := s.lockTimer(p.PlatformID)
	if err != nil {
		return false, err
	}
	defer t.mu.Unlock()

	if t.phase == PhaseWorking || t.phase == PhaseOnBreak {
		return false, nil
	}
	s.resetLocked(t)
	t.chatID = p.ChatID
	s.notify(ctx, t, Notice{Kind: NoticeCycleEnded, UserID: p.PlatformID})

	s.mu.Lock()
	delete(s.timers, p.PlatformID)
	s.mu.Unlock()
	return true, nil
}

// TodayCount sums the work phases completed by the user in sessions started
// on the current day of the reference timezone.
func (s *TimerService) TodayCount(ctx context.Context, userID int64) (int, error) {
	user, err := s.users.FindByPlatformID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("today count: %w", err)
	}
	return s.sessions.SumCompletedForDay(ctx, user.ID, s.clock.Now().In(s.location))
}

func (s *TimerService) Phase(userID int64) Phase {
	t := s.lookup(userID)
	if t == nil {
		return PhaseIdle
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// ActiveTimers lists every user that is not idle, ordered by user id.
func (s *TimerService) ActiveTimers() []TimerSnapshot {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.timers))
	entries := make(map[int64]*userTimer, len(s.timers))
	for id, t := range s.timers {
		ids = append(ids, id)
		entries[id] = t
	}
	s.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	snapshots := make([]TimerSnapshot, 0, len(ids))
	for _, id := range ids {
		t := entries[id]
		t.mu.Lock()
		if t.phase != PhaseIdle {
			snapshots = append(snapshots, t.snapshot(id))
		}
		t.mu.Unlock()
	}
	return snapshots
}

// Stop cancels every pending wait. Later calls to StartTimer fail with ErrStopped.
func (s *TimerService) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	timers := make([]*userTimer, 0, len(s.timers))
	for _, t := range s.timers {
		timers = append(timers, t)
	}
	s.mu.Unlock()

	for _, t := range timers {
		t.mu.Lock()
		s.resetLocked(t)
		t.mu.Unlock()
	}
	s.cancel()
}

// runExpiry is the body of every scheduled callback.
func (s *TimerService) runExpiry(
	userID int64,
	gen uint64,
	want Phase,
	effect func(ctx context.Context, userID int64, t *userTimer) error,
) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("timer callback panicked", "user_id", userID, "phase", want, "panic", r)
		}
	}()

	t := s.lookup(userID)
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.generation != gen || t.phase != want {
		return
	}
	if err := effect(s.ctx, userID, t); err != nil {
		s.logger.Error("phase transition failed", "user_id", userID, "phase", want, "session_id", t.sessionID, "error", err)
	}
}

// expireWork credits the finished work phase and starts the break. The break
// goes ahead even when the credit could not be stored; that error is returned.
func (s *TimerService) expireWork(ctx context.Context, userID int64, t *userTimer) error {
	var persistErr error
	if err := s.sessions.IncrementCompleted(ctx, t.sessionID, s.clock.Now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("session vanished before work phase ended", "user_id", userID, "session_id", t.sessionID)
		} else {
			persistErr = fmt.Errorf("increment session %s: %w", t.sessionID, err)
		}
	}

	t.generation++
	t.phase = PhaseOnBreak
	t.since = s.clock.Now()
	gen := t.generation
	t.handle = s.sched.AfterFunc(minutes(t.breakMinutes), func() {
		s.runExpiry(userID, gen, PhaseOnBreak, s.expireBreak)
	})

	t.breakMessage = s.notify(ctx, t, Notice{Kind: NoticeBreakStarted, UserID: userID})
	return persistErr
}

func (s *TimerService) expireBreak(ctx context.Context, userID int64, t *userTimer) error {
	t.generation++
	t.phase = PhaseAwaitingDecision
	t.handle = nil
	t.since = s.clock.Now()

	if !t.breakMessage.IsZero() {
		if err := s.notifier.Dismiss(ctx, t.breakMessage); err != nil {
			s.logger.Warn("remove skip action failed", "user_id", userID, "error", err)
		}
	}
	t.breakMessage = MessageRef{}

	s.notify(ctx, t, Notice{Kind: NoticeNextRound, UserID: userID})
	return nil
}

// notify fills the per-user fields of n and delivers it. Delivery errors are
// logged only; state changes already made stay in place.
func (s *TimerService) notify(ctx context.Context, t *userTimer, n Notice) MessageRef {
	n.ChatID = t.chatID
	n.SessionID = t.sessionID
	n.WorkMinutes = t.workMinutes
	n.BreakMinutes = t.breakMinutes

	ref, err := s.notifier.Notify(ctx, n)
	if err != nil {
		s.logger.Warn("notification failed", "user_id", n.UserID, "kind", n.Kind, "error", err)
		return MessageRef{}
	}
	return ref
}

func (s *TimerService) ensureUser(ctx context.Context, p model.Participant) (*model.User, error) {
	now := s.clock.Now()
	user, err := s.users.FindByPlatformID(ctx, p.PlatformID)
	if err == nil {
		if needsBackfill(user, p) {
			patch := *user
			patch.Username = p.Username
			patch.FirstName = p.FirstName
			patch.LastName = p.LastName
			patch.UpdatedAt = now
			if err := s.users.BackfillNames(ctx, &patch); err != nil {
				s.logger.Warn("backfill user names failed", "user_id", p.PlatformID, "error", err)
			}
		}
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find user: %w", err)
	}

	user = &model.User{
		ID:         uuid.NewString(),
		PlatformID: p.PlatformID,
		Username:   p.Username,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Timezone:   model.DefaultTimezone,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func needsBackfill(user *model.User, p model.Participant) bool {
	return (user.Username == "" && p.Username != "") ||
		(user.FirstName == "" && p.FirstName != "") ||
		(user.LastName == "" && p.LastName != "")
}

// resetLocked cancels any pending wait and returns t to idle.
func (s *TimerService) resetLocked(t *userTimer) {
	if t.handle != nil {
		t.handle.Cancel()
		t.handle = nil
	}
	t.generation++
	t.phase = PhaseIdle
	t.breakMessage = MessageRef{}
	t.since = s.clock.Now()
}

func (s *TimerService) timerFor(userID int64) (*userTimer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, ErrStopped
	}
	t, ok := s.timers[userID]
	if !ok {
		t = &userTimer{}
		s.timers[userID] = t
	}
	return t, nil
}

// lockTimer returns the user's entry with its lock held. An entry that EndCycle
// removed while the caller waited for the lock is skipped and a fresh one used.
func (s *TimerService) lockTimer(userID int64) (*userTimer, error) {
	for {
		t, err := s.timerFor(userID)
		if err != nil {
			return nil, err
		}
		t.mu.Lock()
		s.mu.Lock()
		current := s.timers[userID] == t
		s.mu.Unlock()
		if current {
			return t, nil
		}
		t.mu.Unlock()
	}
}

func (s *TimerService) lookup(userID int64) *userTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[userID]
}

func (s *TimerService) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (t *userTimer) snapshot(userID int64) TimerSnapshot {
	snap := TimerSnapshot{
		UserID:       userID,
		ChatID:       t.chatID,
		Phase:        t.phase,
		SessionID:    t.sessionID,
		WorkMinutes:  t.workMinutes,
		BreakMinutes: t.breakMinutes,
		Since:        t.since,
	}
	switch t.phase {
	case PhaseWorking:
		due := t.since.Add(minutes(t.workMinutes))
		snap.DueAt = &due
	case PhaseOnBreak:
		due := t.since.Add(minutes(t.breakMinutes))
		snap.DueAt = &due
	}
	return snap
}

func validMinutes(n int) bool {
	return n > 0 && n <= model.MaxMinutes
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
