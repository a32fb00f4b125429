package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"inclusion-quiz-service/internal/domain"
	"inclusion-quiz-service/internal/grading"
)

// Session is one learner's attempt at a quiz.
//
// User commands and timer ticks are serialized through mu, so the two never
// interleave. Commands that are not allowed in the current phase return false
// and leave the session untouched; malformed answers return an error.
type Session struct {
	id        string
	learnerID string
	def       domain.QuizDefinition
	grader    grading.Grader
	newTicker TickerFactory
	log       zerolog.Logger
	onGraded  func(*Session, domain.Result)
	onFailed  func(*Session, error)

	mu          sync.Mutex
	ctx         context.Context
	phase       domain.Phase
	current     int
	answers     []domain.Answer
	flagged     map[int]struct{}
	remaining   int
	confirming  bool
	forced      bool
	inFlight    bool
	gradeErr    error
	settled     chan struct{}
	result      *domain.Result
	closed      bool
	stopTimer   func()
	subscribers map[chan View]struct{}
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

func WithGrader(g grading.Grader) SessionOption {
	return func(s *Session) { s.grader = g }
}

// WithTicker replaces the one-second countdown ticker, mostly for tests.
func WithTicker(f TickerFactory) SessionOption {
	return func(s *Session) { s.newTicker = f }
}

func WithLearner(learnerID string) SessionOption {
	return func(s *Session) { s.learnerID = learnerID }
}

func WithSessionLogger(log zerolog.Logger) SessionOption {
	return func(s *Session) { s.log = log }
}

// WithGradedHook runs after the session reaches the graded phase.
func WithGradedHook(fn func(*Session, domain.Result)) SessionOption {
	return func(s *Session) { s.onGraded = fn }
}

// WithGradingFailedHook runs after a grading attempt fails.
func WithGradingFailedHook(fn func(*Session, error)) SessionOption {
	return func(s *Session) { s.onFailed = fn }
}

// NewSession pre-fills one unanswered slot per question. The definition is
// expected to be valid already.
func NewSession(id string, def domain.QuizDefinition, opts ...SessionOption) *Session {
	s := &Session{
		id:          id,
		def:         def,
		grader:      grading.NewLocalGrader(),
		newTicker:   newRealTicker,
		log:         zerolog.Nop(),
		ctx:         context.Background(),
		phase:       domain.PhaseInProgress,
		answers:     make([]domain.Answer, len(def.Questions)),
		flagged:     make(map[int]struct{}),
		remaining:   def.TimeLimitSeconds,
		subscribers: make(map[chan View]struct{}),
	}
	for i := range s.answers {
		s.answers[i] = domain.Unanswered()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) ID() string        { return s.id }
func (s *Session) LearnerID() string { return s.learnerID }
func (s *Session) QuizID() string    { return s.def.ID }

// TimeLimit is the full countdown the attempt started with.
func (s *Session) TimeLimit() time.Duration {
	return time.Duration(s.def.TimeLimitSeconds) * time.Second
}

// Start begins the countdown. Grading triggered later runs on ctx with its
// cancellation detached, since grading cannot be cancelled midway.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.phase != domain.PhaseInProgress || s.stopTimer != nil {
		return
	}
	s.ctx = context.WithoutCancel(ctx)

	ticker := s.newTicker(time.Second)
	stop := make(chan struct{})
	var once sync.Once
	s.stopTimer = func() { once.Do(func() { close(stop) }) }
	go s.runTimer(ticker, stop)
}

func (s *Session) runTimer(t Ticker, stop <-chan struct{}) {
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			if !s.Tick() {
				return
			}
		}
	}
}

// Tick burns one second. When the clock reaches zero the attempt is submitted
// with whatever answers are committed, skipping confirmation.
func (s *Session) Tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.phase != domain.PhaseInProgress {
		return false
	}
	if s.remaining > 0 {
		s.remaining--
	}
	if s.remaining == 0 {
		s.log.Info().Str("attempt", s.id).Msg("time limit reached, submitting")
		s.beginGradingLocked(true)
		return false
	}
	s.broadcastLocked()
	return true
}

// Answer stores a value for question index, replacing any earlier answer.
func (s *Session) Answer(index int, a domain.Answer) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.answers) {
		return false, fmt.Errorf("%w: %d", domain.ErrQuestionIndex, index)
	}
	if err := grading.CheckShape(s.def.Questions[index], a); err != nil {
		return false, err
	}
	if !s.acceptingLocked() {
		return false, nil
	}
	s.answers[index] = a
	s.broadcastLocked()
	return true, nil
}

// ToggleFlag marks or unmarks a question for review.
func (s *Session) ToggleFlag(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.acceptingLocked() || !s.validIndex(index) {
		return false
	}
	if _, ok := s.flagged[index]; ok {
		delete(s.flagged, index)
	} else {
		s.flagged[index] = struct{}{}
	}
	s.broadcastLocked()
	return true
}

// GoTo jumps to any question; there is no sequential restriction.
func (s *Session) GoTo(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.acceptingLocked() || !s.validIndex(index) {
		return false
	}
	s.current = index
	s.broadcastLocked()
	return true
}

// Next advances one question, unless the current one still needs an answer.
func (s *Session) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.canGoNextLocked() {
		return false
	}
	s.current++
	s.broadcastLocked()
	return true
}

// Prev steps back one question.
func (s *Session) Prev() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.canGoPrevLocked() {
		return false
	}
	s.current--
	s.broadcastLocked()
	return true
}

func (s *Session) CanGoNext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canGoNextLocked()
}

func (s *Session) CanGoPrev() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canGoPrevLocked()
}

// CanJumpTo is true for every valid index while the quiz accepts navigation;
// it backs the question map.
func (s *Session) CanJumpTo(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acceptingLocked() && s.validIndex(index)
}

// IsLastQuestion is where the view swaps Next for Submit.
func (s *Session) IsLastQuestion() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current == len(s.answers)-1
}

// RequestSubmit opens the confirmation step.
func (s *Session) RequestSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.acceptingLocked() {
		return false
	}
	s.confirming = true
	s.broadcastLocked()
	return true
}

// CancelSubmit closes the confirmation step and returns to the quiz.
func (s *Session) CancelSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.phase != domain.PhaseInProgress || !s.confirming {
		return false
	}
	s.confirming = false
	s.broadcastLocked()
	return true
}

// ConfirmSubmit moves the attempt to submitting and starts grading.
func (s *Session) ConfirmSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.phase != domain.PhaseInProgress || !s.confirming {
		return false
	}
	s.beginGradingLocked(false)
	return true
}

// RetrySubmit restarts grading after a failed attempt. It is rejected while a
// grading attempt is still outstanding.
func (s *Session) RetrySubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.phase != domain.PhaseSubmitting || s.inFlight || s.gradeErr == nil {
		return false
	}
	s.launchGradingLocked()
	return true
}

// Exit discards an in-progress attempt. No result is produced.
func (s *Session) Exit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.phase != domain.PhaseInProgress {
		return false
	}
	s.confirming = false
	s.stopTimerLocked()
	s.closeLocked()
	return true
}

// Acknowledge ends a graded session once its result has been seen.
func (s *Session) Acknowledge() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.phase != domain.PhaseGraded {
		return false
	}
	s.closeLocked()
	return true
}

// Wait blocks until the outstanding grading attempt settles.
func (s *Session) Wait(ctx context.Context) (domain.Result, error) {
	s.mu.Lock()
	if s.result != nil {
		res := s.result.Clone()
		s.mu.Unlock()
		return res, nil
	}
	settled := s.settled
	s.mu.Unlock()
	if settled == nil {
		return domain.Result{}, domain.ErrNotSubmitted
	}

	select {
	case <-settled:
	case <-ctx.Done():
		return domain.Result{}, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result != nil {
		return s.result.Clone(), nil
	}
	if s.gradeErr != nil {
		return domain.Result{}, fmt.Errorf("%w: %v", domain.ErrGradingFailed, s.gradeErr)
	}
	return domain.Result{}, domain.ErrNotSubmitted
}

func (s *Session) Phase() domain.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Closed reports whether the session was exited or acknowledged.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Result returns the graded result, if any.
func (s *Session) Result() (domain.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return domain.Result{}, false
	}
	return s.result.Clone(), true
}

// Answers returns a copy of every slot, one per question.
func (s *Session) Answers() []domain.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Answer(nil), s.answers...)
}

// Flagged returns the sorted flagged indices.
func (s *Session) Flagged() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flaggedLocked()
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Subscribe returns a channel of views pushed after every change and tick.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 8)

	s.mu.Lock()
	initial := s.viewLocked()
	if s.closed {
		s.mu.Unlock()
		ch <- initial
		close(ch)
		return ch, func() {}
	}
	// queued under mu so no broadcast can overtake the initial view
	ch <- initial
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) acceptingLocked() bool {
	return !s.closed && s.phase == domain.PhaseInProgress && !s.confirming
}

func (s *Session) validIndex(index int) bool {
	return index >= 0 && index < len(s.def.Questions)
}

func (s *Session) canGoNextLocked() bool {
	if !s.acceptingLocked() || s.current >= len(s.answers)-1 {
		return false
	}
	if s.def.AllowUnansweredNext {
		return true
	}
	return grading.IsAnswered(s.def.Questions[s.current], s.answers[s.current])
}

func (s *Session) canGoPrevLocked() bool {
	return s.acceptingLocked() && s.current > 0
}

func (s *Session) beginGradingLocked(forced bool) {
	s.confirming = false
	s.phase = domain.PhaseSubmitting
	s.forced = forced
	s.stopTimerLocked()
	s.launchGradingLocked()
}

func (s *Session) launchGradingLocked() {
	s.inFlight = true
	s.gradeErr = nil
	settled := make(chan struct{})
	s.settled = settled

	sub := grading.Submission{
		AttemptID:  s.id,
		LearnerID:  s.learnerID,
		Definition: s.def,
		Answers:    append([]domain.Answer(nil), s.answers...),
		Flagged:    s.flaggedLocked(),
		Forced:     s.forced,
	}
	s.broadcastLocked()
	go s.grade(s.ctx, sub, settled)
}

func (s *Session) grade(ctx context.Context, sub grading.Submission, settled chan struct{}) {
	res, err := s.grader.Grade(ctx, sub)

	s.mu.Lock()
	s.inFlight = false
	if err != nil {
		s.gradeErr = err
		s.broadcastLocked()
		s.mu.Unlock()
		close(settled)

		s.log.Error().Err(err).Str("attempt", s.id).Msg("grading failed, attempt stays submitting")
		if s.onFailed != nil {
			s.onFailed(s, err)
		}
		return
	}
	res = res.Clone()
	s.result = &res
	s.phase = domain.PhaseGraded
	s.broadcastLocked()
	s.mu.Unlock()
	close(settled)

	s.log.Info().Str("attempt", s.id).Str("verdict", string(res.Verdict)).Bool("forced", res.Forced).Msg("attempt graded")
	if s.onGraded != nil {
		s.onGraded(s, res.Clone())
	}
}

func (s *Session) stopTimerLocked() {
	if s.stopTimer != nil {
		s.stopTimer()
	}
}

func (s *Session) closeLocked() {
	s.closed = true
	s.broadcastLocked()
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

func (s *Session) flaggedLocked() []int {
	out := make([]int, 0, len(s.flagged))
	for i := range s.flagged {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func (s *Session) broadcastLocked() {
	view := s.viewLocked()
	for ch := range s.subscribers {
		select {
		case ch <- view:
		default:
			// drop the oldest pending view so slow readers never block commands
			select {
			case <-ch:
			default:
			}
			ch <- view
		}
	}
}
