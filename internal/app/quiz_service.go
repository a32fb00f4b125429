package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"inclusion-quiz-service/internal/domain"
	"inclusion-quiz-service/internal/grading"
)

// AttemptRepository abstracts where live attempts are held (in-memory, Redis, etc).
type AttemptRepository interface {
	Put(session *Session)
	Get(attemptID string) (*Session, bool)
	// Delete reports whether the attempt was present.
	Delete(attemptID string) bool
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.QuizDefinition, error)
}

// ResultRepository persists graded results for the hosting application.
type ResultRepository interface {
	SaveResult(ctx context.Context, record domain.ResultRecord) error
}

const (
	defaultResultTimeout = 5 * time.Second
	releaseWaitLimit     = time.Minute
)

// QuizService contains the quiz-taking use cases.
type QuizService struct {
	attempts      AttemptRepository
	quizzes       QuizRepository
	grader        grading.Grader
	results       ResultRepository
	resultTimeout time.Duration
	metrics       *Metrics
	log           zerolog.Logger
	newID         func() string
	newTicker     TickerFactory
}

// ServiceOption customizes a QuizService.
type ServiceOption func(*QuizService)

// WithServiceGrader replaces the in-process grader.
func WithServiceGrader(g grading.Grader) ServiceOption {
	return func(s *QuizService) { s.grader = g }
}

// WithResults persists every graded result, bounding each save by timeout.
func WithResults(repo ResultRepository, timeout time.Duration) ServiceOption {
	return func(s *QuizService) {
		s.results = repo
		if timeout > 0 {
			s.resultTimeout = timeout
		}
	}
}

func WithMetrics(m *Metrics) ServiceOption {
	return func(s *QuizService) { s.metrics = m }
}

func WithLogger(log zerolog.Logger) ServiceOption {
	return func(s *QuizService) { s.log = log }
}

// WithIDGenerator is test-only for deterministic attempt IDs.
func WithIDGenerator(fn func() string) ServiceOption {
	return func(s *QuizService) { s.newID = fn }
}

// WithSessionTicker is test-only for driving session countdowns by hand.
func WithSessionTicker(f TickerFactory) ServiceOption {
	return func(s *QuizService) { s.newTicker = f }
}

func NewQuizService(attempts AttemptRepository, quizzes QuizRepository, opts ...ServiceOption) *QuizService {
	s := &QuizService{
		attempts:      attempts,
		quizzes:       quizzes,
		grader:        grading.NewLocalGrader(),
		resultTimeout: defaultResultTimeout,
		log:           zerolog.Nop(),
		newID:         uuid.NewString,
		newTicker:     newRealTicker,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartAttempt creates a fresh session for a learner and starts its countdown.
func (s *QuizService) StartAttempt(ctx context.Context, quizID, learnerID string) (*Session, error) {
	def, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateDefinition(def); err != nil {
		return nil, err
	}

	id := s.newID()
	session := NewSession(id, def,
		WithLearner(learnerID),
		WithGrader(grading.GraderFunc(s.gradeAndPersist)),
		WithTicker(s.newTicker),
		WithSessionLogger(s.log.With().Str("quiz", quizID).Str("learner", learnerID).Logger()),
		WithGradedHook(func(_ *Session, res domain.Result) { s.metrics.graded(res) }),
		WithGradingFailedHook(func(_ *Session, _ error) { s.metrics.gradingFailed() }),
	)
	s.attempts.Put(session)
	session.Start(ctx)
	s.metrics.attemptStarted()
	s.log.Info().Str("attempt", id).Str("quiz", quizID).Str("learner", learnerID).Msg("attempt started")
	return session, nil
}

// Attempt looks up a live attempt.
func (s *QuizService) Attempt(attemptID string) (*Session, error) {
	session, ok := s.attempts.Get(attemptID)
	if !ok {
		return nil, domain.ErrAttemptNotFound
	}
	return session, nil
}

// Exit discards an in-progress attempt. It reports false when the attempt is
// already submitting or graded.
func (s *QuizService) Exit(attemptID string) (bool, error) {
	session, err := s.Attempt(attemptID)
	if err != nil {
		return false, err
	}
	if !session.Exit() {
		return false, nil
	}
	s.drop(attemptID)
	s.log.Info().Str("attempt", attemptID).Msg("attempt exited without submission")
	return true, nil
}

// Acknowledge destroys a graded attempt once its result has been shown.
func (s *QuizService) Acknowledge(attemptID string) (bool, error) {
	session, err := s.Attempt(attemptID)
	if err != nil {
		return false, err
	}
	if !session.Acknowledge() {
		return false, nil
	}
	s.drop(attemptID)
	return true, nil
}

// Release is called when the learner's connection goes away. In-progress
// attempts are discarded; submitting attempts are dropped once grading
// settles, so their results are still persisted.
func (s *QuizService) Release(attemptID string) {
	session, ok := s.attempts.Get(attemptID)
	if !ok {
		return
	}
	switch session.Phase() {
	case domain.PhaseInProgress:
		if session.Exit() {
			s.drop(attemptID)
			s.log.Info().Str("attempt", attemptID).Msg("connection closed, attempt discarded")
			return
		}
		// lost a race with submission; fall through to waiting on grading
		s.releaseAfterGrading(session)
	case domain.PhaseSubmitting:
		s.releaseAfterGrading(session)
	case domain.PhaseGraded:
		session.Acknowledge()
		s.drop(attemptID)
	}
}

func (s *QuizService) releaseAfterGrading(session *Session) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseWaitLimit)
		defer cancel()
		if _, err := session.Wait(ctx); err != nil {
			s.log.Warn().Err(err).Str("attempt", session.ID()).Msg("dropping released attempt without a result")
		}
		session.Acknowledge()
		s.drop(session.ID())
	}()
}

func (s *QuizService) drop(attemptID string) {
	if s.attempts.Delete(attemptID) {
		s.metrics.attemptReleased()
	}
}

// gradeAndPersist is the session's grading step: grade, then hand the result
// to the result repository. Any failure keeps the attempt submitting.
func (s *QuizService) gradeAndPersist(ctx context.Context, sub grading.Submission) (domain.Result, error) {
	res, err := s.grader.Grade(ctx, sub)
	if err != nil {
		return domain.Result{}, err
	}
	if s.results == nil {
		return res, nil
	}

	saveCtx, cancel := context.WithTimeout(ctx, s.resultTimeout)
	defer cancel()
	record := domain.ResultRecord{AttemptID: sub.AttemptID, LearnerID: sub.LearnerID, Result: res}
	if err := s.results.SaveResult(saveCtx, record); err != nil {
		return domain.Result{}, fmt.Errorf("persist result: %w", err)
	}
	return res, nil
}
