package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"inclusion-quiz-service/internal/app"
	"inclusion-quiz-service/internal/config"
	"inclusion-quiz-service/internal/domain"
	"inclusion-quiz-service/internal/grading"
	"inclusion-quiz-service/internal/infra/memory"
	pgstore "inclusion-quiz-service/internal/infra/postgres"
	redisstore "inclusion-quiz-service/internal/infra/redis"
	"inclusion-quiz-service/internal/logger"
	transport "inclusion-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.Setup(cfg.Log.Level, cfg.Log.Format)

	finalPort := cfg.Server.Port
	if portFlag != "" {
		finalPort = portFlag
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var (
		loader  memory.QuizLoader
		results app.ResultRepository
	)
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		loader = pgstore.NewQuizLoader(pool)

		db := openBun(cfg.Postgres.URL)
		defer db.Close()
		results = pgstore.NewResultStore(db)
	} else {
		loader, err = fileOrSampleLoader(cfg, log)
		if err != nil {
			return err
		}
	}
	if results == nil {
		if redisClient != nil {
			results = redisstore.NewResultQueue(redisClient, cfg.Redis.ResultsKey)
		} else {
			results = memory.NewResultStore()
		}
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	var attempts app.AttemptRepository
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL, log)
		attempts = redisstore.NewAttemptStore(redisClient, redisTTL, log)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		attempts = memory.NewAttemptStore()
	}

	var grader grading.Grader = grading.NewLocalGrader()
	if delay := config.TTLDuration(cfg.Quiz.GradingDelay, 0); delay > 0 {
		grader = grading.NewDelayedGrader(grader, delay)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	service := app.NewQuizService(attempts, quizRepo,
		app.WithServiceGrader(grader),
		app.WithResults(results, config.TTLDuration(cfg.Quiz.ResultTimeout, 5*time.Second)),
		app.WithMetrics(app.NewMetrics(registry)),
		app.WithLogger(log.With().Str("component", "quiz-service").Logger()),
	)

	server := &http.Server{
		Addr: ":" + finalPort,
		Handler: transport.NewRouter(service, transport.RouterConfig{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Gatherer:       registry,
			Logger:         log,
		}),
		ReadHeaderTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("starting quiz service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func fileOrSampleLoader(cfg config.Config, log zerolog.Logger) (memory.QuizLoader, error) {
	if cfg.Quiz.DefinitionsPath == "" {
		log.Warn().Msg("no postgres or definitions file configured, serving the built-in sample quiz")
		return memory.NewStaticQuizLoader(sampleDefinitions()), nil
	}
	loader, err := memory.LoadDefinitionsFile(cfg.Quiz.DefinitionsPath)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", cfg.Quiz.DefinitionsPath).Int("quizzes", len(loader.IDs())).Msg("quiz definitions loaded")
	return loader, nil
}

// sampleDefinitions is the fallback quiz when no store is configured.
func sampleDefinitions() map[string]domain.QuizDefinition {
	return map[string]domain.QuizDefinition{
		"inclusion-101": {
			ID:                  "inclusion-101",
			Title:               "Inclusion basics",
			TimeLimitSeconds:    600,
			PassingScorePercent: 70,
			Questions: []domain.Question{
				{ID: "q1", Type: domain.QuestionSingleChoice, Prompt: "Which phrase uses person-first language?", Options: []string{"Person with a disability", "Disabled person", "The handicapped"}, AnswerKey: []int{0}},
				{ID: "q2", Type: domain.QuestionTrueFalse, Prompt: "Unconscious bias only affects hiring decisions.", Options: []string{"True", "False"}, AnswerKey: []int{1}},
				{ID: "q3", Type: domain.QuestionMultiSelect, Prompt: "Which practices make meetings more inclusive?", Options: []string{"Sharing an agenda in advance", "Letting the same people speak first", "Offering captions", "Scheduling across time zones"}, AnswerKey: []int{0, 2, 3}},
				{ID: "q4", Type: domain.QuestionFreeText, Prompt: "Describe one change you could make to help a new colleague feel included.", MinWordCount: 20},
			},
		},
	}
}
