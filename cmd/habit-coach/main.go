package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/xaenox/habit-coach/internal/analytics"
	"github.com/xaenox/habit-coach/internal/bot"
	"github.com/xaenox/habit-coach/internal/coach"
	"github.com/xaenox/habit-coach/internal/models"
	"github.com/xaenox/habit-coach/internal/storage"
	"github.com/xaenox/habit-coach/internal/tracker"
	"github.com/xaenox/habit-coach/pkg/config"
)

var CLI struct {
	Config string `help:"Path to the YAML config file. Environment variables override it." type:"path" default:"config.yaml"`

	Serve   ServeCmd   `cmd:"" help:"Run the Telegram habit coach." default:"1"`
	Summary SummaryCmd `cmd:"" help:"Print a user's habit summaries and today's stats."`
	Migrate MigrateCmd `cmd:"" help:"Apply the database schema and exit."`
}

type appContext struct {
	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer
}

func openStore(cfg config.DatabaseConfig, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Info("Using in-memory storage")
		return storage.NewMemoryStorage(), nil
	case config.DriverPostgres:
		logger.Info("Using PostgreSQL storage", zap.String("host", cfg.Host), zap.String("dbname", cfg.DBName))
		return storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			DBName:   cfg.DBName,
			SSLMode:  cfg.SSLMode,
		}, logger)
	case config.DriverSQLite:
		logger.Info("Using SQLite storage", zap.String("path", cfg.Path))
		return storage.NewSQLiteStorage(cfg.Path, logger)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

type ServeCmd struct{}

func (cmd *ServeCmd) Run(app *appContext) error {
	if err := app.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if app.cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram.token (or TELEGRAM_TOKEN) is required")
	}

	store, err := openStore(app.cfg.Database, app.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	llm := app.cfg.LLM
	model := coach.NewOpenAIModel(llm.APIKey, llm.BaseURL, llm.Model, app.logger)
	c := coach.New(store, model, coach.Config{
		Temperature: float32(llm.Temperature),
		MaxTokens:   llm.MaxTokens,
		Timeout:     llm.Timeout,
	}, app.logger)

	b, err := bot.New(app.cfg.Telegram.Token, tracker.New(store, app.logger), c, app.logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.logger.Info("Starting habit coach", zap.String("model", llm.Model), zap.String("base_url", llm.BaseURL))
	return b.Start(ctx)
}

type SummaryCmd struct {
	UserID int64 `help:"Telegram user id." required:"" name:"user-id"`
	JSON   bool  `help:"Print JSON instead of text." name:"json"`
}

func (cmd *SummaryCmd) Run(app *appContext) error {
	store, err := openStore(app.cfg.Database, app.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	tr := tracker.New(store, app.logger)
	summaries, err := tr.Summaries(ctx, cmd.UserID)
	if err != nil {
		return err
	}
	stats, err := tr.Dashboard(ctx, cmd.UserID)
	if err != nil {
		return err
	}

	if cmd.JSON {
		enc := json.NewEncoder(app.out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Stats  analytics.DashboardStats `json:"stats"`
			Habits []models.HabitSummary    `json:"habits"`
		}{stats, summaries})
	}

	fmt.Fprintf(app.out, "Today: %d/%d completed (%d%%), total streak %d, best streak %d\n",
		stats.CompletedToday, stats.TotalHabits, stats.TodayRate, stats.TotalStreak, stats.BestStreak)
	for i, s := range summaries {
		fmt.Fprintf(app.out, "%2d. %-30s streak %3d  rate %3d%%  (%d/%d days)\n",
			i+1, s.Habit.Title, s.CurrentStreak, s.CompletionRate, s.CompletedInWindow, s.WindowDays)
	}
	return nil
}

type MigrateCmd struct{}

func (cmd *MigrateCmd) Run(app *appContext) error {
	if app.cfg.Database.Driver == config.DriverMemory {
		return fmt.Errorf("nothing to migrate for the memory driver")
	}
	store, err := openStore(app.cfg.Database, app.logger)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	defer store.Close()

	app.logger.Info("Schema is up to date", zap.String("driver", app.cfg.Database.Driver))
	return nil
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("habit-coach"),
		kong.Description("Habit tracker with an AI coach on Telegram"),
		kong.UsageOnError(),
	)

	configPath := CLI.Config
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = ""
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := kctx.Run(&appContext{cfg: cfg, logger: logger, out: os.Stdout}); err != nil {
		logger.Error("Command failed", zap.String("command", kctx.Command()), zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}
