package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/coursesense/calendar"
	"github.com/hrygo/coursesense/config"
	"github.com/hrygo/coursesense/contextstore"
	"github.com/hrygo/coursesense/internal/profile"
	"github.com/hrygo/coursesense/internal/version"
	"github.com/hrygo/coursesense/line"
	"github.com/hrygo/coursesense/llm"
	"github.com/hrygo/coursesense/metrics"
	"github.com/hrygo/coursesense/nlu"
	"github.com/hrygo/coursesense/render"
	"github.com/hrygo/coursesense/server"
	"github.com/hrygo/coursesense/store"
	"github.com/hrygo/coursesense/store/db/sqlite"
	"github.com/hrygo/coursesense/task"
	"github.com/hrygo/coursesense/trace"
)

var rootCmd = &cobra.Command{
	Use:   "coursesense",
	Short: `A LINE assistant that manages family course schedules through natural Chinese conversation.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if !isRunningAsSystemdService() {
			// Best effort; a missing .env file is fine.
			_ = godotenv.Load()
		}
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:   viper.GetString("mode"),
			Addr:   viper.GetString("addr"),
			Port:   viper.GetInt("port"),
			Data:   viper.GetString("data"),
			Driver: viper.GetString("driver"),
			DSN:    viper.GetString("dsn"),
		}
		instanceProfile.FromEnv()
		instanceProfile.Version = version.GetCurrentVersion(instanceProfile.Mode)
		if err := instanceProfile.Validate(); err != nil {
			panic(err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		driver, err := sqlite.NewDB(instanceProfile.DSN)
		if err != nil {
			slog.Error("failed to open course database", "error", err)
			return
		}
		courses := store.New(driver)
		if err := courses.Migrate(ctx); err != nil {
			slog.Error("failed to migrate", "error", err)
			return
		}

		s, err := buildServer(ctx, instanceProfile, courses)
		if err != nil {
			slog.Error("failed to create server", "error", err)
			return
		}

		c := make(chan os.Signal, 1)
		signal.Notify(c, terminationSignals...)

		if err := s.Start(ctx); err != nil {
			slog.Error("failed to start server", "error", err)
			return
		}
		printGreetings(instanceProfile)

		go func() {
			<-c
			s.Shutdown(ctx)
			_ = courses.Close()
			cancel()
		}()

		<-ctx.Done()
	},
}

// buildServer wires the full pipeline behind the webhook.
func buildServer(ctx context.Context, instanceProfile *profile.Profile, courses *store.Store) (*server.Server, error) {
	cfg := config.MustNew()

	contexts := buildContextStore(instanceProfile)
	classifier, enhancer := buildLLM(ctx, instanceProfile)
	cal := buildCalendar(ctx)

	extractor := nlu.NewExtractor(cfg, enhancer, instanceProfile.Timezone)
	pipeline := nlu.NewPipeline(cfg, nlu.NewRuleMatcher(cfg.IntentRules()), extractor, classifier)
	dispatcher := task.NewDispatcher(courses, contexts, cfg, cal, instanceProfile.Timezone)

	var real line.MessagingClient
	if instanceProfile.ChannelAccessToken != "" {
		real = line.NewClient(instanceProfile.ChannelAccessToken)
	}

	return server.NewServer(server.Options{
		Profile:    instanceProfile,
		Config:     cfg,
		Courses:    courses,
		Contexts:   contexts,
		Pipeline:   pipeline,
		Extractor:  extractor,
		Dispatcher: dispatcher,
		Renderer:   render.New(cfg),
		Messaging:  line.NewSelector(real, line.NewMockClient(), cfg),
		Calendar:   cal,
		Metrics:    metrics.NewExporter(nil),
		Recorder:   trace.NewRecorder(),
	}), nil
}

// buildContextStore selects Redis when configured and falls back to the
// in-memory backend otherwise.
func buildContextStore(instanceProfile *profile.Profile) *contextstore.Store {
	if instanceProfile.RedisURL == "" {
		slog.Info("conversation context using in-memory backend")
		return contextstore.New(contextstore.NewMemoryBackend())
	}
	backend, err := contextstore.NewRedisBackend(instanceProfile.RedisURL)
	if err != nil {
		slog.Warn("invalid REDIS_URL, using in-memory context backend", "error", err)
		return contextstore.New(contextstore.NewMemoryBackend())
	}
	slog.Info("conversation context using redis backend")
	return contextstore.New(backend)
}

// buildLLM returns the intent classifier and slot enhancer, or nils when
// no API key is configured. The bot stays fully functional on rules alone.
func buildLLM(ctx context.Context, instanceProfile *profile.Profile) (nlu.IntentClassifier, nlu.SlotEnhancer) {
	if instanceProfile.LLMAPIKey == "" {
		slog.Info("LLM fallback disabled, no api key configured")
		return nil, nil
	}
	client, err := llm.New(&llm.Config{
		Provider: os.Getenv("LLM_PROVIDER"),
		Model:    instanceProfile.LLMModel,
		APIKey:   instanceProfile.LLMAPIKey,
		BaseURL:  instanceProfile.LLMBaseURL,
	})
	if err != nil {
		slog.Warn("failed to initialize LLM client", "error", err)
		return nil, nil
	}
	slog.Info("LLM client initialized", "model", instanceProfile.LLMModel)
	go client.Warmup(ctx)
	return client, client
}

// buildCalendar picks the calendar sync mode from the environment:
// service-account credentials win, then an OAuth2 refresh token, then the
// in-process mock.
func buildCalendar(ctx context.Context) calendar.Sync {
	calendarID := os.Getenv("GOOGLE_CALENDAR_ID")
	if path := os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"); path != "" {
		credentials, err := os.ReadFile(path)
		if err == nil {
			sync, err := calendar.NewServiceSync(ctx, credentials, calendarID)
			if err == nil {
				slog.Info("calendar sync enabled", "mode", calendar.ModeService)
				return sync
			}
			slog.Warn("service account calendar init failed", "error", err)
		} else {
			slog.Warn("cannot read service account file", "error", err)
		}
	}
	if refreshToken := os.Getenv("GOOGLE_REFRESH_TOKEN"); refreshToken != "" {
		sync := calendar.NewOAuth2Sync(ctx,
			os.Getenv("GOOGLE_CLIENT_ID"),
			os.Getenv("GOOGLE_CLIENT_SECRET"),
			refreshToken,
			calendarID)
		slog.Info("calendar sync enabled", "mode", calendar.ModeOAuth2)
		return sync
	}
	slog.Info("calendar sync using mock recorder")
	return calendar.NewMockSync()
}

func init() {
	viper.SetDefault("mode", "development")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 3000)

	rootCmd.PersistentFlags().String("mode", "development", `mode of server, can be "production" or "development" or "test"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 3000, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver")
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka. DSN)")

	for _, flag := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("coursesense")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func printGreetings(instanceProfile *profile.Profile) {
	fmt.Printf("CourseSense %s started successfully!\n", instanceProfile.Version)
	fmt.Printf("Mode: %s\n", instanceProfile.Mode)
	fmt.Printf("Database: %s\n", instanceProfile.DSN)
	if len(instanceProfile.Addr) == 0 {
		fmt.Printf("Webhook listening on port %d\n", instanceProfile.Port)
	} else {
		fmt.Printf("Webhook listening on %s:%d\n", instanceProfile.Addr, instanceProfile.Port)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
