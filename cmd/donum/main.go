package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/core-coin/donum/internal/blockchain"
	"github.com/core-coin/donum/internal/campaign"
	"github.com/core-coin/donum/internal/config"
	"github.com/core-coin/donum/internal/dedup"
	"github.com/core-coin/donum/internal/delivery"
	"github.com/core-coin/donum/internal/donum"
	"github.com/core-coin/donum/internal/envelope"
	"github.com/core-coin/donum/internal/http_api"
	"github.com/core-coin/donum/internal/models"
	"github.com/core-coin/donum/internal/notificator"
	"github.com/core-coin/donum/internal/provisioner"
	"github.com/core-coin/donum/internal/quota"
	"github.com/core-coin/donum/internal/repository"
	"github.com/core-coin/donum/pkg/logger"
)

const sweepInterval = time.Hour

func main() {
	app := &cli.App{
		Name:  "donum",
		Usage: "Donum provisions wallets for users who ask for one in a mention",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "database-driver", Usage: "Database driver (postgres or sqlite)"},
			&cli.StringFlag{Name: "sqlite-path", Usage: "SQLite database file"},
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.StringFlag{Name: "blockchain-service-url", Aliases: []string{"b"}, Usage: "Blockchain service URL"},
			&cli.StringFlag{Name: "activation-amount", Aliases: []string{"a"}, Usage: "Amount sent to activate a new account"},
			&cli.StringFlag{Name: "claim-base-url", Usage: "Public base URL of the claim endpoint"},
			&cli.IntFlag{Name: "api-port", Usage: "HTTP API port"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Action: run,
		Commands: []*cli.Command{
			{
				Name:   "remind",
				Usage:  "Send pre-event reminders to all eligible wallets",
				Flags:  []cli.Flag{eventTimeFlag()},
				Action: remind,
			},
			{
				Name:   "confirm",
				Usage:  "Send post-event confirmations to all funded wallets",
				Flags:  []cli.Flag{eventTimeFlag()},
				Action: confirm,
			},
			{
				Name:   "sweep",
				Usage:  "Remove processed events and rate limit records past retention",
				Action: sweep,
			},
			{
				Name:   "stats",
				Usage:  "Print delivery statistics",
				Action: stats,
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func eventTimeFlag() cli.Flag {
	return &cli.TimestampFlag{Name: "event-time", Usage: "Event time (RFC3339), overrides EVENT_TIME", Layout: time.RFC3339, Timezone: time.UTC}
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}

	if c.IsSet("database-driver") {
		cfg.DatabaseDriver = c.String("database-driver")
	}
	if c.IsSet("sqlite-path") {
		cfg.SQLitePath = c.String("sqlite-path")
	}
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("blockchain-service-url") {
		cfg.BlockchainServiceURL = c.String("blockchain-service-url")
	}
	if c.IsSet("activation-amount") {
		amount, ok := new(big.Int).SetString(c.String("activation-amount"), 10)
		if ok {
			cfg.ActivationAmount = amount
		}
	}
	if c.IsSet("claim-base-url") {
		cfg.ClaimBaseURL = c.String("claim-base-url")
	}
	if c.IsSet("api-port") {
		cfg.APIPort = c.Int("api-port")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}
	if c.IsSet("event-time") {
		cfg.EventTime = c.Timestamp("event-time").UTC()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openDB(cfg *config.Config, log *logger.Logger) (*repository.DB, error) {
	var (
		db  *repository.DB
		err error
	)
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		db, err = repository.NewSQLiteDB(cfg.SQLitePath, log)
	default:
		db, err = repository.NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, log)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	return db, nil
}

// services is everything the daemon and the administrative commands share.
type services struct {
	cfg *config.Config
	log *logger.Logger

	db        *repository.DB
	ledger    *blockchain.Gocore
	telegram  *notificator.TelegramNotificator
	messenger *notificator.Notificator
	alerter   *notificator.EmailNotificator
	claims    *envelope.Service
	deferrer  *delivery.TimerDeferrer
	delivery  *delivery.Machine
	campaign  *campaign.Scheduler
}

func newServices(c *cli.Context) (*services, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if cfg.TelegramBotToken == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is required")
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %v", err)
	}

	s := &services{cfg: cfg, log: log}

	// Initialize database
	if s.db, err = openDB(cfg, log); err != nil {
		return nil, err
	}

	// Initialize blockchain service
	s.ledger = blockchain.NewGocore(cfg.BlockchainServiceURL, cfg.NetworkID, cfg.OperatorPrivateKey, cfg.ActivationAmount, log)
	if err := s.ledger.Run(); err != nil {
		s.close()
		return nil, fmt.Errorf("failed to start blockchain service: %v", err)
	}

	// Initialize notificators
	s.telegram, err = notificator.NewTelegramNotificator(log, cfg.TelegramBotToken, cfg.TelegramBotUsername)
	if err != nil {
		s.close()
		return nil, err
	}
	s.messenger = notificator.NewNotificator(s.telegram, cfg.MessagesPerMinute, cfg.MessagingTimeout, log)
	s.alerter = notificator.NewEmailNotificator(log, cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPSender, cfg.OperatorEmail)

	if s.claims, err = envelope.New(cfg.ClaimSecret()); err != nil {
		s.close()
		return nil, err
	}

	s.deferrer = delivery.NewTimerDeferrer()
	s.delivery = delivery.NewMachine(s.db, s.messenger, s.claims, s.deferrer, delivery.Config{
		ClaimBaseURL:       cfg.ClaimBaseURL,
		ClaimTokenTTL:      cfg.ClaimTokenTTL,
		SecondMessageDelay: cfg.SecondMessageDelay,
	}, log)

	s.campaign = campaign.NewScheduler(s.db, s.delivery, s.ledger, campaign.Config{
		EventTime:        cfg.EventTime,
		ReminderLeadDays: cfg.ReminderLeadDays,
		Cron:             cfg.CampaignCron,
		BatchSize:        cfg.CampaignBatchSize,
		MessageDelay:     cfg.CampaignMessageDelay,
		BatchPause:       cfg.CampaignBatchPause,
		FundingInterval:  cfg.FundingCheckInterval,
	}, log)

	return s, nil
}

func (s *services) close() {
	if s.deferrer != nil {
		s.deferrer.Stop()
	}
	if s.ledger != nil {
		if err := s.ledger.Close(); err != nil {
			s.log.Error("Failed to close blockchain client", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Error("Failed to close database", "error", err)
		}
	}
	_ = s.log.Sync()
}

func run(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newServices(c)
	if err != nil {
		return err
	}
	defer s.close()
	cfg, log := s.cfg, s.log

	// Processed-event cache is optional
	var cache dedup.Cache
	if cfg.RedisEnabled {
		redisCache, err := dedup.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			return err
		}
		defer redisCache.Close()
		cache = redisCache
	}

	limiter := quota.NewLimiter(s.db, cfg.RateLimitWindow)
	app := donum.NewDonum(
		s.db,
		s.telegram,
		s.messenger,
		s.alerter,
		dedup.NewDeduplicator(s.db, cache, cfg.FreshnessWindow, cfg.ProcessedEventRetention, log),
		limiter,
		provisioner.NewProvisioner(s.db, s.ledger, cfg.LedgerTimeout, log),
		s.delivery,
		s.claims,
		donum.Config{
			PollInterval:      cfg.PollInterval,
			LookbackWindow:    cfg.LookbackWindow,
			SweepInterval:     sweepInterval,
			MaxWalletsPerUser: cfg.MaxWalletsPerUser,
			MaxWalletsPerDay:  cfg.MaxWalletsPerDay,
		},
		log,
	)

	if err := s.campaign.Start(ctx); err != nil {
		return err
	}
	defer s.campaign.Stop()

	apiServer := http_api.NewHTTPServer(app, cfg.APIPort, cfg.Development, log)
	go apiServer.Start()

	go func() {
		<-ctx.Done()
		log.Info("Shutting down")
		app.Stop()
	}()

	// Only the daemon consumes bot updates
	s.telegram.Listen(ctx)

	// Start the application
	app.Start(ctx)

	app.Wait()
	if err := apiServer.Shutdown(); err != nil {
		log.Error("Failed to shut down HTTP server", "error", err)
	}
	return nil
}

func remind(c *cli.Context) error {
	return runCampaign(c, "pre_event", (*campaign.Scheduler).SendPreEventReminders)
}

func confirm(c *cli.Context) error {
	return runCampaign(c, "post_event", (*campaign.Scheduler).SendPostEventConfirmations)
}

func runCampaign(c *cli.Context, kind string, fn func(*campaign.Scheduler, context.Context) (campaign.Report, error)) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newServices(c)
	if err != nil {
		return err
	}
	defer s.close()

	if kind == "post_event" {
		if _, err := s.campaign.UpdateFunding(ctx); err != nil {
			s.log.Warn("Funding check failed", "error", err)
		}
	}
	report, err := fn(s.campaign, ctx)
	if err != nil {
		return fmt.Errorf("%s campaign failed after %d messages: %w", kind, report.Sent, err)
	}
	fmt.Printf("%s campaign: %d sent, %d failed\n", kind, report.Sent, report.Failed)
	return nil
}

// storeOnly opens just the database for commands that need nothing else.
func storeOnly(c *cli.Context) (*config.Config, *logger.Logger, *repository.DB, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %v", err)
	}
	db, err := openDB(cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, db, nil
}

func sweep(c *cli.Context) error {
	cfg, log, db, err := storeOnly(c)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := c.Context
	events, err := dedup.NewDeduplicator(db, nil, cfg.FreshnessWindow, cfg.ProcessedEventRetention, log).Sweep(ctx)
	if err != nil {
		return err
	}
	records, err := quota.NewLimiter(db, cfg.RateLimitWindow).Sweep(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d processed events and %d rate limit records\n", events, records)
	return nil
}

func stats(c *cli.Context) error {
	cfg, _, db, err := storeOnly(c)
	if err != nil {
		return err
	}
	defer db.Close()

	limiter := quota.NewLimiter(db, cfg.RateLimitWindow)
	st, err := db.DeliveryStats(c.Context, limiter.StartOfDay())
	if err != nil {
		return err
	}
	if st.RemainingToday, err = limiter.RemainingToday(c.Context, cfg.MaxWalletsPerDay); err != nil {
		return err
	}
	return printJSON(st)
}

func printJSON(st *models.DeliveryStats) error {
	out, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
