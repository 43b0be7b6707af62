package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	tele "gopkg.in/telebot.v3"

	"github.com/campus-events/event-aggregator/internal/adapters/config"
	"github.com/campus-events/event-aggregator/internal/adapters/database/memory"
	"github.com/campus-events/event-aggregator/internal/adapters/database/records"
	"github.com/campus-events/event-aggregator/internal/adapters/messaging"
	"github.com/campus-events/event-aggregator/internal/adapters/metrics"
	"github.com/campus-events/event-aggregator/internal/adapters/telegram"
	"github.com/campus-events/event-aggregator/internal/domain/service"
	"github.com/campus-events/event-aggregator/internal/domain/utils/validator"
	"github.com/campus-events/event-aggregator/pkg/logger"
	"github.com/campus-events/event-aggregator/pkg/logger/types"
	qr "github.com/campus-events/event-aggregator/pkg/qrcode"
	"github.com/campus-events/event-aggregator/pkg/smtp"
)

// App holds the wired services. A front-end calls them directly.
type App struct {
	Users         *service.UserService
	Events        *service.EventService
	Registrations *service.RegistrationService
	Reminders     *service.ReminderService
	Notifications *service.NotifyService
	Feedback      *service.FeedbackService

	Bus      *messaging.Bus
	Registry *prometheus.Registry
	Logger   *types.Logger
}

func New(cfg *config.Config) (*App, error) {
	appLogger, err := logger.Named("app")
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	userStorage := records.NewUserStorage(cfg.Store)
	eventStorage := records.NewEventStorage(cfg.Store)
	registrationStorage := records.NewRegistrationStorage(cfg.Store)
	notificationStorage := records.NewNotificationStorage(cfg.Store)
	feedbackStorage := records.NewFeedbackStorage(cfg.Store)

	var (
		locker   service.Locker
		sessions service.SessionStorage
	)
	if cfg.Redis != nil {
		locker = cfg.Redis.Locks
		sessions = cfg.Redis.Sessions
	} else {
		locker = memory.NewLocker()
		sessions = memory.NewSessionStorage(viper.GetDuration("service.redis.session-ttl"))
	}

	mailer, err := newMailer(cfg)
	if err != nil {
		return nil, err
	}

	bus, err := newBus(cfg, m)
	if err != nil {
		return nil, err
	}

	leads, err := parseLeads(viper.GetStringSlice("settings.reminder.leads"))
	if err != nil {
		return nil, err
	}

	validate := validator.New(validator.Options{
		EmailDomains: viper.GetStringSlice("settings.valid-email-domains"),
	})

	notifyLogger, err := logger.Named("notify")
	if err != nil {
		return nil, err
	}
	notifyService := service.NewNotifyService(notifyLogger, notificationStorage, mailer, m).
		WithGrace(viper.GetDuration("settings.notify.grace")).
		WithReminderMarker(registrationStorage)

	ticketLogger, err := logger.Named("ticket")
	if err != nil {
		return nil, err
	}
	qrCFG := qr.DefaultConfig()
	qrCFG.Size = viper.GetInt("settings.qr.size")
	qrCFG.LogoPath = viper.GetString("settings.qr.logo-path")
	ticketService := service.NewTicketService(ticketLogger, qrCFG, leads)

	registrationLogger, err := logger.Named("registration")
	if err != nil {
		return nil, err
	}
	registrationService := service.NewRegistrationService(
		registrationLogger,
		registrationStorage,
		userStorage,
		eventStorage,
		notifyService,
		locker,
		bus,
		m,
	).WithTickets(ticketService)

	reminderLogger, err := logger.Named("reminder")
	if err != nil {
		return nil, err
	}
	reminderService := service.NewReminderService(
		reminderLogger,
		eventStorage,
		registrationStorage,
		notifyService,
		notifyService,
		locker,
		m,
		service.ReminderOptions{
			Leads:    leads,
			Window:   viper.GetDuration("settings.reminder.window"),
			Interval: viper.GetDuration("settings.reminder.interval"),
		},
	)

	eventLogger, err := logger.Named("event")
	if err != nil {
		return nil, err
	}
	eventService := service.NewEventService(
		eventLogger,
		eventStorage,
		registrationStorage,
		notifyService,
		locker,
		bus,
		validate,
		leads,
	).WithPosters(viper.GetString("settings.posters-dir"))

	userLogger, err := logger.Named("user")
	if err != nil {
		return nil, err
	}
	userService := service.NewUserService(userLogger, userStorage, sessions, validate)

	feedbackLogger, err := logger.Named("feedback")
	if err != nil {
		return nil, err
	}
	feedbackService := service.NewFeedbackService(feedbackLogger, feedbackStorage, eventStorage, registrationStorage, validate)

	return &App{
		Users:         userService,
		Events:        eventService,
		Registrations: registrationService,
		Reminders:     reminderService,
		Notifications: notifyService,
		Feedback:      feedbackService,

		Bus:      bus,
		Registry: registry,
		Logger:   appLogger,
	}, nil
}

func newMailer(cfg *config.Config) (service.Mailer, error) {
	mailLogger, err := logger.Named("smtp")
	if err != nil {
		return nil, err
	}
	if cfg.SMTPDialer == nil {
		mailLogger.Warn("SMTP is disabled, notifications are only logged")
		return smtp.NewLogClient(mailLogger), nil
	}
	return smtp.NewClient(cfg.SMTPDialer, smtp.Options{
		From:    viper.GetString("service.smtp.email"),
		Domain:  viper.GetString("service.smtp.domain"),
		Timeout: viper.GetDuration("service.smtp.timeout"),
		Retries: uint64(viper.GetInt("service.smtp.retries")),
		Backoff: viper.GetDuration("service.smtp.backoff"),
	}, mailLogger), nil
}

func newBus(cfg *config.Config, m *metrics.Metrics) (*messaging.Bus, error) {
	busLogger, err := logger.Named("events")
	if err != nil {
		return nil, err
	}

	var bus *messaging.Bus
	switch transport := viper.GetString("settings.events.transport"); transport {
	case "redis":
		if cfg.Redis == nil {
			return nil, errors.New("redis event transport requires service.redis.enabled")
		}
		bus, err = messaging.NewRedisStream(cfg.Redis.Streams, viper.GetString("settings.events.consumer-group"), busLogger, m)
	case "gochannel", "":
		bus, err = messaging.NewGoChannel(busLogger, m)
	default:
		return nil, fmt.Errorf("unknown event transport %q", transport)
	}
	if err != nil {
		return nil, err
	}

	bus.AddAudit(busLogger)
	return bus, nil
}

func parseLeads(values []string) ([]time.Duration, error) {
	leads := make([]time.Duration, 0, len(values))
	for _, v := range values {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid reminder lead %q: %w", v, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("reminder lead %q must be positive", v)
		}
		leads = append(leads, d)
	}
	return leads, nil
}

// Start seeds the admin account and runs the reminder scheduler, the domain
// event router and the metrics server until ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	a.Logger.Info("Event aggregator starting")

	if viper.GetBool("settings.logging.log-to-channel") {
		a.setupLogChannel()
	}

	err := a.Users.SeedAdmin(ctx, service.AdminSeed{
		Name:     viper.GetString("settings.admin.name"),
		Email:    viper.GetString("settings.admin.email"),
		Password: viper.GetString("settings.admin.password"),
	})
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Reminders.Start(ctx)
		<-ctx.Done()
		a.Reminders.Stop()
		return nil
	})

	g.Go(func() error {
		return a.Bus.Run(ctx)
	})

	addr := viper.GetString("settings.metrics.addr")
	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(a.Registry))
		server := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			a.Logger.Infof("Serving metrics on %s", addr)
			if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
				return errServe
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	if errClose := a.Bus.Close(); errClose != nil {
		a.Logger.Errorf("failed to close event bus: %v", errClose)
	}
	a.Logger.Info("Event aggregator stopped")
	return err
}

func (a *App) setupLogChannel() {
	b, err := tele.NewBot(tele.Settings{Token: viper.GetString("bot.token")})
	if err != nil {
		a.Logger.Errorf("Failed to create log channel bot: %v", err)
		return
	}
	hookLogger, err := logger.Named("log-channel")
	if err != nil {
		a.Logger.Errorf("Failed to create log channel logger: %v", err)
		return
	}
	logHook, err := telegram.LogHook(
		b,
		viper.GetInt64("settings.logging.channel-id"),
		zapcore.Level(viper.GetInt("settings.logging.channel-log-level")),
		hookLogger,
	)
	if err != nil {
		a.Logger.Errorf("Failed to create log channel hook: %v", err)
		return
	}
	logger.SetLogHook(logHook)
}
