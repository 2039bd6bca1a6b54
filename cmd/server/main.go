package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DavidGamba/go-getoptions"
	"github.com/anonto42/order-notify/backend/internal/dispatcher"
	"github.com/anonto42/order-notify/backend/internal/messaging"
	"github.com/anonto42/order-notify/backend/internal/repositories"
	"github.com/anonto42/order-notify/backend/internal/router"
	"github.com/anonto42/order-notify/backend/internal/trigger"
	"github.com/anonto42/order-notify/backend/pkg/config"
	"github.com/anonto42/order-notify/backend/pkg/firebase"
	"github.com/anonto42/order-notify/backend/validators"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// commandLineOptionValues represents the values of the command-line options that were passed on the command line when
// this service was invoked.
type commandLineOptionValues struct {
	EnvFile string
	Mode    string
}

func parseCommandLine() *commandLineOptionValues {
	optionValues := &commandLineOptionValues{}
	opt := getoptions.New()

	// Define the command-line options.
	opt.Bool("help", false, opt.Alias("h", "?"))
	opt.StringVar(&optionValues.EnvFile, "env-file", "",
		opt.Alias("e"),
		opt.Description("the path to a .env file to load before reading the environment"))
	opt.StringVar(&optionValues.Mode, "mode", "",
		opt.Alias("m"),
		opt.Description("how record creations reach the service: http or watch (overrides TRIGGER_MODE)"))

	// Parse the command line, handling requests for help and usage errors.
	_, err := opt.Parse(os.Args[1:])
	if opt.Called("help") {
		fmt.Fprint(os.Stderr, opt.Help())
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n\n", err)
		fmt.Fprint(os.Stderr, opt.Help(getoptions.HelpSynopsis))
		os.Exit(1)
	}

	return optionValues
}

func main() {
	optionValues := parseCommandLine()

	// Load configuration
	cfg, err := config.Load(config.LoadOptions{EnvFile: optionValues.EnvFile, Mode: optionValues.Mode})
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	config.SetupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connections
	db, err := config.InitDB(cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize databases: %v", err)
	}
	defer db.CloseDB()

	// Initialize Firebase
	firebaseApp, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath, cfg.RecordBackend == config.BackendFirestore)
	if err != nil {
		logrus.Fatalf("Failed to initialize Firebase: %v", err)
	}
	defer firebaseApp.Close()

	// Wire the dispatcher
	dispatcherOpts := []dispatcher.Option{dispatcher.WithDuplicateGuard(cfg.DuplicateGuard)}
	var deliveryLogRepo repositories.DeliveryLogRepository
	if db.Postgres != nil {
		deliveryLogRepo = repositories.NewPostgresDeliveryLogRepository(db.Postgres)
		dispatcherOpts = append(dispatcherOpts, dispatcher.WithDeliveryLog(deliveryLogRepo))
	}
	notificationDispatcher := dispatcher.New(
		messaging.NewFCMSender(firebaseApp.MessagingClient, cfg.FCMDryRun),
		newRecordStore(cfg, firebaseApp, db),
		dispatcherOpts...,
	)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Validator = validators.NewValidator()
	router.SetupMiddleware(e)

	routes := router.Routes{}
	if cfg.TriggerMode == config.ModeHTTP {
		routes.Dispatcher = notificationDispatcher
		routes.TriggerSecret = cfg.TriggerJWTSecret
	}
	if deliveryLogRepo != nil {
		routes.DeliveryLog = deliveryLogRepo
		routes.AdminAuth = firebaseApp.AuthClient
	}
	router.SetupRoutes(e, routes)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	if cfg.TriggerMode == config.ModeWatch {
		watcher := newWatcher(cfg, firebaseApp, db, notificationDispatcher)
		g.Go(func() error {
			if err := watcher.Run(gctx); err != nil {
				return err
			}
			if gctx.Err() == nil {
				return errors.New("watcher stopped unexpectedly")
			}
			return nil
		})
	}

	logrus.WithFields(logrus.Fields{
		"port":    cfg.Port,
		"mode":    cfg.TriggerMode,
		"backend": cfg.RecordBackend,
	}).Info("Starting notification dispatcher")
	if err := g.Wait(); err != nil {
		logrus.WithError(err).Error("Service stopped")
		os.Exit(1)
	}
}

func newRecordStore(cfg *config.Config, app *firebase.App, db *config.DB) dispatcher.RecordStore {
	if cfg.RecordBackend == config.BackendMongo {
		return repositories.NewMongoRecordRepository(db.Mongo.Database(cfg.MongoDatabase), cfg.NotificationsCollection)
	}
	return repositories.NewFirestoreRecordRepository(app.FirestoreClient, cfg.NotificationsCollection)
}

func newWatcher(cfg *config.Config, app *firebase.App, db *config.DB, h trigger.Handler) trigger.Watcher {
	if cfg.RecordBackend == config.BackendMongo {
		return trigger.NewMongoWatcher(db.Mongo.Database(cfg.MongoDatabase), cfg.NotificationsCollection, h)
	}
	return trigger.NewFirestoreWatcher(app.FirestoreClient, cfg.NotificationsCollection, h, cfg.WatchBackfill)
}
