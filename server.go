package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"attendserver/api"
	"attendserver/attendance"
	"attendserver/attendauth"
	"attendserver/capture"
	log "attendserver/cloudlog"
	"attendserver/config"
	"attendserver/geocode"
	"attendserver/hub"
	"attendserver/photo"
	"attendserver/remotejob"
	"attendserver/roster"
	"attendserver/storage"

	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logProject := ""
	if cfg.Logging.CloudLogging {
		logProject = cfg.Firebase.ProjectID
	}
	log.Setup(ctx, logProject, cfg.Logging.LogName, cfg.Logging.Level)
	defer log.Close()

	store, err := storage.New(ctx, cfg.Firebase)
	if err != nil {
		log.Fatalf("Failed to set up storage: %v", err)
	}
	defer store.Close()

	identity, err := attendauth.NewFirebaseIdentity(ctx, store.App(), cfg.Firebase.WebAPIKey)
	if err != nil {
		log.Fatalf("Failed to set up Firebase Auth: %v", err)
	}
	sessions := attendauth.NewSessions(identity, store, cfg.Attendance.SessionTTL)
	authenticator := attendauth.CurrentAuthenticator(store)

	flows := capture.NewRegistry(cfg.Attendance.CaptureTTL)
	locator := geocode.NewResolver(geocode.NewClient(cfg.Geocoder), cfg.Geocoder.Timeout)
	svc := attendance.NewService(store, sessions, locator, photo.NewNormalizer(cfg.Attendance.PhotoMaxDimension), flows, attendance.Options{
		Location:      cfg.Attendance.Location(),
		RetentionDays: cfg.Attendance.RetentionDays,
	})

	dashboards := hub.NewHub(svc, cfg.DashboardInterval)
	svc.AddNotifier(dashboards)

	var background []func()
	if publisher := newPublisher(ctx, cfg); publisher != nil {
		svc.AddNotifier(publisher)
		background = append(background, func() { publisher.Run(ctx, cfg.Events.OutboxInterval) })
		defer publisher.Close()
	}
	background = append(background,
		func() { dashboards.Run(ctx) },
		func() { flows.Run(ctx, cfg.Attendance.CaptureTTL/2) },
	)
	for _, run := range background {
		go run()
	}

	employees := roster.New(sessions, identity, store)
	server := api.New(cfg.Server, sessions, authenticator, svc, employees, dashboards)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Server shutdown did not complete")
		}
	}()

	log.WithFields(logrus.Fields{"addr": cfg.Server.Addr, "timezone": cfg.Attendance.Timezone}).Info("Starting server")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
	log.Println("Server stopped")
}

// newPublisher sets up event publication when a topic is configured. Without an outbox path
// failed events are only logged.
func newPublisher(ctx context.Context, cfg *config.Config) *remotejob.Publisher {
	if cfg.Events.Topic == "" {
		log.Println("No Pub/Sub topic configured, attendance events are not published")
		return nil
	}
	var outbox *remotejob.Outbox
	if cfg.Events.OutboxPath != "" {
		var err error
		outbox, err = remotejob.OpenOutbox(cfg.Events.OutboxPath)
		if err != nil {
			log.WithError(err).Warn("Failed to open outbox, continuing without it")
			outbox = nil
		}
	}
	publisher, err := remotejob.New(ctx, cfg.Firebase.ProjectID, cfg.Events.Topic, outbox)
	if err != nil {
		log.WithError(err).Warn("Failed to set up Pub/Sub, attendance events are not published")
		if outbox != nil {
			outbox.Close()
		}
		return nil
	}
	return publisher
}
