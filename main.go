package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"golang.org/x/crypto/bcrypt"

	"meetup-backend/config"
	"meetup-backend/database"
	"meetup-backend/jobs"
	"meetup-backend/realtime"
	"meetup-backend/service"
	"meetup-backend/util"
	"meetup-backend/util/api"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		util.NewLogger("info", "json", os.Stderr).WithError(err).Fatal("Failed to load configuration")
	}
	log := util.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	log.WithField("database", cfg.DatabasePath).Info("Initializing application...")

	db, err := database.InitDB(cfg.DatabasePath)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	hub := realtime.NewHub(cfg.EventsBuffer, log)
	users := service.NewUserDirectory(db, bcrypt.DefaultCost)
	invites := service.NewInviteLedger(db)
	tokens := util.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)

	h := &api.Handler{
		Users:   users,
		Groups:  service.NewGroupManager(db, hub),
		Members: service.NewMembershipStore(db),
		Invites: invites,
		Meetups: service.NewMeetupEngine(db, hub),
		Tokens:  tokens,
		Hub:     hub,
		Log:     log,
		Origins: cfg.CORSAllowedOrigins,
	}

	sweeper, err := jobs.NewInviteSweeper(cfg.InviteSweep, invites, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to schedule invite sweeper")
	}
	sweeper.Start()

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           c.Handler(api.NewRouter(h, tokens, users)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("Server starting")
		serveErr <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Server failed")
		}
	case sig := <-stop:
		log.WithField("signal", sig.String()).Info("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	// Live streams never finish on their own; Shutdown waits for them only
	// until the deadline.
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("Graceful shutdown incomplete")
	}
	sweeper.Stop(ctx)
	log.Info("Server stopped")
}
