// Server runs the identity HTTP API: OTP issuance, registration, login,
// token refresh, and the user directory.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lm-identity/internal/audit"
	auditrepo "lm-identity/internal/audit/repository"
	"lm-identity/internal/config"
	"lm-identity/internal/db"
	"lm-identity/internal/devotp"
	healthhandler "lm-identity/internal/health/handler"
	"lm-identity/internal/identity/google"
	identityhandler "lm-identity/internal/identity/handler"
	identityservice "lm-identity/internal/identity/service"
	"lm-identity/internal/mail"
	"lm-identity/internal/organization"
	"lm-identity/internal/otp"
	otphandler "lm-identity/internal/otp/handler"
	otprepo "lm-identity/internal/otp/repository"
	"lm-identity/internal/refresh"
	refreshrepo "lm-identity/internal/refresh/repository"
	"lm-identity/internal/roles"
	"lm-identity/internal/security"
	"lm-identity/internal/server"
	"lm-identity/internal/server/middleware"
	"lm-identity/internal/telemetry"
	"lm-identity/internal/telemetry/otel"
	"lm-identity/internal/telemetry/producer"
	userhandler "lm-identity/internal/user/handler"
	userrepo "lm-identity/internal/user/repository"
	userservice "lm-identity/internal/user/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	privateKey, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("jwt private key: %v", err)
	}
	publicKey, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("jwt public key: %v", err)
	}
	tokens := security.NewTokenProvider(privateKey, publicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	hasher := security.NewHasher(cfg.BcryptCost)

	ctx := context.Background()
	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "lm-identity", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()

	kafkaProducer, err := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic)
	if err != nil {
		log.Fatalf("kafka: %v", err)
	}
	var emitter telemetry.EventEmitter = otel.NewEventEmitter(providers.LoggerProvider)
	if kafkaProducer != nil {
		defer kafkaProducer.Close()
		emitter = telemetry.Multi{emitter, kafkaProducer}
	}

	auditLogger := audit.NewLogger(auditrepo.NewPostgresRepository(database), middleware.ClientIP, emitter)

	users := userrepo.NewPostgresRepository(database)
	mailer := mail.NewOTPMailer(mail.NewClient(cfg.MailAPIKey, cfg.MailBaseURL, cfg.MailSender))

	var devStore devotp.Store
	var devHandler *devotp.Handler
	if cfg.OTPReturnToClient {
		log.Println("dev OTP mode enabled: codes retrievable via GET /dev/otp")
		store := devotp.NewMemoryStore()
		devStore = store
		devHandler = devotp.NewHandler(store)
	}
	engine := otp.NewEngine(otprepo.NewPostgresRepository(database), users, mailer, devStore)

	refreshManager := refresh.NewManager(refreshrepo.NewPostgresRepository(database), cfg.RefreshTTL(), cfg.RefreshRotateOnUse)
	rolesClient := roles.NewClient(cfg.RoleServiceURL)
	orgClient := organization.NewClient(cfg.OrganizationServiceURL)
	googleVerifier := google.NewVerifier(cfg.GoogleTokenInfoURL)

	authService := identityservice.NewAuthService(users, engine, hasher, tokens, refreshManager, rolesClient, googleVerifier, auditLogger)
	userService := userservice.NewService(users, rolesClient, orgClient)

	router := server.NewRouter(cfg, tokens, server.Handlers{
		Auth:   identityhandler.NewAuthHandler(authService, cfg.RefreshTTL()),
		OTP:    otphandler.NewOTPHandler(engine, auditLogger),
		Users:  userhandler.NewUserHandler(userService),
		Health: healthhandler.NewHealthHandler(database),
		DevOTP: devHandler,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("http server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down http server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}

	// Let in-flight async telemetry emits finish before tearing down providers.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel shutdown: %v", err)
	}
	log.Println("http server stopped")
}
