package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"suraksha-jal/internal/auth"
	"suraksha-jal/internal/chat"
	"suraksha-jal/internal/config"
	"suraksha-jal/internal/dictation"
	"suraksha-jal/internal/flows"
	"suraksha-jal/internal/genai"
	"suraksha-jal/internal/geocode"
	"suraksha-jal/internal/i18n"
	"suraksha-jal/internal/kv"
	"suraksha-jal/internal/media"
	"suraksha-jal/internal/notify"
	"suraksha-jal/internal/platform/telegram"
	"suraksha-jal/internal/profile"
	"suraksha-jal/internal/registration"
	"suraksha-jal/internal/reports"
	"suraksha-jal/internal/speech"
)

type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  kv.Store

	provider *auth.Provider
	profiles *profile.Repository

	auth         *auth.Handler
	flows        *flows.Handler
	reports      *reports.Handler
	profile      *profile.Handler
	i18n         *i18n.Handler
	geocode      *geocode.Handler
	registration *registration.Handler
	dictation    *dictation.Handler
	chat         *chat.Handler
	notify       *notify.Handler
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	// 1. Infrastructure
	store, err := kv.NewByEngine(ctx, cfg.Store.Engine, cfg.Store.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Engine, err)
	}
	logger.Info("store ready", "engine", cfg.Store.Engine)

	var photos media.PhotoStore = media.InlineStore{}
	if cfg.Photos.Bucket != "" {
		s3Store, err := media.NewS3Store(ctx, media.S3Config{
			Bucket:        cfg.Photos.Bucket,
			Region:        cfg.Photos.Region,
			Endpoint:      cfg.Photos.Endpoint,
			PublicBaseURL: cfg.Photos.PublicBaseURL,
			Prefix:        cfg.Photos.Prefix,
		})
		if err != nil {
			return nil, err
		}
		photos = s3Store
	}

	// 2. Clients
	gen, err := genai.NewGeminiClient(genai.Config{
		BaseURL:     cfg.Gemini.BaseURL,
		APIKey:      cfg.Gemini.APIKey,
		Model:       cfg.Gemini.Model,
		Timeout:     cfg.Gemini.Timeout,
		Temperature: cfg.Gemini.Temperature,
	}, logger)
	if err != nil {
		return nil, err
	}
	flowSvc := flows.NewService(gen, logger)

	var transcriber dictation.Transcriber = dictation.FlowTranscriber{Flows: flowSvc}
	if cfg.Transcription.Engine == "whisper" {
		transcriber = speech.NewWhisperClient(cfg.Transcription.WhisperURL, logger)
	}

	// A typed nil client must not reach the reports service.
	var alerts reports.Alerter
	if cfg.Telegram.Token != "" {
		alerts = telegram.NewClient(cfg.Telegram.Token)
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN is not set, outbreak alerts are disabled")
	}

	// 3. Services
	provider, err := auth.NewProvider(store, auth.Config{
		Secret:      cfg.Auth.JWTSecret,
		TokenTTL:    cfg.Auth.TokenTTL,
		MaxFailures: cfg.Auth.MaxFailures,
		Lockout:     cfg.Auth.Lockout,
	}, logger)
	if err != nil {
		return nil, err
	}
	catalog, err := i18n.Load()
	if err != nil {
		return nil, err
	}
	profiles := profile.NewRepository(store, logger)
	notes := notify.NewRegistry(0, logger)

	reportSvc := reports.NewService(reports.NewRepository(store, logger), flowSvc, profiles, alerts, notes,
		reports.Config{AlertChatID: cfg.Telegram.AlertChatID, FontPaths: cfg.Reports.FontPaths}, logger)
	registrationSvc := registration.NewService(flowSvc, provider, profiles, photos, logger)
	chatSvc := chat.NewService(chat.NewMemoryRepository(), flowSvc, transcriber, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		provider: provider,
		profiles: profiles,

		auth:         auth.NewHandler(provider, profiles, logger),
		flows:        flows.NewHandler(flowSvc, notes, logger),
		reports:      reports.NewHandler(reportSvc),
		profile:      profile.NewHandler(profiles, catalog),
		i18n:         i18n.NewHandler(catalog),
		geocode:      geocode.NewHandler(geocode.NewClient(cfg.Geocode.BaseURL, cfg.Geocode.UserAgent), logger),
		registration: registration.NewHandler(registrationSvc),
		dictation:    dictation.NewHandler(transcriber, logger),
		chat:         chat.NewHandler(chatSvc),
		notify: notify.NewHandler(notes, func(r *http.Request) string {
			return auth.Subject(r.Context())
		}),
	}, nil
}

func (a *app) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(os.Stdout))
	r.Use(middleware.Recoverer)
	r.Use(cors(a.cfg.Server.CORSOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		auth.RegisterRoutes(r, a.auth)
		i18n.RegisterRoutes(r, a.i18n)
		geocode.RegisterRoutes(r, a.geocode)
		registration.RegisterRoutes(r, a.registration)

		r.Group(func(r chi.Router) {
			r.Use(a.provider.Middleware)
			notify.RegisterRoutes(r, a.notify)
			flows.RegisterRoutes(r, a.flows)
			reports.RegisterRoutes(r, a.reports, a.profiles.RequireHealthWorker)
			profile.RegisterRoutes(r, a.profile)
			dictation.RegisterRoutes(r, a.dictation)
			chat.RegisterRoutes(r, a.chat)
		})
	})
	return r
}

// requestLogger is chi's request logger with the access_token query
// parameter redacted, since stream clients pass their session token there.
func requestLogger(out io.Writer) func(http.Handler) http.Handler {
	return middleware.RequestLogger(redactingFormatter{
		LogFormatter: &middleware.DefaultLogFormatter{Logger: log.New(out, "", log.LstdFlags), NoColor: true},
	})
}

type redactingFormatter struct {
	middleware.LogFormatter
}

func (f redactingFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	q := r.URL.Query()
	if !q.Has("access_token") {
		return f.LogFormatter.NewLogEntry(r)
	}
	q.Set("access_token", "REDACTED")
	u := *r.URL
	u.RawQuery = q.Encode()
	logged := r.WithContext(r.Context())
	logged.URL = &u
	logged.RequestURI = u.RequestURI()
	return f.LogFormatter.NewLogEntry(logged)
}

// cors answers preflight requests itself. "*" allows any origin.
func cors(origins []string) func(http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, PATCH, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
			if r.Method == http.MethodOptions {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *app) Close() error {
	if c, ok := a.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
