package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loqalabs/loqa-translate/internal/bus"
	"github.com/loqalabs/loqa-translate/internal/client"
	"github.com/loqalabs/loqa-translate/internal/config"
	"github.com/loqalabs/loqa-translate/internal/convlog"
	"github.com/loqalabs/loqa-translate/internal/natsserver"
	"github.com/loqalabs/loqa-translate/internal/recognition"
	"github.com/loqalabs/loqa-translate/internal/session"
	"github.com/loqalabs/loqa-translate/internal/translation"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	telemetry   *telemetry
	ready       atomic.Bool
	started     chan struct{}

	embedded    *natsserver.EmbeddedServer
	bus         *bus.Client
	store       convlog.Store
	translation *translation.Service
	recognition *recognition.Service
	sessions    *session.Manager

	mu   sync.Mutex
	addr string
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:     cfg,
		logger:  logger,
		started: make(chan struct{}),
	}
}

// Started is closed once the HTTP server accepts connections.
func (r *Runtime) Started() <-chan struct{} {
	return r.started
}

// Addr is the address the HTTP server listens on, valid after Started.
func (r *Runtime) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addr
}

// Start brings up every component, serves until ctx is cancelled, then shuts
// everything down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	t, err := setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetry = t
	defer r.closeTelemetry()

	if err := r.startBus(ctx); err != nil {
		return err
	}
	defer r.closeBus()

	store, err := convlog.Open(ctx, r.cfg.ConversationLog, r.logger.With(slog.String("component", "convlog")))
	if err != nil {
		return fmt.Errorf("open conversation log: %w", err)
	}
	r.store = store
	defer func() {
		if err := r.store.Close(); err != nil {
			r.logger.Error("conversation log close error", slogError(err))
		}
	}()

	r.translation = translation.NewService(newProvider(ctx, r.cfg.Translation, r.logger), r.logger)
	defer func() {
		if err := r.translation.Close(); err != nil {
			r.logger.Warn("translation provider close error", slogError(err))
		}
	}()

	if err := r.startRecognition(ctx); err != nil {
		return err
	}
	if r.recognition != nil {
		defer r.recognition.Close()
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	r.mu.Lock()
	r.addr = listener.Addr().String()
	r.mu.Unlock()

	r.sessions = session.NewManager(session.ManagerOptions{
		Config:        r.cfg.Session,
		ClientTimeout: time.Duration(r.cfg.Translation.ClientTimeoutMS) * time.Millisecond,
		Sources:       r.sourceFactory(),
		Translator:    client.New(r.translateEndpoint(), &http.Client{}).WithLogger(r.logger.With(slog.String("component", "translate-client"))),
		Store:         r.store,
		Publisher:     r.bus,
		Logger:        r.logger,
	})
	defer r.sessions.Close()

	r.httpServer = &http.Server{
		Handler:           r.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		r.ready.Store(false)
		r.logger.Info("runtime stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slogError(err))
		}
		return nil
	})

	r.ready.Store(true)
	close(r.started)
	r.logger.Info("runtime started", slog.String("addr", r.Addr()))

	return g.Wait()
}

func (r *Runtime) startBus(ctx context.Context) error {
	busCfg := r.cfg.Bus
	embedded, err := natsserver.Start(busCfg, r.logger.With(slog.String("component", "nats")))
	if err != nil {
		return err
	}
	r.embedded = embedded
	if embedded != nil {
		busCfg.Servers = []string{embedded.ClientURL()}
	}

	busClient, err := bus.Connect(ctx, busCfg, r.logger.With(slog.String("component", "bus")))
	if err != nil {
		r.embedded.Shutdown()
		return fmt.Errorf("connect bus: %w", err)
	}
	r.bus = busClient
	return nil
}

func (r *Runtime) closeBus() {
	r.bus.Close()
	r.embedded.Shutdown()
}

func (r *Runtime) startRecognition(ctx context.Context) error {
	if !r.cfg.STT.Enabled {
		r.logger.Info("speech recognition disabled")
		return nil
	}
	recognizer, err := recognition.NewRecognizer(r.cfg.STT)
	if err != nil {
		return fmt.Errorf("create recognizer: %w", err)
	}
	svc := recognition.NewService(ctx, r.cfg.STT, r.bus, recognizer)
	if err := svc.Start(); err != nil {
		return fmt.Errorf("start recognition service: %w", err)
	}
	r.recognition = svc
	return nil
}

func (r *Runtime) sourceFactory() session.SourceFactory {
	if !r.cfg.STT.Enabled {
		return nil
	}
	return func(sessionID string) recognition.Source {
		return recognition.NewBusSource(r.bus, sessionID)
	}
}

// translateEndpoint resolves an empty translation.endpoint against the bound
// listener, which differs from http.port when that is 0.
func (r *Runtime) translateEndpoint() string {
	cfg := r.cfg
	if cfg.Translation.Endpoint == "" {
		if _, port, err := net.SplitHostPort(r.Addr()); err == nil {
			cfg.HTTP.Port, _ = strconv.Atoi(port)
		}
	}
	return cfg.TranslateURL()
}

func (r *Runtime) closeTelemetry() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.telemetry.Shutdown(ctx); err != nil {
		r.logger.Error("telemetry shutdown error", slogError(err))
	}
}

func (r *Runtime) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if r.telemetry.metrics != nil {
		mux.Handle("GET "+r.cfg.Telemetry.PrometheusPath, r.telemetry.metrics)
	}

	translate := withCORS(r.cfg.HTTP.CORSOrigins, r.translation.Handler())
	mux.Handle("POST /translate", translate)
	mux.Handle("OPTIONS /translate", translate)

	r.sessions.Register(mux, r.cfg.HTTP.CORSOrigins)
	return mux
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.bus.Healthy() && (r.recognition == nil || r.recognition.Healthy()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
