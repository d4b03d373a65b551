// capture-hub runs one browser capture session: it attaches to a debugger
// endpoint, fans captured events out to NATS JetStream (durable stream and
// object store), and serves live websocket observers.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/tracelight/tracelight/pkg/broadcaster"
	"github.com/tracelight/tracelight/pkg/capture"
	"github.com/tracelight/tracelight/pkg/config"
	"github.com/tracelight/tracelight/pkg/livestream"
	"github.com/tracelight/tracelight/pkg/logger"
	"github.com/tracelight/tracelight/pkg/natsutil"
)

const (
	windowPollInterval = 2 * time.Second
	shutdownTimeout    = 10 * time.Second
)

func main() {
	configPath := flag.String("config", "/etc/tracelight/capture-hub.json", "Path to config file")
	debuggerURL := flag.String("debugger-url", "", "Browser debugger websocket endpoint")
	capturesID := flag.String("captures-id", "", "Capture session id (generated when empty)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if err := logger.Init(logger.Config{Debug: *debug}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *debuggerURL == "" {
		log.Fatal("debugger-url is required")
	}

	if *capturesID == "" {
		*capturesID = uuid.NewString()
	}

	mainLogger := logger.WithComponent("capture-hub")
	ctx := context.Background()

	nc, js, err := natsutil.Connect(cfg.NATSURL)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer nc.Close()

	if err := natsutil.EnsureStream(ctx, js, cfg.StreamName, cfg.SubjectPrefix); err != nil {
		log.Fatalf("Failed to ensure stream: %v", err)
	}

	stream := natsutil.NewEventPublisher(js, cfg.SubjectPrefix)

	// A missing bucket is valid configuration: the object sink stays off
	// and events still reach the stream and live clients.
	var object broadcaster.ObjectSink

	if cfg.Bucket != "" {
		writer, err := natsutil.NewObjectWriter(ctx, js, cfg.Bucket)
		if err != nil {
			log.Fatalf("Failed to open object store: %v", err)
		}

		object = writer
	} else {
		mainLogger.Warn().Msg("no bucket configured, object-store sink disabled")
	}

	sessionStart := time.Now().UTC().Format("20060102-150405")

	hub := broadcaster.New(*capturesID, sessionStart, stream, object, capture.NewRegistry(),
		broadcaster.WithBroadcastInterval(time.Duration(cfg.BroadcastInterval)),
		broadcaster.WithFlushInterval(time.Duration(cfg.FlushInterval)),
	)

	client, err := capture.Dial(ctx, *debuggerURL)
	if err != nil {
		log.Fatalf("Failed to attach to debugger: %v", err)
	}
	defer client.Close()

	session := capture.NewSession(hub, client)

	mux := http.NewServeMux()
	mux.Handle("/live", livestream.NewHandler(hub))
	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, hub.Stats())
	})

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		mainLogger.Info().Str("addr", cfg.ListenAddr).Msg("live-stream server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	captureErr := make(chan error, 1)

	go func() {
		captureErr <- client.Run(runCtx, session, windowPollInterval)
	}()

	mainLogger.Info().
		Str("captures_id", *capturesID).
		Str("session_start", sessionStart).
		Str("debugger_url", *debuggerURL).
		Msg("capture session started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	reason := "session ended"

	var sessionErr error

	select {
	case sig := <-sigCh:
		mainLogger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-captureErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			mainLogger.Error().Err(err).Msg("capture loop failed")

			reason = "capture failed"
			sessionErr = err
		}
	case err := <-serverErr:
		mainLogger.Error().Err(err).Msg("live-stream server failed")

		reason = "server failed"
		sessionErr = err
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	hub.Shutdown(shutdownCtx, reason, sessionErr)

	if err := server.Shutdown(shutdownCtx); err != nil {
		mainLogger.Error().Err(err).Msg("server shutdown failed")
	}

	mainLogger.Info().Msg("capture session closed")
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	_, _ = w.Write(data)
}
