package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"livestock.tv/internal/chat"
	"livestock.tv/internal/persistence/indexdb"
	persistlog "livestock.tv/internal/persistence/log"
	"livestock.tv/internal/sim/arena"
	"livestock.tv/internal/sim/tuning"
	"livestock.tv/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		seed       = flag.Int64("seed", 0, "spawn rng seed (0: time based)")
		channel    = flag.String("channel", "", "default chat channel (overrides tuning match.channel)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite match index")
		noChat     = flag.Bool("no_chat", false, "never dial the chat service; CONNECT only changes state")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)
	arenaLog := log.New(os.Stdout, "[arena] ", log.LstdFlags|log.Lmicroseconds)
	chatLog := log.New(os.Stdout, "[chat] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if c := strings.TrimSpace(*channel); c != "" {
		tune.Match.Channel = strings.TrimPrefix(c, "#")
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "livestock.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
	}

	mirror, err := buildMirror(*dataDir, log.New(os.Stdout, "[mirror] ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		logger.Fatalf("mirror: %v", err)
	}
	// Deferred first so it runs after the tick log has sealed its last file.
	defer mirror.Close()

	tickLog := persistlog.NewTickLoggerWithOptions(*dataDir, mirrorLogOptions(mirror))
	defer tickLog.Close()

	s := *seed
	if s == 0 {
		s = time.Now().UnixNano()
	}
	a := arena.New(tune, arena.Options{Seed: s, Logger: arenaLog})
	if idx != nil {
		a.SetTickLogger(persistlog.Tee{tickLog, idx})
	} else {
		a.SetTickLogger(tickLog)
	}
	if !*noChat {
		a.SetChatListener(chat.NewBridge(chat.BridgeConfig{
			Addr:        tune.Chat.Addr,
			Insecure:    tune.Chat.Insecure,
			Nick:        tune.Chat.Nick,
			JoinTimeout: time.Duration(tune.Chat.JoinTimeoutMs) * time.Millisecond,
		}, chatLog))
	}

	ctx, cancel := signalContext()
	defer cancel()

	arenaDone := startArena(ctx, a, logger)

	deps := httpDeps{
		arena: a,
		ws:    ws.NewServer(a, logger).Handler(),
		pprof: envBool("LIVESTOCK_ENABLE_PPROF_HTTP", false),
	}
	if idx != nil {
		deps.index = idx
	}
	if mirror != nil {
		deps.mirror = mirror
	}
	srv := &http.Server{
		Addr:              *addr,
		Handler:           newMux(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (tick %d Hz, arena ±%.0f)", *addr, tune.TickRateHz, tune.Arena.HalfExtent)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	// The deferred closes below must not race a tick still writing.
	cancel()
	<-arenaDone
}

// startArena runs a until ctx is done. The returned channel is closed once
// Run has returned.
func startArena(ctx context.Context, a *arena.Arena, logger *log.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("arena stopped: %v", err)
		}
	}()
	return done
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}
