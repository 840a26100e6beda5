package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"
	"time"

	"livestock.tv/internal/persistence/indexdb"
	"livestock.tv/internal/persistence/r2s3"
	"livestock.tv/internal/sim/arena"
)

type statusSource interface {
	Status() arena.Status
}

// matchIndex is the read side of the SQLite index. Nil when -disable_db.
type matchIndex interface {
	Matches(ctx context.Context, limit int) ([]indexdb.MatchRow, error)
	Match(ctx context.Context, id string) (indexdb.MatchRow, error)
	Eliminations(ctx context.Context, matchID string) ([]indexdb.EliminationRow, error)
	Stats() indexdb.Stats
}

type mirrorStats interface {
	Stats() r2s3.Stats
}

type httpDeps struct {
	arena  statusSource
	index  matchIndex
	mirror mirrorStats
	ws     http.Handler
	pprof  bool
}

func newMux(d httpDeps) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(d))
	mux.HandleFunc("/v1/status", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, d.arena.Status())
	})
	mux.HandleFunc("/v1/matches", matchesHandler(d.index))
	mux.HandleFunc("/v1/matches/", matchHandler(d.index))
	if d.ws != nil {
		mux.Handle("/v1/ws", d.ws)
	}
	if d.pprof {
		mux.HandleFunc("/debug/pprof/", loopbackOnly(pprof.Index))
		mux.HandleFunc("/debug/pprof/cmdline", loopbackOnly(pprof.Cmdline))
		mux.HandleFunc("/debug/pprof/profile", loopbackOnly(pprof.Profile))
		mux.HandleFunc("/debug/pprof/symbol", loopbackOnly(pprof.Symbol))
		mux.HandleFunc("/debug/pprof/trace", loopbackOnly(pprof.Trace))
	}
	return mux
}

func metricsHandler(d httpDeps) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		s := d.arena.Status()

		fmt.Fprintf(rw, "# HELP livestock_arena_tick Current arena tick.\n")
		fmt.Fprintf(rw, "# TYPE livestock_arena_tick gauge\n")
		fmt.Fprintf(rw, "livestock_arena_tick %d\n", s.Tick)

		fmt.Fprintf(rw, "# HELP livestock_arena_population Live agents in the current match.\n")
		fmt.Fprintf(rw, "# TYPE livestock_arena_population gauge\n")
		fmt.Fprintf(rw, "livestock_arena_population{match=%q,state=%q} %d\n", s.MatchID, s.State, s.Population)

		fmt.Fprintf(rw, "# HELP livestock_arena_watchers Connected spectators.\n")
		fmt.Fprintf(rw, "# TYPE livestock_arena_watchers gauge\n")
		fmt.Fprintf(rw, "livestock_arena_watchers %d\n", s.Watchers)

		fmt.Fprintf(rw, "# HELP livestock_chat_queue_depth Chat events waiting for the next tick.\n")
		fmt.Fprintf(rw, "# TYPE livestock_chat_queue_depth gauge\n")
		fmt.Fprintf(rw, "livestock_chat_queue_depth %d\n", s.ChatQueue)

		fmt.Fprintf(rw, "# HELP livestock_chat_dropped_total Chat events dropped on a full queue.\n")
		fmt.Fprintf(rw, "# TYPE livestock_chat_dropped_total counter\n")
		fmt.Fprintf(rw, "livestock_chat_dropped_total %d\n", s.ChatDrops)

		fmt.Fprintf(rw, "# HELP livestock_arena_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE livestock_arena_step_ms gauge\n")
		fmt.Fprintf(rw, "livestock_arena_step_ms %.3f\n", s.StepMS)

		if d.index != nil {
			st := d.index.Stats()
			fmt.Fprintf(rw, "# HELP livestock_index_queue_depth Index writer backlog.\n")
			fmt.Fprintf(rw, "# TYPE livestock_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "livestock_index_queue_depth %d\n", st.QueueDepth)

			fmt.Fprintf(rw, "# HELP livestock_index_dropped_total Tick entries dropped by the index writer.\n")
			fmt.Fprintf(rw, "# TYPE livestock_index_dropped_total counter\n")
			fmt.Fprintf(rw, "livestock_index_dropped_total %d\n", st.DropTickTotal)
		}
		if d.mirror != nil {
			writeMirrorMetrics(rw, d.mirror.Stats())
		}
	}
}

func writeMirrorMetrics(rw http.ResponseWriter, s r2s3.Stats) {
	fmt.Fprintf(rw, "# HELP livestock_mirror_queue_depth Event segments waiting for upload.\n")
	fmt.Fprintf(rw, "# TYPE livestock_mirror_queue_depth gauge\n")
	fmt.Fprintf(rw, "livestock_mirror_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(rw, "# HELP livestock_mirror_dropped_total Segments dropped because the queue stayed full.\n")
	fmt.Fprintf(rw, "# TYPE livestock_mirror_dropped_total counter\n")
	fmt.Fprintf(rw, "livestock_mirror_dropped_total %d\n", s.DroppedTotal)

	fmt.Fprintf(rw, "# HELP livestock_mirror_upload_success_total Successful segment uploads.\n")
	fmt.Fprintf(rw, "# TYPE livestock_mirror_upload_success_total counter\n")
	fmt.Fprintf(rw, "livestock_mirror_upload_success_total %d\n", s.UploadSuccessTotal)

	fmt.Fprintf(rw, "# HELP livestock_mirror_upload_fail_total Segment uploads that failed after retries.\n")
	fmt.Fprintf(rw, "# TYPE livestock_mirror_upload_fail_total counter\n")
	fmt.Fprintf(rw, "livestock_mirror_upload_fail_total %d\n", s.UploadFailTotal)

	fmt.Fprintf(rw, "# HELP livestock_mirror_last_success_unix Time of the last successful upload.\n")
	fmt.Fprintf(rw, "# TYPE livestock_mirror_last_success_unix gauge\n")
	fmt.Fprintf(rw, "livestock_mirror_last_success_unix %d\n", s.LastSuccessUnix)
}

func matchesHandler(idx matchIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if idx == nil {
			http.Error(rw, "index disabled", http.StatusNotFound)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		ms, err := idx.Matches(ctx, limit)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(rw, http.StatusOK, ms)
	}
}

func matchHandler(idx matchIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if idx == nil {
			http.Error(rw, "index disabled", http.StatusNotFound)
			return
		}
		id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/matches/"), "/")
		if id == "" || strings.Contains(id, "/") {
			http.Error(rw, "bad match id", http.StatusBadRequest)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		m, err := idx.Match(ctx, id)
		if errors.Is(err, indexdb.ErrNotFound) {
			http.Error(rw, "match not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		el, err := idx.Eliminations(ctx, id)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(rw, http.StatusOK, struct {
			indexdb.MatchRow
			EliminationLog []indexdb.EliminationRow `json:"elimination_log"`
		}{m, el})
	}
}

func writeJSON(rw http.ResponseWriter, code int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	_ = json.NewEncoder(rw).Encode(v)
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
