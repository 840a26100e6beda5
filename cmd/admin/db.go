package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type dbQuery struct {
	MatchID string
	Limit   int
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional; defaults to <data>/index/livestock.sqlite)")
	matchID := fs.String("match", "", "match id (defaults to the newest match)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "matches"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "livestock.sqlite")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(os.Stdout, db, q, dbQuery{MatchID: strings.TrimSpace(*matchID), Limit: *limit}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if strings.HasPrefix(err.Error(), "unknown query") {
			fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data|-db PATH] [-match ID] [-limit N] matches|spawns|eliminations|chat|causes")
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func runQuery(w io.Writer, db *sql.DB, q string, opt dbQuery) error {
	if opt.Limit <= 0 {
		opt.Limit = 20
	}
	switch q {
	case "matches", "causes":
	case "spawns", "eliminations", "chat":
		if opt.MatchID == "" {
			id, err := latestMatch(db)
			if err != nil {
				return fmt.Errorf("latest match: %w", err)
			}
			if id == "" {
				return fmt.Errorf("no matches found")
			}
			opt.MatchID = id
		}
	default:
		return fmt.Errorf("unknown query: %s", q)
	}

	switch q {
	case "matches":
		rows, err := db.Query(`SELECT match_id,first_at,state,winner,spawns,eliminations,shots,peak FROM matches ORDER BY first_at DESC, match_id DESC LIMIT ?`, opt.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				MatchID      string `json:"match_id"`
				FirstAt      string `json:"first_at"`
				State        string `json:"state"`
				Winner       string `json:"winner,omitempty"`
				Spawns       int    `json:"spawns"`
				Eliminations int    `json:"eliminations"`
				Shots        int    `json:"shots"`
				Peak         int    `json:"peak"`
			}
			if err := rows.Scan(&r.MatchID, &r.FirstAt, &r.State, &r.Winner, &r.Spawns, &r.Eliminations, &r.Shots, &r.Peak); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(w, r)
		}
		return rows.Err()

	case "spawns":
		rows, err := db.Query(`SELECT tick,name,max_speed,x,z FROM spawns WHERE match_id=? ORDER BY tick, name LIMIT ?`, opt.MatchID, opt.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				MatchID  string  `json:"match_id"`
				Tick     uint64  `json:"tick"`
				Name     string  `json:"name"`
				MaxSpeed float64 `json:"max_speed"`
				X        float64 `json:"x"`
				Z        float64 `json:"z"`
			}
			if err := rows.Scan(&r.Tick, &r.Name, &r.MaxSpeed, &r.X, &r.Z); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.MatchID = opt.MatchID
			printJSON(w, r)
		}
		return rows.Err()

	case "eliminations":
		rows, err := db.Query(`SELECT tick,name,cause FROM eliminations WHERE match_id=? ORDER BY tick, name LIMIT ?`, opt.MatchID, opt.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				MatchID string `json:"match_id"`
				Tick    uint64 `json:"tick"`
				Name    string `json:"name"`
				Cause   string `json:"cause"`
			}
			if err := rows.Scan(&r.Tick, &r.Name, &r.Cause); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.MatchID = opt.MatchID
			printJSON(w, r)
		}
		return rows.Err()

	case "chat":
		rows, err := db.Query(`SELECT tick,sender,text,spawned FROM chat WHERE match_id=? ORDER BY tick, seq LIMIT ?`, opt.MatchID, opt.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				MatchID string `json:"match_id"`
				Tick    uint64 `json:"tick"`
				Sender  string `json:"sender"`
				Text    string `json:"text"`
				Spawned int    `json:"spawned"`
			}
			if err := rows.Scan(&r.Tick, &r.Sender, &r.Text, &r.Spawned); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.MatchID = opt.MatchID
			printJSON(w, r)
		}
		return rows.Err()

	case "causes":
		rows, err := db.Query(`SELECT cause, COUNT(*) FROM eliminations GROUP BY cause ORDER BY cause`)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		out := map[string]int{}
		for rows.Next() {
			var (
				cause string
				n     int
			)
			if err := rows.Scan(&cause, &n); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			out[cause] = n
		}
		if err := rows.Err(); err != nil {
			return err
		}
		printJSON(w, out)
	}
	return nil
}

func latestMatch(db *sql.DB) (string, error) {
	if db == nil {
		return "", fmt.Errorf("nil db")
	}
	var id sql.NullString
	if err := db.QueryRow(`SELECT match_id FROM matches ORDER BY first_at DESC, match_id DESC LIMIT 1`).Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return id.String, nil
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
