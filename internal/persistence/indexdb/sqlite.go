package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"livestock.tv/internal/protocol"
	"livestock.tv/internal/sim/arena"
)

// SQLiteIndex is a queryable secondary index over the tick log. Writes are
// queued and applied by a single writer goroutine; the JSONL logs remain the
// source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick atomic.Uint64
}

// timeLayout is fixed width so timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqFlush
)

type req struct {
	kind reqKind
	tick arena.TickLogEntry
	done chan struct{}
}

type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	DropTickTotal uint64 `json:"drop_tick_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection for the writer plus a few for HTTP readers; WAL lets
	// them proceed while a batch is open.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS matches (
			match_id TEXT PRIMARY KEY,
			first_tick INTEGER NOT NULL,
			first_at TEXT NOT NULL,
			last_tick INTEGER NOT NULL,
			last_at TEXT NOT NULL,
			state TEXT NOT NULL,
			live_tick INTEGER,
			end_tick INTEGER,
			winner TEXT NOT NULL DEFAULT '',
			spawns INTEGER NOT NULL DEFAULT 0,
			eliminations INTEGER NOT NULL DEFAULT 0,
			shots INTEGER NOT NULL DEFAULT 0,
			peak INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_matches_first_at ON matches(first_at);`,
		`CREATE TABLE IF NOT EXISTS spawns (
			match_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			name TEXT NOT NULL,
			max_speed REAL NOT NULL,
			x REAL NOT NULL,
			z REAL NOT NULL,
			PRIMARY KEY (match_id, name, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS eliminations (
			match_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			name TEXT NOT NULL,
			cause TEXT NOT NULL,
			PRIMARY KEY (match_id, name, tick)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_eliminations_cause ON eliminations(cause);`,
		`CREATE TABLE IF NOT EXISTS chat (
			match_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			sender TEXT NOT NULL,
			text TEXT NOT NULL,
			spawned INTEGER NOT NULL,
			PRIMARY KEY (match_id, tick, seq)
		);`,
		`INSERT OR IGNORE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteTick queues e for indexing. It never blocks the arena loop.
func (s *SQLiteIndex) WriteTick(e arena.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: e}:
	default:
		s.dropTick.Add(1)
	}
	return nil
}

// Flush waits until everything queued before the call is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return errors.New("indexdb: closed")
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTickTotal: s.dropTick.Load(),
	}
}

// tickRows is what one log entry contributes to the index.
type tickRows struct {
	spawns []spawnRow
	elims  []elimRow
	shots  int
	live   bool
	ended  bool
	winner string
}

type spawnRow struct {
	name     string
	maxSpeed float64
	x, z     float64
}

type elimRow struct {
	name  string
	cause string
}

func rowsFor(e arena.TickLogEntry) tickRows {
	var r tickRows
	for _, ef := range e.Effects {
		switch ef.Kind {
		case protocol.EffectSpawn:
			if ef.Name == "" {
				r.shots++
				continue
			}
			sr := spawnRow{name: ef.Name, maxSpeed: ef.MaxSpeed}
			if ef.Pos != nil {
				sr.x, sr.z = ef.Pos[0], ef.Pos[2]
			}
			r.spawns = append(r.spawns, sr)
		case protocol.EffectDestroy:
			if ef.Name != "" {
				r.elims = append(r.elims, elimRow{name: ef.Name, cause: ef.Cause})
			}
		case protocol.EffectState:
			switch ef.State {
			case protocol.StateSpectating:
				r.live = true
			case protocol.StateEnd:
				r.ended = true
				r.winner = ef.Winner
			}
		}
	}
	return r
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	upsertMatch, _ := s.db.Prepare(`INSERT INTO matches(match_id,first_tick,first_at,last_tick,last_at,state,spawns,eliminations,shots,peak)
		VALUES(?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(match_id) DO UPDATE SET
			last_tick=excluded.last_tick,
			last_at=excluded.last_at,
			state=excluded.state,
			spawns=matches.spawns+excluded.spawns,
			eliminations=matches.eliminations+excluded.eliminations,
			shots=matches.shots+excluded.shots,
			peak=MAX(matches.peak, excluded.peak)`)
	markLive, _ := s.db.Prepare(`UPDATE matches SET live_tick=? WHERE match_id=? AND live_tick IS NULL`)
	markEnd, _ := s.db.Prepare(`UPDATE matches SET end_tick=?, winner=? WHERE match_id=?`)
	insertSpawn, _ := s.db.Prepare(`INSERT OR REPLACE INTO spawns(match_id,tick,name,max_speed,x,z) VALUES(?,?,?,?,?,?)`)
	insertElim, _ := s.db.Prepare(`INSERT OR REPLACE INTO eliminations(match_id,tick,name,cause) VALUES(?,?,?,?)`)
	insertChat, _ := s.db.Prepare(`INSERT OR REPLACE INTO chat(match_id,tick,seq,sender,text,spawned) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{upsertMatch, markLive, markEnd, insertSpawn, insertElim, insertChat} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return true
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}

		e := r.tick
		rows := rowsFor(e)
		tick := int64(e.Tick)
		at := e.Time.UTC().Format(timeLayout)
		if !exec(upsertMatch, e.MatchID, tick, at, tick, at, e.State, len(rows.spawns), len(rows.elims), rows.shots, e.Population) {
			continue
		}
		ok := true
		if rows.live {
			ok = exec(markLive, tick, e.MatchID)
		}
		if ok && rows.ended {
			ok = exec(markEnd, tick, rows.winner, e.MatchID)
		}
		for _, sp := range rows.spawns {
			if !ok {
				break
			}
			ok = exec(insertSpawn, e.MatchID, tick, sp.name, sp.maxSpeed, sp.x, sp.z)
		}
		for _, el := range rows.elims {
			if !ok {
				break
			}
			ok = exec(insertElim, e.MatchID, tick, el.name, el.cause)
		}
		for i, c := range e.Chat {
			if !ok {
				break
			}
			ok = exec(insertChat, e.MatchID, tick, i, c.Sender, c.Text, len(c.Spawned))
		}
		flushIfNeeded()
	}

	commit()
}
