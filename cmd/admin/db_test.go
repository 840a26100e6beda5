package main

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"livestock.tv/internal/persistence/indexdb"
	"livestock.tv/internal/protocol"
	"livestock.tv/internal/sim/arena"
)

func seedIndex(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "livestock.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	at := time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC)
	for _, e := range []arena.TickLogEntry{
		{MatchID: "OLD", Tick: 0, Time: at, State: protocol.StateStart},
		{MatchID: "NEW", Tick: 0, Time: at.Add(time.Hour), State: protocol.StateStart},
		{MatchID: "NEW", Tick: 10, Time: at.Add(time.Hour), State: protocol.StateSpectating, Population: 2,
			Chat: []arena.RecordedChat{{Sender: "moo", Text: "!join", Spawned: []string{"moo#1", "moo#2"}}},
			Effects: []protocol.Effect{
				{Kind: protocol.EffectSpawn, Name: "moo#1", MaxSpeed: 4, Pos: protocol.Vec3(1, 0, 2)},
				{Kind: protocol.EffectSpawn, Name: "moo#2", MaxSpeed: 5, Pos: protocol.Vec3(3, 0, 4)},
			}},
		{MatchID: "NEW", Tick: 20, Time: at.Add(time.Hour), State: protocol.StateEnd, Population: 1,
			Effects: []protocol.Effect{
				{Kind: protocol.EffectDestroy, Name: "moo#2", Cause: protocol.CauseOutOfBounds},
				{Kind: protocol.EffectState, State: protocol.StateEnd, Winner: "moo#1"},
			}},
	} {
		if err := idx.WriteTick(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := idx.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunQuery(t *testing.T) {
	db := seedIndex(t)

	cases := []struct {
		q    string
		opt  dbQuery
		want []string
	}{
		{"matches", dbQuery{}, []string{`"match_id":"NEW"`, `"winner":"moo#1"`, `"match_id":"OLD"`}},
		{"spawns", dbQuery{}, []string{`"name":"moo#1"`, `"max_speed":5`, `"x":3`}},
		{"eliminations", dbQuery{MatchID: "NEW"}, []string{`"cause":"OUT_OF_BOUNDS"`}},
		{"chat", dbQuery{}, []string{`"sender":"moo"`, `"spawned":2`}},
		{"causes", dbQuery{}, []string{`{"OUT_OF_BOUNDS":1}`}},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		if err := runQuery(&buf, db, tc.q, tc.opt); err != nil {
			t.Fatalf("%s: %v", tc.q, err)
		}
		for _, w := range tc.want {
			if !strings.Contains(buf.String(), w) {
				t.Fatalf("%s: missing %s in\n%s", tc.q, w, buf.String())
			}
		}
	}

	var buf bytes.Buffer
	_ = runQuery(&buf, db, "matches", dbQuery{Limit: 1})
	if strings.Count(buf.String(), "\n") != 1 || !strings.Contains(buf.String(), "NEW") {
		t.Fatalf("limit/order: %s", buf.String())
	}
	if err := runQuery(&buf, db, "eliminations", dbQuery{MatchID: "OLD"}); err != nil {
		t.Fatalf("empty match: %v", err)
	}
	if err := runQuery(&buf, db, "bogus", dbQuery{}); err == nil || !strings.HasPrefix(err.Error(), "unknown query") {
		t.Fatalf("bogus query err=%v", err)
	}
}
