package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	persistlog "livestock.tv/internal/persistence/log"
	"livestock.tv/internal/sim/arena"
)

func main() {
	var (
		dataDir = flag.String("data", "./data", "runtime data directory (reads <data>/events)")
		matchID = flag.String("match", "", "only summarise this match id")
		verbose = flag.Bool("v", false, "list eliminations in order")
	)
	flag.Parse()

	files, err := persistlog.EventFiles(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no events files found in", filepath.Join(*dataDir, "events"))
		os.Exit(1)
	}

	var bytes uint64
	entries := 0
	s := newSummarizer()
	for _, path := range files {
		if st, err := os.Stat(path); err == nil {
			bytes += uint64(st.Size())
		}
		err := persistlog.ReadTicks(path, func(e arena.TickLogEntry) error {
			if *matchID != "" && e.MatchID != *matchID {
				return nil
			}
			entries++
			s.add(e)
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}

	fmt.Printf("%d files (%s), %s entries\n", len(files), humanize.Bytes(bytes), humanize.Comma(int64(entries)))
	report(os.Stdout, s.matches(), *verbose)
}

func report(w io.Writer, ms []*matchSummary, verbose bool) {
	for _, m := range ms {
		outcome := "no winner"
		switch {
		case m.Ended:
			outcome = m.Winner + " WON"
		case !m.Live:
			outcome = "never started"
		}
		fmt.Fprintf(w, "match %s  %s  %s\n", m.MatchID, m.First.Local().Format("2006-01-02 15:04:05"), outcome)
		fmt.Fprintf(w, "  state=%s live=%s spawns=%s peak=%d shots=%s chat=%s\n",
			m.State, m.Duration().Round(100*time.Millisecond), humanize.Comma(int64(m.Spawns)), m.Peak,
			humanize.Comma(int64(m.Shots)), humanize.Comma(int64(m.Chat)))
		if len(m.Causes) > 0 {
			causes := make([]string, 0, len(m.Causes))
			for c, n := range m.Causes {
				causes = append(causes, fmt.Sprintf("%s=%d", strings.ToLower(c), n))
			}
			sort.Strings(causes)
			fmt.Fprintf(w, "  eliminations: %s\n", strings.Join(causes, " "))
		}
		if verbose && len(m.Order) > 0 {
			for i, name := range m.Order {
				fmt.Fprintf(w, "    %s %s\n", humanize.Ordinal(i+1), name)
			}
		}
	}
}
