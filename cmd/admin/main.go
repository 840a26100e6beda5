package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	persistlog "livestock.tv/internal/persistence/log"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "matches":
			matchesCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints the hourly event files with their sizes.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	files, err := persistlog.EventFiles(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	var total uint64
	for _, f := range files {
		st, err := os.Stat(f)
		if err != nil {
			continue
		}
		total += uint64(st.Size())
		fmt.Printf("%-40s %8s  %s\n", filepath.Base(f), humanize.Bytes(uint64(st.Size())), humanize.Time(st.ModTime()))
	}
	fmt.Printf("%d files, %s\n", len(files), humanize.Bytes(total))
}
