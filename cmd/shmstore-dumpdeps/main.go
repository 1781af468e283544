// Command shmstore-dumpdeps prints every key/value-list row out of a
// persisted dependency sink file, bypassing the in-memory deptbl
// entirely, matching the teacher's bare-main/log.Fatalf/fmt.Printf CLI
// tooling style.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "modernc.org/sqlite"

	"github.com/tcshare/shmstore/internal/persist"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <sink-file> [key...]\n", os.Args[0])
		os.Exit(2)
	}
	path := os.Args[1]

	db, err := sql.Open("sqlite", path)
	if err != nil {
		log.Fatalf("opening %s: %v", path, err)
	}
	defer db.Close()

	ctx := context.Background()
	reader, err := persist.Load(ctx, db, true, "")
	if err != nil {
		log.Fatalf("loading sink: %v", err)
	}
	fmt.Printf("build_revision: %s\n", reader.BuildRevision())

	if len(os.Args) > 2 {
		for _, arg := range os.Args[2:] {
			var key uint32
			if _, err := fmt.Sscanf(arg, "%d", &key); err != nil {
				fmt.Printf("%s: not a number, skipping\n", arg)
				continue
			}
			printDep(ctx, reader, key)
		}
		return
	}

	keys, err := reader.ListKeys(ctx)
	if err != nil {
		log.Fatalf("listing keys: %v", err)
	}
	for _, key := range keys {
		printDep(ctx, reader, key)
	}
}

func printDep(ctx context.Context, reader *persist.Reader, key uint32) {
	vals, err := reader.GetDep(ctx, key)
	if err != nil {
		fmt.Printf("%d: error: %v\n", key, err)
		return
	}
	fmt.Printf("%d: %v\n", key, vals)
}
