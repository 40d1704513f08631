// annctl is a standalone harness exercising the create/update/search
// subset of the vector index surface against an in-memory embedding
// store, in place of a real embedding database driving it through
// Cypher. It doubles as an integration smoke test runnable from the
// command line.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/gibram-io/annidx/internal/memstore"
	"github.com/gibram-io/annidx/internal/vecid"
	"github.com/gibram-io/annidx/pkg/logging"
	"github.com/gibram-io/annidx/pkg/metrics"
	"github.com/gibram-io/annidx/pkg/shutdown"
	"github.com/gibram-io/annidx/pkg/vectorindex"
	"github.com/gibram-io/annidx/pkg/version"
)

func main() {
	dim := flag.Int("dim", 32, "vector dimension")
	seed := flag.Uint64("seed", 1, "RNG seed")
	flag.Parse()

	fmt.Printf("annctl %s - type 'help' for commands\n", version.Version)

	log, err := logging.New(logging.DefaultConfig())
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	mc := metrics.NewCollector()
	store := memstore.New(*seed)

	sh := shutdown.Default()
	sh.Register("flush-metrics", 10, func(ctx context.Context) error { return nil })
	sh.Start()

	ix, err := vectorindex.CreateVectorIndex(*dim, map[string]string{}, store, store, store, log, mc)
	if err != nil {
		fmt.Fprintln(os.Stderr, "create index:", err)
		os.Exit(1)
	}

	reader := bufio.NewReader(os.Stdin)
	nextID := vecid.VID(0)

	for {
		fmt.Print("annctl> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		cmd := strings.ToUpper(parts[0])

		switch cmd {
		case "QUIT", "EXIT":
			fmt.Println("bye")
			return

		case "HELP":
			printHelp()

		case "ADD":
			count := 1
			if len(parts) > 1 {
				if n, err := strconv.Atoi(parts[1]); err == nil {
					count = n
				}
			}
			var ids []vecid.VID
			for i := 0; i < count; i++ {
				v := randomVector(*dim)
				store.PutEmbedding(nextID, v)
				ids = append(ids, nextID)
				nextID++
			}
			if err := ix.UpdateVectorIndex(ids); err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Printf("inserted %d vectors (total %d)\n", count, nextID)

		case "SEARCH":
			if nextID == 0 {
				fmt.Println("index is empty")
				continue
			}
			k := 5
			if len(parts) > 1 {
				if n, err := strconv.Atoi(parts[1]); err == nil {
					k = n
				}
			}
			q := randomVector(*dim)
			results, err := ix.Search(0, q, k, 4, nil)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			for _, r := range results {
				fmt.Printf("  vid=%d dist=%.4f\n", r.ID, r.Dist)
			}

		default:
			fmt.Println("unknown command, type 'help'")
		}
	}

	sh.Shutdown()
}

func randomVector(dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = rand.Float32()*2 - 1
	}
	return v
}

func printHelp() {
	fmt.Println("commands:")
	fmt.Println("  add [n]      insert n random vectors (default 1)")
	fmt.Println("  search [k]   search for k nearest neighbors of a random query (default 5)")
	fmt.Println("  help         show this message")
	fmt.Println("  quit         exit")
}
