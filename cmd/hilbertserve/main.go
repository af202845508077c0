// Command hilbertserve opens a built Hilbert-tree archive and serves
// composed tiles over HTTP at /{z}/{x}/{y}.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/hauke96/sigolo/v2"

	"github.com/planetidx/hilbertpvt"
	"github.com/planetidx/hilbertpvt/internal/rules"
)

var cli struct {
	Archive string `arg:"" help:"Path to a previously built archive directory."`
	Rules   string `arg:"" help:"Path to the rules YAML document used to build the archive."`
	Addr    string `default:":8080" help:"HTTP listen address."`
}

func main() {
	kong.Parse(&cli, kong.Description("Serve composed tiles from a built Hilbert-tree archive."))

	data, err := os.ReadFile(cli.Rules)
	if err != nil {
		fatalf("reading rules: %v", err)
	}
	cfg, err := rules.Decode(data)
	if err != nil {
		fatalf("decoding rules: %v", err)
	}

	ctx := context.Background()
	tree, err := hilbertpvt.Open(ctx, cli.Archive, cfg)
	if err != nil {
		fatalf("opening archive: %v", err)
	}
	defer tree.Close()

	http.HandleFunc("/", handleTile(tree))
	sigolo.Infof("hilbertserve: listening on %s, archive %s", cli.Addr, cli.Archive)
	if err := http.ListenAndServe(cli.Addr, nil); err != nil {
		fatalf("serving: %v", err)
	}
}

// handleTile parses a /{z}/{x}/{y} path and composes the requested
// tile (§4.I), writing an empty (but valid) buffer on any miss rather
// than a 4xx, matching the composer's own "Empty state still emits a
// valid buffer" contract.
func handleTile(tree *hilbertpvt.HilbertTree) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		z, x, y, err := parseTilePath(r.URL.Path)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		buf, err := tree.Compose(z, x, y)
		if err != nil {
			sigolo.Warnf("hilbertserve: composing %d/%d/%d: %v", z, x, y, err)
			http.Error(w, "compose failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(buf)
	}
}

func parseTilePath(path string) (z, x, y int, err error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("expected /z/x/y, got %q", path)
	}
	z, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid z: %w", err)
	}
	x, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid x: %w", err)
	}
	y, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid y: %w", err)
	}
	return z, x, y, nil
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "hilbertserve: "+format+"\n", args...)
	os.Exit(1)
}
