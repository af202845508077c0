// Command hilbertbuild runs the full Hilbert-tree pipeline (§4
// components C-H) over an archive directory whose entity columns have
// already been populated, per the rules document it's given.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/planetidx/hilbertpvt"
	"github.com/planetidx/hilbertpvt/internal/build"
	"github.com/planetidx/hilbertpvt/internal/rules"
)

var cli struct {
	Archive string `arg:"" help:"Path to the archive directory (entity columns must already exist)."`
	Rules   string `arg:"" help:"Path to the rules YAML document."`
	Check   bool   `help:"Verify idempotence by hashing the built columns and printing the digest."`
}

func main() {
	kong.Parse(&cli, kong.Description("Build a Hilbert-tree archive from pre-ingested OSM entity columns."))

	cfg, err := loadRules(cli.Rules)
	if err != nil {
		fatalf("loading rules: %v", err)
	}

	ctx := context.Background()
	tree, err := hilbertpvt.Build(ctx, cli.Archive, cfg)
	if err != nil {
		fatalf("build: %v", err)
	}
	defer tree.Close()

	fmt.Printf("built archive %s, leaf zoom %d\n", cli.Archive, tree.LeafZoom())

	if cli.Check {
		digest := build.ArchiveDigest(tree.Archive())
		fmt.Printf("column digest: %x\n", digest)
	}
}

func loadRules(path string) (*rules.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return rules.Decode(data)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "hilbertbuild: "+format+"\n", args...)
	os.Exit(1)
}
