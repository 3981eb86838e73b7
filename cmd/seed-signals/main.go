// Command seed-signals generates a synthetic portfolio of entities and
// replays realistic signal events against a running instance, then
// reads back the portfolio to sanity-check the pipeline end to end.
package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/cscx/pulse/internal/seedsignals"
)

const (
	defaultEntities   = 50
	defaultDays       = 60
	defaultTimeout    = 30 * time.Second
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		entities = flag.Int("entities", defaultEntities, "Number of entities to seed")
		days     = flag.Int("days", defaultDays, "Days of history to generate per entity")
		workers  = flag.Int("workers", runtime.NumCPU()*2, "Number of concurrent posters")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		seed     = flag.Int64("seed", 0, "Random seed (0 picks one from the clock)")
		verify   = flag.Bool("verify", true, "Read back portfolio scores after seeding")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	cfg := &seedsignals.Config{
		BaseURL:  *baseURL,
		Entities: *entities,
		Days:     *days,
		Workers:  *workers,
		Timeout:  *timeout,
		Seed:     *seed,
		Verify:   *verify,
	}
	if err := seedsignals.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("seeding failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
