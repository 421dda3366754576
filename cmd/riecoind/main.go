// Command riecoind runs a standalone prime-constellation search: it
// builds an Engine from command-line flags, submits one job covering
// the requested target window, and prints every accepted candidate as
// it arrives alongside periodic throughput statistics.
//
// Architecture:
//   - A sieve of Eratosthenes generates the prime table the primorial
//     and modular-inverse table are built from.
//   - A worker pool of goroutines shares one sieving wheel and claims
//     segments from the active job until the window is exhausted.
//   - math/big (via the bigint facade) backs every value that can
//     exceed a machine word: the primorial, the target window, and
//     each accepted candidate.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/agbru/primeconstellation/bigint"
	"github.com/agbru/primeconstellation/engine"
)

func parsePattern(s string) ([]uint64, error) {
	parts := strings.Split(s, ",")
	pattern := make([]uint64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern offset %q: %w", p, err)
		}
		pattern = append(pattern, v)
	}
	return pattern, nil
}

func parsePatternMin(s string, n int) ([]bool, error) {
	if s == "" {
		min := make([]bool, n)
		for i := range min {
			min[i] = true
		}
		return min, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("pattern-min has %d entries, pattern has %d", len(parts), n)
	}
	min := make([]bool, n)
	for i, p := range parts {
		v, err := strconv.ParseBool(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid pattern-min entry %q: %w", p, err)
		}
		min[i] = v
	}
	return min, nil
}

func parseDecimal(s, name string) (*bigint.Int, error) {
	v, ok := bigint.FromString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s %q: not a base-10 integer", name, s)
	}
	return v, nil
}

func main() {
	startTime := time.Now()
	defaults := engine.DefaultParams()

	patternStr := flag.String("pattern", joinUint64(defaults.ConstellationPattern), "comma-separated constellation pattern offsets, must start at 0")
	patternMinStr := flag.String("pattern-min", "", "comma-separated true/false per pattern offset, required for acceptance (default: all required)")
	workers := flag.Int("workers", defaults.Workers, "worker goroutines (0 autodetects via runtime.NumCPU)")
	primeLimit := flag.Uint64("prime-limit", uint64(defaults.PrimeTableLimit), "upper bound for the sieving prime table")
	primorialNumber := flag.Int("primorial-number", defaults.PrimorialNumber, "count of leading primes multiplied into the primorial")
	primorialOffset := flag.String("primorial-offset", "", "explicit primorial offset (decimal); empty uses the hardcoded table for small primorial-number values")
	sieveBits := flag.Uint64("sieve-bits", defaults.SieveSizeBits, "candidate slots per sieve segment, rounded down to a whole 64-bit word")
	targetMin := flag.String("target-min", "2", "lower bound of the search window (decimal)")
	targetMax := flag.String("target-max", "1000000", "upper bound of the search window (decimal)")
	kMin := flag.Int("k-min", -1, "minimum consecutive prime offsets required to accept a candidate (default: full pattern length)")
	strengthen := flag.Bool("strengthen", defaults.StrengthenFullTuples, "run a Miller-Rabin strengthening pass on full-pattern hits")
	strengthenRounds := flag.Int("strengthen-rounds", defaults.StrengthenRounds, "Miller-Rabin rounds for the strengthening pass")
	statsInterval := flag.Duration("stats-interval", 5*time.Second, "interval between printed stats snapshots")
	metricsAddr := flag.String("metrics-addr", ":9100", "address to serve Prometheus metrics on (\"\" disables the metrics server)")
	flag.Parse()

	pattern, err := parsePattern(*patternStr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "riecoind:", err)
		os.Exit(1)
	}
	patternMin, err := parsePatternMin(*patternMinStr, len(pattern))
	if err != nil {
		fmt.Fprintln(os.Stderr, "riecoind:", err)
		os.Exit(1)
	}
	tMin, err := parseDecimal(*targetMin, "target-min")
	if err != nil {
		fmt.Fprintln(os.Stderr, "riecoind:", err)
		os.Exit(1)
	}
	tMax, err := parseDecimal(*targetMax, "target-max")
	if err != nil {
		fmt.Fprintln(os.Stderr, "riecoind:", err)
		os.Exit(1)
	}
	effectiveKMin := *kMin
	if effectiveKMin < 0 {
		effectiveKMin = len(pattern)
	}

	var offset *bigint.Int
	if *primorialOffset != "" {
		offset, err = parseDecimal(*primorialOffset, "primorial-offset")
		if err != nil {
			fmt.Fprintln(os.Stderr, "riecoind:", err)
			os.Exit(1)
		}
	}

	params := engine.Params{
		Workers:              *workers,
		ConstellationPattern: pattern,
		PrimeTableLimit:      uint32(*primeLimit),
		PrimorialNumber:      *primorialNumber,
		PrimorialOffset:      offset,
		SieveSizeBits:        *sieveBits,
		StrengthenFullTuples: *strengthen,
		StrengthenRounds:     *strengthenRounds,
	}

	e := engine.New()
	if err := e.SetParams(params); err != nil {
		fmt.Fprintln(os.Stderr, "riecoind: invalid parameters:", err)
		os.Exit(1)
	}
	fmt.Printf("Initializing: pattern=%v prime-limit=%d primorial-number=%d sieve-bits=%d\n",
		pattern, *primeLimit, *primorialNumber, *sieveBits)
	if err := e.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "riecoind: init failed:", err)
		os.Exit(1)
	}
	fmt.Println("-------------------------------------------------------------------")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nriecoind: shutting down...")
		cancel()
	}()

	if err := e.StartWorkers(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "riecoind: failed to start workers:", err)
		os.Exit(1)
	}

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", e.MetricsHandler())
		server := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintln(os.Stderr, "riecoind: metrics server:", err)
			}
		}()
		go func() {
			<-ctx.Done()
			server.Close()
		}()
		fmt.Printf("Serving Prometheus metrics on %s/metrics\n", *metricsAddr)
	}

	warnings, err := e.AddJob(engine.Job{
		ID:                "cli",
		ClearPreviousJobs: true,
		Pattern:           pattern,
		TargetMin:         tMin,
		TargetMax:         tMax,
		KMin:              effectiveKMin,
		PatternMin:        patternMin,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "riecoind: invalid job:", err)
		os.Exit(1)
	}
	for _, w := range warnings {
		fmt.Println("riecoind: warning:", w)
	}

	fmt.Printf("%-30s | %-s\n", "n", "pattern offsets prime")
	statsTicker := time.NewTicker(*statsInterval)
	defer statsTicker.Stop()

	count := 0
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-statsTicker.C:
			printStats(e.Stats())
		default:
			if out, ok := e.PopOutput(); ok {
				count++
				fmt.Printf("%-30s | %v\n", out.N.String(), out.Pattern)
				continue
			}
			time.Sleep(time.Millisecond)
		}
	}

	e.Stop()
	duration := time.Since(startTime)
	fmt.Println("-------------------------------------------------------------------")
	fmt.Printf("Search finished. %d constellations found.\n", count)
	printStats(e.Stats())
	fmt.Printf("\nTotal run time: %s\n", duration)
}

func printStats(s engine.Stats) {
	fmt.Printf("stats: candidates=%d sieve_time=%s test_time=%s tuple_counts=%v\n",
		s.CandidatesGenerated, s.SievingDuration, s.TestingDuration, s.TupleCounts)
}

func joinUint64(vals []uint64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatUint(v, 10)
	}
	return strings.Join(parts, ",")
}
