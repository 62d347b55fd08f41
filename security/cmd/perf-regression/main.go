// Command perf-regression fails when a candidate `go test -bench` run is slower
// or allocates more than a baseline run on the tracked hot paths.
//
//	go test -run '^$' -bench . -count 5 ./... > new.txt
//	perf-regression -baseline old.txt -candidate new.txt
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
)

// metricKey is one unit reported by one benchmark, e.g. BenchmarkRefresh ns/op.
type metricKey struct {
	Bench string
	Unit  string
}

func (k metricKey) String() string { return k.Bench + " " + k.Unit }

// gated lists the hot paths checked by default.
var gated = []metricKey{
	{"BenchmarkRefresh", "ns/op"},
	{"BenchmarkRender", "allocs/op"},
	{"BenchmarkRender", "ns/op"},
	{"BenchmarkValidateAccess", "allocs/op"},
	{"BenchmarkValidateAccess", "ns/op"},
}

const defaultMaxSlowdown = 0.30

// errRegressed is returned by run when at least one metric fails the gate.
var errRegressed = errors.New("performance regression threshold exceeded")

// results holds every sample of a benchmark run, keyed by benchmark and unit.
type results map[metricKey][]float64

// verdict is the outcome for one gated metric.
type verdict struct {
	Key       metricKey
	Base      float64
	Candidate float64
	// Change is the relative change; NaN without samples or with a zero baseline.
	Change float64
	Reason string
}

func (v verdict) failed() bool { return v.Reason != "" }

func main() {
	err := run(os.Args[1:], os.Stdout, os.Stderr)
	switch {
	case err == nil:
	case errors.Is(err, errRegressed):
		os.Exit(1)
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	var baselinePath, candidatePath string
	var maxSlowdown float64
	flags := flag.NewFlagSet("perf-regression", flag.ContinueOnError)
	flags.StringVar(&baselinePath, "baseline", "", "benchmark output of the reference build")
	flags.StringVar(&candidatePath, "candidate", "", "benchmark output of the build under test")
	flags.Float64Var(&maxSlowdown, "threshold", defaultMaxSlowdown, "largest accepted relative increase (0.30 = +30%)")
	flags.SetOutput(stderr)
	if err := flags.Parse(args); err != nil {
		return err
	}
	if baselinePath == "" || candidatePath == "" {
		return errors.New("-baseline and -candidate are required")
	}
	if maxSlowdown < 0 {
		return errors.New("-threshold must be >= 0")
	}

	base, err := readResults(baselinePath)
	if err != nil {
		return fmt.Errorf("baseline: %w", err)
	}
	cand, err := readResults(candidatePath)
	if err != nil {
		return fmt.Errorf("candidate: %w", err)
	}

	verdicts := judge(gated, base, cand, maxSlowdown)
	if err := report(stdout, verdicts); err != nil {
		return err
	}

	failed := 0
	for _, v := range verdicts {
		if v.failed() {
			fmt.Fprintf(stderr, "FAIL %s: %s\n", v.Key, v.Reason)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d metrics", errRegressed, failed, len(verdicts))
	}
	return nil
}

// judge compares the median of each gated metric. A metric missing from either
// run fails, and so does any increase over a zero baseline.
func judge(keys []metricKey, base, cand results, maxSlowdown float64) []verdict {
	out := make([]verdict, 0, len(keys))
	for _, key := range keys {
		v := verdict{Key: key, Change: math.NaN()}
		b, c := base[key], cand[key]
		if len(b) == 0 || len(c) == 0 {
			v.Reason = "no samples"
			out = append(out, v)
			continue
		}

		v.Base, v.Candidate = median(b), median(c)
		switch {
		case v.Base == 0:
			if v.Candidate > 0 {
				v.Reason = fmt.Sprintf("rose from 0 to %g", v.Candidate)
			}
		default:
			v.Change = (v.Candidate - v.Base) / v.Base
			if v.Change > maxSlowdown {
				v.Reason = fmt.Sprintf("%+.1f%% exceeds %+.1f%%", v.Change*100, maxSlowdown*100)
			}
		}
		out = append(out, v)
	}
	return out
}

func report(w io.Writer, verdicts []verdict) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BENCHMARK\tUNIT\tBASELINE\tCANDIDATE\tCHANGE\t")
	for _, v := range verdicts {
		change := "n/a"
		if !math.IsNaN(v.Change) {
			change = fmt.Sprintf("%+.1f%%", v.Change*100)
		}
		fmt.Fprintf(tw, "%s\t%s\t%g\t%g\t%s\t\n", v.Key.Bench, v.Key.Unit, v.Base, v.Candidate, change)
	}
	return tw.Flush()
}

func readResults(path string) (results, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseResults(f)
}

// parseResults reads `go test -bench` output. Lines that are not benchmark
// results are skipped, as are value/unit pairs that do not parse.
func parseResults(r io.Reader) (results, error) {
	out := results{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		// name, iterations, then value/unit pairs
		if len(fields) < 4 || !strings.HasPrefix(fields[0], "Benchmark") {
			continue
		}
		if _, err := strconv.ParseInt(fields[1], 10, 64); err != nil {
			continue
		}
		bench := trimProcs(fields[0])
		for pair := fields[2:]; len(pair) >= 2; pair = pair[2:] {
			value, err := strconv.ParseFloat(pair[0], 64)
			if err != nil {
				continue
			}
			key := metricKey{Bench: bench, Unit: pair[1]}
			out[key] = append(out[key], value)
		}
	}
	return out, sc.Err()
}

// trimProcs drops the -GOMAXPROCS suffix the test runner appends.
func trimProcs(name string) string {
	i := strings.LastIndexByte(name, '-')
	if i <= 0 {
		return name
	}
	if _, err := strconv.Atoi(name[i+1:]); err != nil {
		return name
	}
	return name[:i]
}

func median(values []float64) float64 {
	sorted := slices.Sorted(slices.Values(values))
	n := len(sorted)
	switch {
	case n == 0:
		return 0
	case n%2 == 1:
		return sorted[n/2]
	default:
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
}
