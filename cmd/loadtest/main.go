// Command loadtest drives refserver with a mix of searches and method
// lookups for a fixed duration and prints per-endpoint latency percentiles,
// status codes and the search cache hit rate.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-concurrency 10] [-duration 30s]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"
)

var queries = []string{
	"upper", "append", "split", "join", "strip", "sort", "keys", "items",
	"replace", "mutate", "copy", "index", "count", "returns a new list",
	"whitespace",
	// misspellings exercise the suggestion path
	"uppr", "lenght", "apend",
}

var lookupIDs = []string{
	"str-upper", "str-split", "list-append", "list-sort",
	"dict-get", "dict-items", "set-add", "no-such-method",
}

type kind int

const (
	kindSearch kind = iota
	kindLookup
)

func (k kind) String() string {
	if k == kindLookup {
		return "lookup"
	}
	return "search"
}

type sample struct {
	kind     kind
	status   int // 0 on transport error
	latency  time.Duration
	cacheHit bool
}

type options struct {
	baseURL     string
	concurrency int
	duration    time.Duration
	lookupEvery int
}

func main() {
	var opts options
	flag.StringVar(&opts.baseURL, "url", "http://localhost:8080", "base URL of refserver")
	flag.IntVar(&opts.concurrency, "concurrency", 10, "number of concurrent workers")
	flag.DurationVar(&opts.duration, "duration", 30*time.Second, "test duration")
	flag.IntVar(&opts.lookupEvery, "lookup-every", 4, "send a method lookup on every Nth request (0 disables)")
	flag.Parse()

	fmt.Printf("target %s, %d workers, %s\n", opts.baseURL, opts.concurrency, opts.duration)

	ctx, cancel := context.WithTimeout(context.Background(), opts.duration)
	defer cancel()

	samples := run(ctx, opts)
	if len(samples) == 0 {
		fmt.Fprintln(os.Stderr, "no requests completed; is refserver running?")
		os.Exit(1)
	}
	report(os.Stdout, samples, opts.duration)
}

// run starts the workers and returns every sample once ctx expires. Each
// worker keeps its own slice, so recording needs no locking.
func run(ctx context.Context, opts options) []sample {
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: opts.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	perWorker := make([][]sample, opts.concurrency)
	var g errgroup.Group
	for w := range opts.concurrency {
		g.Go(func() error {
			for n := w; ctx.Err() == nil; n++ {
				target, k := nextTarget(opts, n)
				s, ok := do(ctx, client, target, k)
				if ok {
					perWorker[w] = append(perWorker[w], s)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return slices.Concat(perWorker...)
}

func do(ctx context.Context, client *http.Client, target string, k kind) (sample, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		panic(fmt.Sprintf("building request for %s: %v", target, err))
	}
	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		// Requests cut off by the end of the run are not failures.
		return sample{kind: k, latency: latency}, ctx.Err() == nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return sample{
		kind:     k,
		status:   resp.StatusCode,
		latency:  latency,
		cacheHit: resp.Header.Get("X-Cache") == "HIT",
	}, true
}

// nextTarget picks the URL for the nth request of a worker.
func nextTarget(opts options, n int) (string, kind) {
	if opts.lookupEvery > 0 && n%opts.lookupEvery == opts.lookupEvery-1 {
		id := lookupIDs[(n/opts.lookupEvery)%len(lookupIDs)]
		return opts.baseURL + "/api/v1/methods/" + url.PathEscape(id), kindLookup
	}
	q := queries[n%len(queries)]
	return opts.baseURL + "/api/v1/search?limit=10&q=" + url.QueryEscape(q), kindSearch
}

func report(out io.Writer, samples []sample, elapsed time.Duration) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	defer tw.Flush()

	fmt.Fprintf(tw, "requests\t%d\t\n", len(samples))
	fmt.Fprintf(tw, "throughput\t%.1f req/s\t\n", float64(len(samples))/elapsed.Seconds())

	statuses := map[int]int{}
	var searches, hits int
	for _, s := range samples {
		statuses[s.status]++
		if s.kind == kindSearch && s.status == http.StatusOK {
			searches++
			if s.cacheHit {
				hits++
			}
		}
	}
	if searches > 0 {
		fmt.Fprintf(tw, "cache hit rate\t%.1f%%\t\n", float64(hits)/float64(searches)*100)
	}

	fmt.Fprintln(tw, "\t\t")
	fmt.Fprintln(tw, "endpoint\tcount\tp50\tp90\tp99\tmax\t")
	for _, k := range []kind{kindSearch, kindLookup} {
		var lat []time.Duration
		for _, s := range samples {
			if s.kind == k && s.status != 0 {
				lat = append(lat, s.latency)
			}
		}
		if len(lat) == 0 {
			continue
		}
		slices.Sort(lat)
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t\n", k, len(lat),
			percentile(lat, 50), percentile(lat, 90), percentile(lat, 99), lat[len(lat)-1])
	}

	fmt.Fprintln(tw, "\t\t")
	fmt.Fprintln(tw, "status\tcount\t")
	codes := make([]int, 0, len(statuses))
	for code := range statuses {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		label := fmt.Sprint(code)
		if code == 0 {
			label = "transport error"
		}
		fmt.Fprintf(tw, "%s\t%d\t\n", label, statuses[code])
	}
}

// percentile uses nearest-rank over an ascending slice.
func percentile(sorted []time.Duration, p int) time.Duration {
	idx := (p*len(sorted)+99)/100 - 1
	return sorted[max(0, min(idx, len(sorted)-1))].Round(time.Microsecond)
}
