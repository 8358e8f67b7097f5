// Command replay feeds a recorded sample series through the client's store,
// classifier and banner latch and prints what the user would have seen for
// each sample.
//
// Usage:
//
//	go run ./cmd/replay -file samples.json -dismiss 3,7 -scope session
//	go run ./cmd/replay -backend http://localhost:5000 -alerts
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/tideguard-telemetry/internal/adapter/backend"
	"github.com/couchcryptid/tideguard-telemetry/internal/domain"
	"github.com/couchcryptid/tideguard-telemetry/internal/store"
)

// replayStart fixes receipt and dismissal times so output is reproducible.
var replayStart = time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)

type options struct {
	file        string
	backendURL  string
	dismiss     map[int]bool
	scope       domain.DismissalScope
	showAlerts  bool
	predict     float64
	havePredict bool
	timeout     time.Duration
}

func main() {
	file := flag.String("file", "", "path to a JSON array of samples")
	backendURL := flag.String("backend", "", "backend base URL to fetch /api/series from")
	dismiss := flag.String("dismiss", "", "comma-separated sample indices at which to dismiss the banner")
	scope := flag.String("scope", "episode", "dismissal scope: episode or session")
	alerts := flag.Bool("alerts", false, "print the backend's alert log (requires -backend)")
	predict := flag.String("predict", "", "ask the backend to classify a wind speed (requires -backend)")
	timeout := flag.Duration("timeout", 10*time.Second, "backend request timeout")
	flag.Parse()

	opts, err := parseOptions(*file, *backendURL, *dismiss, *scope, *predict, *alerts, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}

	if err := run(context.Background(), opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}
}

func parseOptions(file, backendURL, dismiss, scope, predict string, alerts bool, timeout time.Duration) (options, error) {
	if (file == "") == (backendURL == "") {
		return options{}, errors.New("exactly one of -file or -backend is required")
	}
	if (alerts || predict != "") && backendURL == "" {
		return options{}, errors.New("-alerts and -predict require -backend")
	}

	s, err := domain.ParseDismissalScope(scope)
	if err != nil {
		return options{}, err
	}
	indices, err := parseIndices(dismiss)
	if err != nil {
		return options{}, err
	}

	opts := options{
		file:       file,
		backendURL: backendURL,
		dismiss:    indices,
		scope:      s,
		showAlerts: alerts,
		timeout:    timeout,
	}
	if predict != "" {
		v, err := strconv.ParseFloat(predict, 64)
		if err != nil {
			return options{}, fmt.Errorf("invalid -predict %q", predict)
		}
		opts.predict, opts.havePredict = v, true
	}
	return opts, nil
}

func parseIndices(s string) (map[int]bool, error) {
	out := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i, err := strconv.Atoi(part)
		if err != nil || i < 0 {
			return nil, fmt.Errorf("invalid -dismiss index %q", part)
		}
		out[i] = true
	}
	return out, nil
}

func run(ctx context.Context, opts options, out io.Writer) error {
	var (
		samples  []domain.TelemetrySample
		rejected []error
		client   *backend.Client
		err      error
	)

	if opts.backendURL != "" {
		client = backend.NewClient(opts.backendURL, opts.timeout, slog.New(slog.NewTextHandler(io.Discard, nil)))
		samples, err = client.Series(ctx)
		if err != nil {
			return fmt.Errorf("fetch series: %w", err)
		}
	} else {
		samples, rejected, err = loadFile(opts.file)
		if err != nil {
			return fmt.Errorf("load %s: %w", opts.file, err)
		}
	}

	for _, r := range rejected {
		fmt.Fprintf(out, "REJECTED %v\n", r)
	}

	sum := replay(samples, opts.dismiss, opts.scope, out)
	sum.total += len(rejected)
	sum.rejected += len(rejected)
	sum.print(out)

	if client == nil {
		return nil
	}
	if opts.showAlerts {
		alerts, err := client.Alerts(ctx)
		if err != nil {
			return fmt.Errorf("fetch alerts: %w", err)
		}
		fmt.Fprintf(out, "\nBackend alerts (%d):\n", len(alerts))
		for _, a := range alerts {
			fmt.Fprintf(out, "  %s %-8s %s\n", time.Unix(a.Timestamp, 0).UTC().Format(time.RFC3339), a.Level, a.Message)
		}
	}
	if opts.havePredict {
		p, err := client.Predict(ctx, opts.predict)
		if err != nil {
			return fmt.Errorf("predict: %w", err)
		}
		fmt.Fprintf(out, "\nPredict(%g) = %s\n", opts.predict, p.Status)
	}
	return nil
}

// loadFile parses a JSON array of samples. Invalid entries are returned
// separately and do not stop the load.
func loadFile(path string) ([]domain.TelemetrySample, []error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}

	var samples []domain.TelemetrySample
	var rejected []error
	for i, r := range raw {
		s, err := domain.ParseSample(r)
		if err != nil {
			rejected = append(rejected, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		samples = append(samples, s)
	}
	return samples, rejected, nil
}

type summary struct {
	total      int
	rejected   int
	levels     map[domain.AlertLevel]int
	dismissals int
	shown      int
}

// replay runs the samples through a fresh store and latch as if they had
// arrived one second apart on a live connection.
func replay(samples []domain.TelemetrySample, dismiss map[int]bool, scope domain.DismissalScope, out io.Writer) summary {
	clock := clockwork.NewFakeClockAt(replayStart)

	st := store.New(clock)
	st.SetStatus(domain.StatusConnected)
	latch := domain.NewAlertLatch(scope, clock)

	sum := summary{levels: make(map[domain.AlertLevel]int)}
	for i, s := range samples {
		clock.Advance(time.Second)
		sum.total++

		if err := st.Update(s); err != nil {
			sum.rejected++
			fmt.Fprintf(out, "[%3d] REJECTED %v\n", i, err)
			continue
		}

		level, msg := domain.Classify(s)
		sum.levels[level]++
		state := latch.OnSample(s, level)

		note := ""
		if dismiss[i] {
			if latch.Dismiss() {
				sum.dismissals++
				note = " (dismissed)"
			} else {
				note = " (nothing to dismiss)"
			}
			state = latch.State()
		}
		if latch.Visible(domain.StatusConnected) {
			sum.shown++
		}

		fmt.Fprintf(out, "[%3d] %s wind=%-5g wave=%-4g %-8s banner=%-9s%s %s\n",
			i, s.Time().Format(time.RFC3339), s.WindSpeedKmh, s.WaveHeightM, level, state, note, msg)
	}
	return sum
}

func (s summary) print(out io.Writer) {
	levels := make([]domain.AlertLevel, 0, len(s.levels))
	for l := range s.levels {
		levels = append(levels, l)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Samples: %d (%d rejected)\n", s.total, s.rejected)
	for _, l := range levels {
		fmt.Fprintf(out, "  %-8s %d\n", l, s.levels[l])
	}
	fmt.Fprintf(out, "Banner shown on %d samples, dismissed %d times\n", s.shown, s.dismissals)
}
