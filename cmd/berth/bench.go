package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"charterhub/berth/pkg/cli"
	"charterhub/berth/pkg/server/api"
	"charterhub/berth/pkg/storage"
)

// errInconsistent is returned when the slot's booked count does not match
// the reservations the server acknowledged.
var errInconsistent = errors.New("booked count does not match committed reservations")

type benchOptions struct {
	target      string
	slot        storage.SlotKey
	capacity    int
	requests    int
	concurrency int
	units       int
	token       string
	timeout     time.Duration
}

// latencySummary holds request latency percentiles in milliseconds.
type latencySummary struct {
	Min  float64 `json:"min_ms"`
	Mean float64 `json:"mean_ms"`
	P50  float64 `json:"p50_ms"`
	P95  float64 `json:"p95_ms"`
	P99  float64 `json:"p99_ms"`
	Max  float64 `json:"max_ms"`
}

// benchResult is the outcome of one bench run.
type benchResult struct {
	Target          string         `json:"target"`
	Slot            string         `json:"slot"`
	Requests        int            `json:"requests"`
	Concurrency     int            `json:"concurrency"`
	DurationSeconds float64        `json:"duration_seconds"`
	Throughput      float64        `json:"throughput_rps"`
	StatusCodes     map[int]int    `json:"status_codes"`
	TransportErrors int            `json:"transport_errors"`
	Created         int            `json:"created"`
	Capacity        int            `json:"capacity"`
	BookedBefore    int            `json:"booked_before"`
	BookedAfter     int            `json:"booked_after"`
	Consistent      bool           `json:"consistent"`
	Latency         latencySummary `json:"latency"`
}

func (r *benchResult) Header() []string {
	return []string{"METRIC", "VALUE"}
}

func (r *benchResult) Rows() [][]string {
	rows := [][]string{
		{"target", r.Target},
		{"slot", r.Slot},
		{"requests", strconv.Itoa(r.Requests)},
		{"concurrency", strconv.Itoa(r.Concurrency)},
		{"duration", fmt.Sprintf("%.2fs", r.DurationSeconds)},
		{"throughput", fmt.Sprintf("%.1f req/s", r.Throughput)},
	}

	codes := make([]int, 0, len(r.StatusCodes))
	for code := range r.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		rows = append(rows, []string{"status " + strconv.Itoa(code), strconv.Itoa(r.StatusCodes[code])})
	}
	if r.TransportErrors > 0 {
		rows = append(rows, []string{"transport errors", strconv.Itoa(r.TransportErrors)})
	}

	return append(rows,
		[]string{"created", strconv.Itoa(r.Created)},
		[]string{"booked", fmt.Sprintf("%d -> %d of %d", r.BookedBefore, r.BookedAfter, r.Capacity)},
		[]string{"consistent", strconv.FormatBool(r.Consistent)},
		[]string{"latency p50/p95/p99", fmt.Sprintf("%.1f/%.1f/%.1f ms", r.Latency.P50, r.Latency.P95, r.Latency.P99)},
		[]string{"latency min/mean/max", fmt.Sprintf("%.1f/%.1f/%.1f ms", r.Latency.Min, r.Latency.Mean, r.Latency.Max)},
	)
}

func newBenchCmd(root *rootOptions) *cobra.Command {
	opts := benchOptions{}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Fire concurrent reservations at a running server",
		Long: `Send concurrent reservation requests for one slot to a running berth
server and report status codes and latency.

After the run the slot is read back and its booked count is compared with
the number of 201 responses. A mismatch exits non-zero.

Examples:
  # Create a 50 unit slot and contend for it with 20 clients
  berth bench --target http://localhost:8080 --capacity 50 --requests 500 --concurrency 20

  # Book an existing slot as an authenticated caller
  berth bench --captain cap-7 --date 2026-11-02 --time 09:00 --token "$TOKEN"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, _, err := root.formatter()
			if err != nil {
				return err
			}
			if err := opts.validate(); err != nil {
				return cli.NewConfigError("bench", err.Error())
			}

			ctx, stop := cli.SignalContext(cmd.Context())
			defer stop()

			client := &http.Client{Timeout: opts.timeout}
			progress := cli.NewProgressReporter(cmd.ErrOrStderr())

			result, err := runBench(ctx, client, opts, progress)
			if result != nil {
				if ferr := formatter.FormatTo(cmd.OutOrStdout(), result); ferr != nil {
					return ferr
				}
			}
			if err != nil {
				return cli.NewCommandError("bench", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.target, "target", "http://localhost:8080", "server base URL")
	cmd.Flags().StringVar(&opts.slot.CaptainID, "captain", "bench", "captain ID")
	cmd.Flags().StringVar(&opts.slot.Date, "date", time.Now().UTC().AddDate(0, 0, 1).Format(storage.DateLayout), "slot date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.slot.Time, "time", "12:00", "slot time (HH:MM)")
	cmd.Flags().IntVar(&opts.capacity, "capacity", 0, "create or resize the slot to this capacity first (0 uses the existing slot)")
	cmd.Flags().IntVar(&opts.requests, "requests", 100, "number of reservation requests")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 10, "concurrent clients")
	cmd.Flags().IntVar(&opts.units, "units", 1, "units per reservation")
	cmd.Flags().StringVar(&opts.token, "token", "", "bearer token sent with every request")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "per-request timeout")
	return cmd
}

func (o benchOptions) validate() error {
	var errs []error
	if err := o.slot.Validate(); err != nil {
		errs = append(errs, err)
	}
	if o.requests < 1 {
		errs = append(errs, fmt.Errorf("--requests must be at least 1, got %d", o.requests))
	}
	if o.concurrency < 1 {
		errs = append(errs, fmt.Errorf("--concurrency must be at least 1, got %d", o.concurrency))
	}
	if o.units < 1 {
		errs = append(errs, fmt.Errorf("--units must be at least 1, got %d", o.units))
	}
	if o.capacity < 0 {
		errs = append(errs, fmt.Errorf("--capacity must be non-negative, got %d", o.capacity))
	}
	return errors.Join(errs...)
}

// benchClient issues API requests against one server.
type benchClient struct {
	http   *http.Client
	target string
	token  string
}

func (c *benchClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.target+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.http.Do(req)
}

func (c *benchClient) slot(ctx context.Context, method string, key storage.SlotKey, body any) (*api.SlotResponse, error) {
	path := "/v1/slots"
	if method == http.MethodGet {
		path += "/" + key.CaptainID + "/" + key.Date + "/" + key.Time
	}

	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr api.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return nil, fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, apiErr.Error)
	}

	var slot api.SlotResponse
	if err := json.NewDecoder(resp.Body).Decode(&slot); err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return &slot, nil
}

func runBench(ctx context.Context, httpClient *http.Client, opts benchOptions, progress cli.ProgressReporter) (*benchResult, error) {
	client := &benchClient{
		http:   httpClient,
		target: strings.TrimRight(opts.target, "/"),
		token:  opts.token,
	}

	if opts.capacity > 0 {
		_, err := client.slot(ctx, http.MethodPost, opts.slot, api.SlotRequest{
			CaptainID: opts.slot.CaptainID,
			Date:      opts.slot.Date,
			Time:      opts.slot.Time,
			Capacity:  opts.capacity,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to prepare slot: %w", err)
		}
	}

	before, err := client.slot(ctx, http.MethodGet, opts.slot, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read slot: %w", err)
	}

	result := &benchResult{
		Target:       client.target,
		Slot:         opts.slot.String(),
		Requests:     opts.requests,
		Concurrency:  opts.concurrency,
		StatusCodes:  make(map[int]int),
		BookedBefore: before.BookedCount,
	}

	var (
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, opts.requests)
		jobs      = make(chan int)
		wg        sync.WaitGroup
	)

	progress.Start(int64(opts.requests))
	start := time.Now()

	for w := 0; w < opts.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				reqStart := time.Now()
				status, err := client.reserve(ctx, opts, i)
				latency := time.Since(reqStart)

				mu.Lock()
				if err != nil {
					result.TransportErrors++
				} else {
					result.StatusCodes[status]++
					latencies = append(latencies, latency)
				}
				mu.Unlock()

				progress.Increment(err == nil && status < http.StatusInternalServerError)
			}
		}()
	}

feed:
	for i := 0; i < opts.requests; i++ {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	progress.Finish()

	elapsed := time.Since(start)
	result.DurationSeconds = elapsed.Seconds()
	result.Created = result.StatusCodes[http.StatusCreated]
	if elapsed > 0 {
		result.Throughput = float64(opts.requests) / elapsed.Seconds()
	}
	result.Latency = summarizeLatencies(latencies)

	after, err := client.slot(context.WithoutCancel(ctx), http.MethodGet, opts.slot, nil)
	if err != nil {
		return result, fmt.Errorf("failed to read slot after run: %w", err)
	}
	result.Capacity = after.Capacity
	result.BookedAfter = after.BookedCount
	result.Consistent = after.BookedCount == before.BookedCount+result.Created*opts.units &&
		after.BookedCount <= after.Capacity

	if !result.Consistent {
		return result, fmt.Errorf("%w: %d before, %d after, %d created of %d units",
			errInconsistent, before.BookedCount, after.BookedCount, result.Created, opts.units)
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}

func (c *benchClient) reserve(ctx context.Context, opts benchOptions, i int) (int, error) {
	resp, err := c.do(ctx, http.MethodPost, "/v1/reservations", api.ReservationRequest{
		CaptainID:  opts.slot.CaptainID,
		Date:       opts.slot.Date,
		TimeSlot:   opts.slot.Time,
		Units:      opts.units,
		CustomerID: fmt.Sprintf("bench-%d", i),
	})
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode, nil
}

func summarizeLatencies(latencies []time.Duration) latencySummary {
	if len(latencies) == 0 {
		return latencySummary{}
	}

	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}

	return latencySummary{
		Min:  ms(sorted[0]),
		Mean: ms(sum / time.Duration(len(sorted))),
		P50:  ms(percentile(sorted, 0.50)),
		P95:  ms(percentile(sorted, 0.95)),
		P99:  ms(percentile(sorted, 0.99)),
		Max:  ms(sorted[len(sorted)-1]),
	}
}

// percentile uses the nearest-rank method on sorted.
func percentile(sorted []time.Duration, p float64) time.Duration {
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	return sorted[max(0, min(rank, len(sorted)-1))]
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
