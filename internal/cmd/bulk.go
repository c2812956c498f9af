package cmd

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/typedrest/typedrest/internal/dryrun"
	"github.com/typedrest/typedrest/internal/iocontext"
	"github.com/typedrest/typedrest/internal/rest"
)

// DefaultConcurrency is the default number of concurrent workers
const DefaultConcurrency = 5

// bulkLine is one request of a JSONL batch.
type bulkLine struct {
	Method   string            `json:"method"`
	Path     string            `json:"path"`
	Params   any               `json:"params,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	Encoding string            `json:"encoding,omitempty"`
}

// BulkResult represents the outcome of a single bulk request
type BulkResult struct {
	Line    int    `json:"line"`
	Method  string `json:"method"`
	Path    string `json:"path"`
	Status  int    `json:"status,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type bulkJob struct {
	line int
	req  rest.Request
}

// readBulkJobs parses JSONL requests. Blank lines and lines starting with #
// are skipped.
func readBulkJobs(r io.Reader) ([]bulkJob, error) {
	var jobs []bulkJob
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var line bulkLine
		if err := decodeJSON([]byte(text), &line); err != nil {
			return nil, fmt.Errorf("line %d: invalid JSON: %w", n, err)
		}
		req, err := line.request()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		jobs = append(jobs, bulkJob{line: n, req: req})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read requests: %w", err)
	}
	return jobs, nil
}

func (l bulkLine) request() (rest.Request, error) {
	method := strings.ToUpper(strings.TrimSpace(l.Method))
	if method == "" {
		method = http.MethodGet
	}
	if !validMethods[method] {
		return rest.Request{}, fmt.Errorf("invalid HTTP method %q", l.Method)
	}
	if strings.TrimSpace(l.Path) == "" {
		return rest.Request{}, fmt.Errorf("path is required")
	}
	encoding, err := rest.ParseEncoding(l.Encoding)
	if err != nil {
		return rest.Request{}, err
	}
	req := rest.Request{Method: method, Params: l.Params, Encoding: encoding}
	if strings.HasPrefix(l.Path, "http://") || strings.HasPrefix(l.Path, "https://") {
		req.URL = l.Path
	} else {
		req.Path = l.Path
	}
	if len(l.Headers) > 0 {
		req.Header = make(http.Header, len(l.Headers))
		for k, v := range l.Headers {
			req.Header.Set(k, v)
		}
	}
	return req, nil
}

// runBulk executes requests concurrently with bounded parallelism. With
// failFast the first failure cancels the requests still waiting.
func runBulk(
	ctx context.Context,
	jobs []bulkJob,
	concurrency int64,
	failFast bool,
	progress bool,
	errOut io.Writer,
	operation func(ctx context.Context, req rest.Request) (*rest.Response, any, error),
) []BulkResult {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if errOut == nil {
		errOut = io.Discard
	}

	sem := semaphore.NewWeighted(concurrency)
	var mu sync.Mutex
	results := make([]BulkResult, 0, len(jobs))
	total := len(jobs)
	var done int64

	g, ctx := errgroup.WithContext(ctx)

	for _, job := range jobs {
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)

			if ctx.Err() != nil {
				return nil
			}

			resp, data, err := operation(ctx, job.req)

			result := BulkResult{
				Line:    job.line,
				Method:  job.req.Method,
				Path:    job.req.Path,
				Success: err == nil,
				Data:    data,
			}
			if result.Path == "" {
				result.Path = job.req.URL
			}
			if resp != nil {
				result.Status = resp.StatusCode
			}
			if err != nil {
				result.Error = err.Error()
			}

			mu.Lock()
			results = append(results, result)
			mu.Unlock()

			if progress && total > 0 {
				current := atomic.AddInt64(&done, 1)
				mu.Lock()
				_, _ = fmt.Fprintf(errOut, "\rProcessed %d/%d", current, total)
				mu.Unlock()
			}

			if err != nil && failFast {
				return err
			}
			return nil
		})
	}

	_ = g.Wait()

	if progress && total > 0 {
		mu.Lock()
		_, _ = fmt.Fprintf(errOut, "\rProcessed %d/%d\n", atomic.LoadInt64(&done), total)
		mu.Unlock()
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Line < results[j].Line })
	return results
}

// countResults returns success and failure counts from bulk results
func countResults(results []BulkResult) (success, failure int) {
	for _, r := range results {
		if r.Success {
			success++
		} else {
			failure++
		}
	}
	return
}

func newBulkCmd() *cobra.Command {
	var inputFile string
	var concurrency int64
	var failFast bool
	var progress bool
	var withData bool

	cmd := &cobra.Command{
		Use:   "bulk [file]",
		Short: "Send a batch of requests from JSONL",
		Long: `Send a batch of requests read from a JSONL file (or - for stdin).

Each line is an object with "method", "path" and optional "params",
"headers" and "encoding" members. Requests run concurrently.`,
		Example: `  printf '%s\n' '{"path":"/users/1"}' '{"method":"DELETE","path":"/users/2"}' | trest bulk -
  trest bulk requests.jsonl --concurrency 10 --fail-fast --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if inputFile != "" {
					return fmt.Errorf("--input cannot be used with a file argument")
				}
				inputFile = args[0]
			}
			if inputFile == "" {
				inputFile = "-"
			}
			if concurrency < 1 {
				return fmt.Errorf("--concurrency must be >= 1")
			}

			data, err := iocontext.ReadInput(cmd.Context(), inputFile)
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}
			jobs, err := readBulkJobs(bytes.NewReader(data))
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				return fmt.Errorf("no requests to send")
			}

			factory := newClientFactory()
			s, err := factory.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			opts := factory.feedbackOptions()
			preview := dryrun.IsEnabled(cmd.Context())
			results := runBulk(cmd.Context(), jobs, concurrency, failFast, progress && !isJSON(cmd),
				iocontext.GetIO(cmd.Context()).ErrOut,
				func(ctx context.Context, req rest.Request) (*rest.Response, any, error) {
					if preview {
						httpReq, err := s.client.Build(ctx, req)
						if err != nil {
							return nil, nil, err
						}
						p, err := dryrun.FromRequest(httpReq, req.Encoding, req.Params)
						return nil, p, err
					}
					req.Options |= opts
					resp, result := rest.Do[any, *requestFailure](ctx, s.client, req)
					value, err := settleResult(resp, result)
					if raw, ok := value.([]byte); ok {
						value = string(raw)
					}
					if !withData {
						value = nil
					}
					return resp, value, err
				})

			succeeded, failed := countResults(results)
			skipped := len(jobs) - len(results)

			if isJSON(cmd) {
				if err := printJSON(cmd, map[string]any{
					"results":   results,
					"succeeded": succeeded,
					"failed":    failed,
					"skipped":   skipped,
				}); err != nil {
					return err
				}
			} else {
				f := newFormatter(cmd)
				f.StartTable([]string{"LINE", "METHOD", "PATH", "STATUS", "RESULT"})
				for _, r := range results {
					outcome := "ok"
					if !r.Success {
						outcome = r.Error
					}
					f.Row(strconv.Itoa(r.Line), r.Method, r.Path, strconv.Itoa(r.Status), outcome)
				}
				if err := f.EndTable(); err != nil {
					return err
				}
				printLine(cmd, "%d succeeded, %d failed, %d skipped", succeeded, failed, skipped)
			}

			if failed > 0 || skipped > 0 {
				return fmt.Errorf("%d of %d requests did not succeed", failed+skipped, len(jobs))
			}
			return nil
		}),
	}

	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "JSONL file of requests (use - for stdin)")
	cmd.Flags().Int64VarP(&concurrency, "concurrency", "c", DefaultConcurrency, "Maximum requests in flight")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "Stop scheduling requests after the first failure")
	cmd.Flags().BoolVar(&progress, "progress", false, "Show progress on stderr")
	cmd.Flags().BoolVar(&withData, "data", false, "Include decoded response payloads in the results")
	return cmd
}
