package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpdomain "kilometers.ai/authclient/internal/core/domain/http"
)

// RequestFlags holds command-line flags for the request command
type RequestFlags struct {
	Data        string
	Concurrency int
	Headers     []string
}

type requestResult struct {
	index   int
	resp    *httpdomain.Response
	err     error
	traceID string
}

// newRequestCommand creates the request command
func newRequestCommand(container *CLIContainer) *cobra.Command {
	flags := &RequestFlags{}

	cmd := &cobra.Command{
		Use:   "request METHOD PATH",
		Short: "Send authenticated requests through the client",
		Long: `Send one or more identical requests through the authenticated client.

With --concurrency N the requests are issued at the same time, so an expired
token produces a single refresh followed by ordered replays.`,
		Example: `  kmauth request GET /api/profile
  kmauth request POST /api/items --data '{"name":"x"}'
  kmauth request GET /api/items --concurrency 10`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequests(cmd, container, strings.ToUpper(args[0]), args[1], flags)
		},
	}

	cmd.Flags().StringVar(&flags.Data, "data", "", "Request body")
	cmd.Flags().IntVar(&flags.Concurrency, "concurrency", 1, "Number of concurrent requests")
	cmd.Flags().StringArrayVarP(&flags.Headers, "header", "H", nil, "Extra header as 'Name: value'")

	return cmd
}

func runRequests(cmd *cobra.Command, container *CLIContainer, method, path string, flags *RequestFlags) error {
	if flags.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	headers, err := parseHeaders(flags.Headers)
	if err != nil {
		return err
	}
	if container.Location != nil {
		container.Location.Set(path)
	}

	results := make([]requestResult, flags.Concurrency)
	g, ctx := errgroup.WithContext(cmd.Context())
	for i := 0; i < flags.Concurrency; i++ {
		i := i
		g.Go(func() error {
			var body []byte
			if flags.Data != "" {
				body = []byte(flags.Data)
			}
			req := httpdomain.NewRequest(method, path, body)
			for name, value := range headers {
				req.Header.Set(name, value)
			}
			if body != nil && req.Header.Get("Content-Type") == "" {
				req.Header.Set("Content-Type", "application/json")
			}

			resp, err := container.Client.Do(ctx, req)
			results[i] = requestResult{index: i + 1, resp: resp, err: err, traceID: req.TraceID}

			// Failed responses are reported per row; cancellation stops the batch
			if errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	waitErr := g.Wait()

	out := cmd.OutOrStdout()
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
		}
		printResult(out, r, flags.Concurrency == 1)
	}

	if waitErr != nil {
		return fmt.Errorf("requests interrupted: %w", waitErr)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d requests failed", failed, len(results))
	}
	return nil
}

func printResult(w io.Writer, r requestResult, withBody bool) {
	if r.err != nil {
		fmt.Fprintf(w, "#%d %s %s trace=%s\n", r.index, errStyle.Render("error"), describeError(r.err), r.traceID)
		return
	}

	fmt.Fprintf(w, "#%d %s %s (%s) trace=%s\n",
		r.index,
		okStyle.Render(fmt.Sprintf("%d", r.resp.StatusCode)),
		http.StatusText(r.resp.StatusCode),
		r.resp.Latency.Round(time.Millisecond),
		r.traceID,
	)
	if withBody && len(r.resp.Body) > 0 {
		fmt.Fprintln(w, string(r.resp.Body))
	}
}

func parseHeaders(raw []string) (map[string]string, error) {
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q, want 'Name: value'", h)
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return headers, nil
}
