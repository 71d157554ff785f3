// Package invoker executes one job's HTTP request with retries, size
// caps, and a timeout, and reports a terminal Result the Log Writer
// appends as one ExecutionLog.
package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"httptrigger/internal/domain"
)

const (
	maxAttempts      = 3
	maxBodyBytes     = domain.MaxResponseBodyBytes
	maxRequestBody   = domain.MaxResponseBodyBytes
	truncationSuffix = domain.TruncationSuffix
)

// Result is the terminal outcome of one attempt sequence; the caller
// (Scheduler Core) stamps JobID/TriggeredManually onto it before
// handing it to the Log Writer, which assigns the log ID.
type Result struct {
	Status        domain.LogStatus
	ResponseCode  *int
	ExecutionTime int64 // milliseconds, start to terminal outcome
	ResponseBody  string
	ErrorMessage  string
	RetryCount    int
}

// Invoke runs the attempt sequence for one job and returns its Result.
// It never returns a Go error: every failure mode — transport or HTTP
// — is folded into Result.
func Invoke(ctx context.Context, job domain.Job, start time.Time) Result {
	headers := parseHeaders(job.Headers)
	body, isJSON := buildBody(job)

	client := &http.Client{Timeout: job.EffectiveTimeout()}

	retries := 0
	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, string(job.Method), job.URL, bytes.NewReader(body))
		if err != nil {
			// Malformed URL and similar request-construction failures are
			// non-retryable.
			return Result{
				Status:        domain.LogFailed,
				ExecutionTime: elapsedMS(start),
				ErrorMessage:  fmt.Sprintf("Network error: request construction failed - %s", err.Error()),
			}
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if isJSON && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := client.Do(req)
		if err != nil {
			if attempt < maxAttempts && isRetryableTransport(err) {
				retries++
				sleep(ctx, backoff(attempt))
				continue
			}
			return Result{
				Status:        domain.LogFailed,
				ExecutionTime: elapsedMS(start),
				ErrorMessage:  networkErrorMessage(err),
				RetryCount:    retries,
			}
		}

		respBody, _ := readCapped(resp.Body, maxBodyBytes)
		resp.Body.Close()

		if isRetryableStatus(resp.StatusCode) && attempt < maxAttempts {
			retries++
			sleep(ctx, backoff(attempt))
			continue
		}

		if resp.StatusCode >= 400 {
			code := resp.StatusCode
			result := Result{
				Status:        domain.LogFailed,
				ResponseCode:  &code,
				ExecutionTime: elapsedMS(start),
				ErrorMessage:  httpErrorMessage(resp, respBody),
			}
			if retries > 0 {
				result.RetryCount = retries
			}
			return result
		}

		code := resp.StatusCode
		return Result{
			Status:        domain.LogSuccess,
			ResponseCode:  &code,
			ExecutionTime: elapsedMS(start),
			ResponseBody:  truncate(string(respBody)),
		}
	}
}

func parseHeaders(raw string) map[string]string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		log.Warn().Err(err).Msg("invalid job headers JSON, using empty map")
		return nil
	}
	return m
}

func buildBody(job domain.Job) (data []byte, isJSON bool) {
	if job.Method != domain.MethodPOST || strings.TrimSpace(job.Body) == "" {
		return nil, false
	}
	raw := []byte(job.Body)
	if len(raw) > maxRequestBody {
		log.Warn().Str("job_id", job.ID).Int("bytes", len(raw)).Msg("request body exceeds cap, truncating")
		raw = raw[:maxRequestBody]
	}
	var js any
	if err := json.Unmarshal(raw, &js); err == nil {
		return raw, true
	}
	return raw, false
}

func backoff(attempt int) time.Duration {
	// 1-indexed: attempt i -> i+1 backoff is 1000*2^(i-1) ms: 1000,2000,4000
	ms := 1000 << (attempt - 1)
	return time.Duration(ms) * time.Millisecond
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func isRetryableStatus(code int) bool {
	return code >= 500 || code == 429
}

func isRetryableTransport(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return false
}

func networkErrorMessage(err error) string {
	code := "ECONNFAILED"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = "ETIMEDOUT"
	case isDNSError(err):
		code = "ENOTFOUND"
	case isConnRefused(err):
		code = "ECONNREFUSED"
	case isConnReset(err):
		code = "ECONNRESET"
	}
	return fmt.Sprintf("Network error: %s - %s", code, err.Error())
}

func isDNSError(err error) bool {
	var e *net.DNSError
	return errors.As(err, &e)
}

func isConnRefused(err error) bool {
	return strings.Contains(err.Error(), "connection refused")
}

func isConnReset(err error) bool {
	return strings.Contains(err.Error(), "connection reset")
}

func httpErrorMessage(resp *http.Response, body []byte) string {
	msg := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	if len(body) > 0 {
		msg += " - " + truncate(string(body))
	}
	return msg
}

func truncate(s string) string {
	if len(s) <= maxBodyBytes {
		return s
	}
	return s[:maxBodyBytes] + truncationSuffix
}

func readCapped(r io.Reader, limit int) ([]byte, error) {
	lr := io.LimitReader(r, int64(limit)+1)
	return io.ReadAll(lr)
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
