package adapter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

const maxResponseBytes = 10 << 20 // 10MB

// wireRequest is a fully built backend request ready to send.
type wireRequest struct {
	URL     string
	Headers http.Header
	Body    []byte
}

// doRequest sends a single-shot request and returns the (decompressed)
// response body and elapsed milliseconds. Non-2xx statuses become a
// StatusError, deadline hits a TimeoutError.
func doRequest(ctx context.Context, client *http.Client, wr *wireRequest, timeout time.Duration) ([]byte, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wr.URL, bytes.NewReader(wr.Body))
	if err != nil {
		return nil, 0, err
	}
	req.Header = wr.Headers

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, time.Since(start).Milliseconds(), &TimeoutError{Timeout: timeout}
		}
		return nil, time.Since(start).Milliseconds(), err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, elapsed, &TimeoutError{Timeout: timeout}
		}
		return nil, elapsed, err
	}

	raw = decompress(raw, resp.Header.Get("Content-Encoding"))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, elapsed, &StatusError{StatusCode: resp.StatusCode, Body: truncateBody(raw)}
	}
	return raw, elapsed, nil
}

// doStreamRequest opens a streaming request and hands the body to the
// caller. The returned cancel func must be called when reading is done.
func doStreamRequest(ctx context.Context, client *http.Client, wr *wireRequest, timeout time.Duration) (io.ReadCloser, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wr.URL, bytes.NewReader(wr.Body))
	if err != nil {
		cancel()
		return nil, nil, err
	}
	req.Header = wr.Headers
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		cancel()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, &TimeoutError{Timeout: timeout}
		}
		return nil, nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()
		cancel()
		raw = decompress(raw, resp.Header.Get("Content-Encoding"))
		return nil, nil, &StatusError{StatusCode: resp.StatusCode, Body: truncateBody(raw)}
	}
	return resp.Body, cancel, nil
}

// wrapStreamErr maps a mid-stream read failure onto the timeout error when
// the deadline was the cause.
func wrapStreamErr(err error, timeout time.Duration) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Timeout: timeout}
	}
	return err
}
