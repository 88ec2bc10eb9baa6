package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ------------------- HTTP Client -------------------

// NewRestyClient builds the client used for every fetch
func NewRestyClient(timeout time.Duration) *resty.Client {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "betterlife-pipeline")

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		slog.DebugContext(req.Context(), "start request", "method", req.Method, "url", req.URL)
		return nil
	})
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		slog.DebugContext(res.Request.Context(), "request finished",
			"url", res.Request.URL,
			"status", res.StatusCode(),
			"duration", res.Time(),
		)
		return nil
	})
	return client
}

// ------------------- Page Fetcher -------------------

// Fetcher reads one fixed-size window of survey responses per call
type Fetcher struct {
	client   *resty.Client
	endpoint string
	pageSize int
	cache    ResponseCache
	tracker  *Tracker
}

// NewFetcher creates a fetcher. cache and tracker may be nil.
func NewFetcher(client *resty.Client, endpoint string, pageSize int, cache ResponseCache, tracker *Tracker) *Fetcher {
	if cache == nil {
		cache = NoCache()
	}
	if tracker == nil {
		tracker = NewTracker()
	}
	return &Fetcher{
		client:   client,
		endpoint: endpoint,
		pageSize: pageSize,
		cache:    cache,
		tracker:  tracker,
	}
}

// PageSize is the number of records requested per page
func (f *Fetcher) PageSize() int {
	return f.pageSize
}

// PageURL builds the request URL for a zero-based page. An endpoint
// with {offset} and {limit} placeholders is filled in; any other endpoint
// gets offset and limit query parameters.
func (f *Fetcher) PageURL(page int) (string, error) {
	offset := strconv.Itoa(page * f.pageSize)
	limit := strconv.Itoa(f.pageSize)

	if strings.Contains(f.endpoint, "{offset}") || strings.Contains(f.endpoint, "{limit}") {
		return strings.NewReplacer("{offset}", offset, "{limit}", limit).Replace(f.endpoint), nil
	}

	u, err := url.Parse(f.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", f.endpoint, err)
	}
	q := u.Query()
	q.Set("offset", offset)
	q.Set("limit", limit)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (f *Fetcher) get(reqURL string) func(context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		res, err := f.client.R().SetContext(ctx).Get(reqURL)
		if err != nil {
			return nil, fmt.Errorf("failed to GET %s: %w", reqURL, err)
		}
		if !res.IsSuccess() {
			return nil, &StatusError{URL: reqURL, StatusCode: res.StatusCode()}
		}
		return res.Body(), nil
	}
}

// FetchPage returns the normalized records of one page.
//
// A non-2xx response is retried once. If the retry fails too the page
// comes back empty with a nil error, which the caller sees as the end of
// the stream. Records after that page are not fetched.
func (f *Fetcher) FetchPage(ctx context.Context, page int) ([]GenericRecord, error) {
	reqURL, err := f.PageURL(page)
	if err != nil {
		return nil, err
	}

	body, hit := f.cache.Get(ctx, reqURL)
	if hit {
		f.tracker.CacheHit()
	} else {
		body, err = RetryOnce(ctx, f.get(reqURL), func(error) { f.tracker.Retried() })
		if IsRetryable(err) {
			slog.WarnContext(ctx, "dropping page after failed retry", "page", page, "url", reqURL, "err", err)
			f.tracker.Dropped()
			f.tracker.PageFetched(0)
			return []GenericRecord{}, nil
		}
		if err != nil {
			return nil, err
		}
	}

	rows, err := decodeRecords(body)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", page, err)
	}
	if !hit {
		f.cache.Add(ctx, reqURL, body)
	}

	f.tracker.PageFetched(len(rows))
	return NormalizeRows(rows), nil
}

func decodeRecords(body []byte) ([]GenericRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var rows []GenericRecord
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return rows, nil
}
