package ecommerce

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/erp/stocksync/internal/domain/integration"
)

const tracerName = "github.com/erp/stocksync/internal/infrastructure/ecommerce"

// ErrKeyCRMForeignNextPage indicates a next_page_url on another host.
// The bearer token is never sent outside the configured API host.
var ErrKeyCRMForeignNextPage = errors.New("keycrm: next page URL points outside the API host")

// RateLimiter gates outbound requests. CanMakeRequest does not count the
// request; RecordRequest is called after each successful page.
type RateLimiter interface {
	CanMakeRequest(ctx context.Context) bool
	RecordRequest(ctx context.Context)
}

// KeyCRMAdapter implements integration.StockFetcher for the KeyCRM open API
type KeyCRMAdapter struct {
	config     *KeyCRMConfig
	httpClient *http.Client
	limiter    RateLimiter
	logger     *zap.Logger
	tracer     trace.Tracer
	apiHost    string
}

// NewKeyCRMAdapter creates a new KeyCRM adapter with the given configuration
func NewKeyCRMAdapter(config *KeyCRMConfig, limiter RateLimiter, logger *zap.Logger) (*KeyCRMAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base, _ := url.Parse(config.BaseURL)

	return &KeyCRMAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		limiter: limiter,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
		apiHost: base.Host,
	}, nil
}

// FetchAllStock walks every stocks page and returns the normalized records.
// Any failure discards the records collected so far.
func (a *KeyCRMAdapter) FetchAllStock(ctx context.Context, apiKey string) ([]integration.StockRecord, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, integration.ErrConfig
	}

	ctx, span := a.tracer.Start(ctx, "keycrm.FetchAllStock")
	defer span.End()

	records, pages, err := a.fetchPages(ctx, a.authorizedClient(apiKey))
	span.SetAttributes(attribute.Int("keycrm.pages", pages))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("keycrm.records", len(records)))
	return records, nil
}

func (a *KeyCRMAdapter) fetchPages(ctx context.Context, client *http.Client) ([]integration.StockRecord, int, error) {
	var records []integration.StockRecord
	next := a.config.FirstPageURL()
	pages := 0

	for next != "" {
		pages++
		if !a.limiter.CanMakeRequest(ctx) {
			return nil, pages, fmt.Errorf("%w: page %d", integration.ErrRateLimited, pages)
		}

		body, err := a.doRequest(ctx, client, next)
		if err != nil {
			return nil, pages, fmt.Errorf("page %d: %w", pages, err)
		}

		page, err := parseKeyCRMStockPage(body)
		if err != nil {
			return nil, pages, fmt.Errorf("page %d: %w", pages, err)
		}
		if page.Skipped > 0 {
			a.logger.Warn("Skipped invalid stock items",
				zap.Int("page", pages),
				zap.Int("skipped", page.Skipped))
		}
		records = append(records, page.Records...)
		a.limiter.RecordRequest(ctx)

		next, err = a.resolveNextPage(next, page.NextPageURL)
		if err != nil {
			return nil, pages, fmt.Errorf("page %d: %w", pages, err)
		}
	}

	if len(records) == 0 {
		return nil, pages, integration.ErrNoData
	}

	a.logger.Debug("Fetched stock records",
		zap.Int("pages", pages),
		zap.Int("records", len(records)))
	return records, pages, nil
}

// resolveNextPage resolves a possibly relative next_page_url against the current page.
func (a *KeyCRMAdapter) resolveNextPage(current, next string) (string, error) {
	if next == "" {
		return "", nil
	}
	cur, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("%w: %v", integration.ErrSchema, err)
	}
	ref, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("%w: invalid next_page_url: %v", integration.ErrSchema, err)
	}
	resolved := cur.ResolveReference(ref)
	if resolved.Host != a.apiHost {
		return "", fmt.Errorf("%w: %w", integration.ErrSchema, ErrKeyCRMForeignNextPage)
	}
	return resolved.String(), nil
}

// authorizedClient wraps the base client with a static bearer token.
func (a *KeyCRMAdapter) authorizedClient(apiKey string) *http.Client {
	return &http.Client{
		Timeout: a.httpClient.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: apiKey,
				TokenType:   "Bearer",
			}),
			Base: a.httpClient.Transport,
		},
	}
}

// doRequest performs one authenticated GET and returns the body of a 200 response.
func (a *KeyCRMAdapter) doRequest(ctx context.Context, client *http.Client, pageURL string) ([]byte, error) {
	ctx, span := a.tracer.Start(ctx, "keycrm.GetStockPage")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", integration.ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, a.config.MaxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", integration.ErrTransport, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &integration.HTTPStatusError{StatusCode: resp.StatusCode}
	}
	return body, nil
}

// Ensure KeyCRMAdapter implements StockFetcher
var _ integration.StockFetcher = (*KeyCRMAdapter)(nil)
