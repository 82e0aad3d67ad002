package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"hostelcart/internal/config"
	"hostelcart/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Client is the HTTP client for the external booking backend. It covers the
// three calls the checkout core needs: availability lookup, pricing preview
// and atomic multi-booking creation.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryPolicy
	logger     *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

// OrderRequest is the atomic order creation payload. The backend either
// persists every booking under one order or rejects the whole request.
type OrderRequest struct {
	Bookings    []models.BookingPayload `json:"bookings"`
	TotalAmount float64                 `json:"totalAmount"`
}

type orderResponse struct {
	OrderID string `json:"orderId"`
}

type previewRequest struct {
	Price      float64 `json:"price"`
	CouponCode string  `json:"couponCode,omitempty"`
}

type previewResponse struct {
	BaseAmount     float64 `json:"baseAmount"`
	Tax            float64 `json:"tax"`
	TaxPercent     float64 `json:"taxPercent"`
	CouponCode     string  `json:"couponCode"`
	CouponDiscount float64 `json:"couponDiscount"`
	CouponApplied  bool    `json:"couponApplied"`
	TotalAmount    float64 `json:"totalAmount"`
}

type availabilityResponse struct {
	AvailableSeats int `json:"availableSeats"`
	BookedSeats    int `json:"bookedSeats"`
}

func New(cfg config.BackendConfig, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		retry:   RetryPolicy{MaxRetries: cfg.MaxRetries},
		logger:  logger,
	}
}

// UseRedisCache configures optional Redis caching for availability lookups.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// FetchAvailability returns how many seats a room can still accept.
// Transient failures on this idempotent GET are retried with backoff.
func (c *Client) FetchAvailability(ctx context.Context, roomID int64) (*models.RoomAvailability, error) {
	endpoint := fmt.Sprintf("%s/api/v1/rooms/%d/availability", c.baseURL, roomID)
	cacheKey := fmt.Sprintf("availability:%d", roomID)

	var resp availabilityResponse
	if c.readCache(ctx, cacheKey, &resp) {
		return c.toAvailability(roomID, resp), nil
	}

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxRetries+1; attempt++ {
		lastErr = c.doJSON(ctx, http.MethodGet, endpoint, nil, "", &resp)
		if lastErr == nil {
			c.writeCache(ctx, cacheKey, resp)
			return c.toAvailability(roomID, resp), nil
		}
		if attempt <= c.retry.MaxRetries {
			select {
			case <-time.After(c.retry.NextDelay(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

// QuotePreview asks the backend to price the aggregate cart subtotal,
// optionally applying a coupon code. Never cached and never retried; a stale
// quote is worse than no quote.
func (c *Client) QuotePreview(ctx context.Context, subtotal float64, couponCode string) (*models.PricingPreview, error) {
	endpoint := c.baseURL + "/api/v1/pricing/preview"

	var resp previewResponse
	err := c.doJSON(ctx, http.MethodPost, endpoint, previewRequest{Price: subtotal, CouponCode: couponCode}, "", &resp)
	if err != nil {
		return nil, err
	}
	return &models.PricingPreview{
		BaseAmount:     resp.BaseAmount,
		Tax:            resp.Tax,
		TaxPercent:     resp.TaxPercent,
		CouponCode:     resp.CouponCode,
		CouponDiscount: resp.CouponDiscount,
		CouponApplied:  resp.CouponApplied,
		TotalAmount:    resp.TotalAmount,
	}, nil
}

// CreateOrder issues the single atomic order creation call. The idempotency
// token lets the backend deduplicate a retried submission after a timeout.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest, idempotencyToken string) (string, error) {
	endpoint := c.baseURL + "/api/v1/orders"

	var resp orderResponse
	if err := c.doJSON(ctx, http.MethodPost, endpoint, req, idempotencyToken, &resp); err != nil {
		return "", err
	}
	if resp.OrderID == "" {
		return "", fmt.Errorf("backend returned empty order id")
	}
	return resp.OrderID, nil
}

// InvalidateAvailability drops a cached availability entry, forcing the next
// lookup to hit the backend.
func (c *Client) InvalidateAvailability(ctx context.Context, roomID int64) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, fmt.Sprintf("availability:%d", roomID)).Err()
}

func (c *Client) toAvailability(roomID int64, resp availabilityResponse) *models.RoomAvailability {
	return &models.RoomAvailability{
		RoomID:         roomID,
		AvailableSeats: resp.AvailableSeats,
		BookedSeats:    resp.BookedSeats,
		FetchedAt:      time.Now(),
	}
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.cacheTTL).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("availability cache write failed")
	}
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body any, idempotencyToken string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if idempotencyToken != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var failure apiError
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return mapAPIError(resp.StatusCode, failure)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
