// Package connector は各マーケットプレイスからの出品収集と正規化を提供する。
package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// fetchResult はHTTPステータスコードに基づくフェッチ結果の分類。
type fetchResult int

const (
	// fetchOK はフェッチ成功（2xx）。
	fetchOK fetchResult = iota
	// fetchStop はリトライ不能なステータス（4xx、429を除く）。
	fetchStop
	// fetchBackoff はリトライ可能なステータス（429/5xx）。
	fetchBackoff
)

const (
	// maxAttempts はリトライを含む最大試行回数。
	maxAttempts = 3
	// initialRetryDelay はリトライの初回遅延。2倍ずつ増加する。
	initialRetryDelay = 500 * time.Millisecond
)

// classifyHTTPStatus はHTTPステータスコードをフェッチ結果に分類する。
func classifyHTTPStatus(statusCode int) fetchResult {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return fetchOK
	case statusCode == 429 || statusCode >= 500:
		return fetchBackoff
	default:
		return fetchStop
	}
}

// Client はコネクタ共通のHTTPクライアント。
// SSRF防止、レート制限、レスポンスサイズ上限、有限リトライを備える。
type Client struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	ssrfGuard   SSRFValidator
	logger      *slog.Logger
	maxBodySize int64
}

// NewClient はClientを生成する。
// ratePerSecはマーケットプレイスへの秒間リクエスト数の上限。
func NewClient(ssrfGuard SSRFValidator, logger *slog.Logger, timeout time.Duration, maxBodySize int64, ratePerSec float64, burst int) *Client {
	return &Client{
		httpClient:  ssrfGuard.NewSafeClient(timeout, maxBodySize),
		limiter:     rate.NewLimiter(rate.Limit(ratePerSec), burst),
		ssrfGuard:   ssrfGuard,
		logger:      logger,
		maxBodySize: maxBodySize,
	}
}

// GetBody はURLをGETしてレスポンスボディを返す。
// SSRF検証 → レート制限待機 → フェッチの順に実行し、
// 429/5xxとネットワークエラーは指数バックオフ付きでリトライする。
func (c *Client) GetBody(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	if err := c.ssrfGuard.ValidateURL(rawURL); err != nil {
		return nil, fmt.Errorf("SSRF検証に失敗しました: %w", err)
	}

	var lastErr error
	delay := initialRetryDelay

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("レート制限の待機が中断されました: %w", err)
		}

		body, result, err := c.fetchOnce(ctx, rawURL, headers)
		if err == nil && result == fetchOK {
			return body, nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("フェッチに失敗しました (status classification: %d)", result)
		}

		if result == fetchStop {
			return nil, lastErr
		}

		if attempt < maxAttempts {
			c.logger.Warn("フェッチをリトライします",
				slog.String("url", rawURL),
				slog.Int("attempt", attempt),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return nil, lastErr
}

// fetchOnce は1回のGETを実行する。
func (c *Client) fetchOnce(ctx context.Context, rawURL string, headers map[string]string) ([]byte, fetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fetchStop, fmt.Errorf("リクエストの生成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "marketscope/1.0")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fetchBackoff, fmt.Errorf("HTTPリクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	result := classifyHTTPStatus(resp.StatusCode)
	if result != fetchOK {
		return nil, result, fmt.Errorf("HTTPステータス %d が返されました: %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, fetchBackoff, fmt.Errorf("レスポンスボディの読み込みに失敗しました: %w", err)
	}
	return body, fetchOK, nil
}

// GetJSON はURLをGETしてJSONレスポンスをoutにデコードする。
func (c *Client) GetJSON(ctx context.Context, rawURL string, headers map[string]string, out any) error {
	body, err := c.GetBody(ctx, rawURL, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("JSONレスポンスのデコードに失敗しました: %w", err)
	}
	return nil
}
