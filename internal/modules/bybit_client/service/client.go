// Package service реализует REST-клиент Bybit v5 (linear perpetual).
package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"futures_bot/internal/models"
)

type Config struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	Category   string
	RecvWindow int
	Timeout    time.Duration
}

type Client struct {
	http *http.Client
	cfg  Config
	now  func() time.Time

	mu        sync.RWMutex
	precision map[string]models.InstrumentPrecision
}

func NewClient(cfg Config) *Client {
	if cfg.Category == "" {
		cfg.Category = "linear"
	}
	if cfg.RecvWindow <= 0 {
		cfg.RecvWindow = 5000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		cfg:       cfg,
		now:       time.Now,
		precision: make(map[string]models.InstrumentPrecision),
	}
}

// APIError: ответ с retCode != 0.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string { return fmt.Sprintf("bybit error %d: %s", e.Code, e.Msg) }

type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// sign: HMAC-SHA256(secret, timestamp + apiKey + recvWindow + payload) в hex.
func (c *Client) sign(ts, payload string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(ts + c.cfg.APIKey + strconv.Itoa(c.cfg.RecvWindow) + payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, private bool, out any) error {
	var (
		payload []byte
		err     error
		target  = c.cfg.BaseURL + path
		signed  string
	)
	if len(query) > 0 {
		qs := query.Encode()
		target += "?" + qs
		signed = qs
	}
	if body != nil {
		payload, err = sonic.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal body")
		}
		signed = string(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if private {
		ts := strconv.FormatInt(c.now().UnixMilli(), 10)
		req.Header.Set("X-BAPI-API-KEY", c.cfg.APIKey)
		req.Header.Set("X-BAPI-TIMESTAMP", ts)
		req.Header.Set("X-BAPI-RECV-WINDOW", strconv.Itoa(c.cfg.RecvWindow))
		req.Header.Set("X-BAPI-SIGN", c.sign(ts, signed))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	if resp.StatusCode/100 != 2 {
		return errors.Errorf("%s %s: http %d: %s", method, path, resp.StatusCode, string(raw))
	}

	var env envelope
	if err = sonic.Unmarshal(raw, &env); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	if env.RetCode != 0 {
		return &APIError{Code: env.RetCode, Msg: env.RetMsg}
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err = sonic.Unmarshal(env.Result, out); err != nil {
		return errors.Wrapf(err, "decode %s result", path)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, private bool, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, private, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, true, out)
}

func parseNum(name, s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s %q", name, s)
	}
	return v, nil
}
