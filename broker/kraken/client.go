// Package kraken is a broker.Broker over the Kraken spot margin REST API.
package kraken

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
	"github.com/rustyeddy/volaccel/broker"
	"github.com/rustyeddy/volaccel/pkg/logger"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.kraken.com"
	// DefaultAsset is the quote asset TradeBalance is reported in.
	DefaultAsset = "ZUSD"

	pairInfoTTL = time.Hour
)

// ErrCredentials is returned by private calls on a client built without
// API credentials.
var ErrCredentials = errors.New("kraken: api key and secret are required")

type Config struct {
	BaseURL   string        `json:"base_url" yaml:"base_url" mapstructure:"base_url"`
	APIKey    string        `json:"-" yaml:"-" mapstructure:"api_key"`
	APISecret string        `json:"-" yaml:"-" mapstructure:"api_secret"`
	Asset     string        `json:"asset" yaml:"asset" mapstructure:"asset"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	// RequestsPerSecond paces every call, public and private.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		Asset:             DefaultAsset,
		Timeout:           15 * time.Second,
		RequestsPerSecond: 1,
	}
}

type Client struct {
	http    *resty.Client
	key     string
	secret  []byte
	asset   string
	limiter *rate.Limiter
	pairs   *cache.Cache
	log     *logger.Logger

	mu        sync.Mutex
	lastNonce int64
}

var _ broker.Broker = (*Client)(nil)

func New(cfg Config, log *logger.Logger) (*Client, error) {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Asset == "" {
		cfg.Asset = def.Asset
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if log == nil {
		log = logger.Nop()
	}

	var secret []byte
	if cfg.APISecret != "" {
		var err error
		secret, err = base64.StdEncoding.DecodeString(cfg.APISecret)
		if err != nil {
			return nil, fmt.Errorf("kraken: api secret is not base64: %w", err)
		}
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "volaccel")

	return &Client{
		http:    client,
		key:     cfg.APIKey,
		secret:  secret,
		asset:   cfg.Asset,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		pairs:   cache.New(pairInfoTTL, 2*pairInfoTTL),
		log:     log.With(logger.StringField("component", "kraken")),
	}, nil
}

type envelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

// APIError carries the error list of a Kraken response.
type APIError struct {
	Method string
	Errors []string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kraken %s: %s", e.Method, strings.Join(e.Errors, "; "))
}

func (c *Client) public(ctx context.Context, method string, params map[string]string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get("/0/public/" + method)
	if err != nil {
		return fmt.Errorf("kraken %s: %w", method, err)
	}
	return decode(method, resp, out)
}

func (c *Client) private(ctx context.Context, method string, form url.Values, out any) error {
	if c.key == "" || len(c.secret) == 0 {
		return ErrCredentials
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if form == nil {
		form = url.Values{}
	}
	nonce := c.nonce()
	form.Set("nonce", nonce)
	body := form.Encode()
	path := "/0/private/" + method

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetHeader("API-Key", c.key).
		SetHeader("API-Sign", Sign(path, nonce, body, c.secret)).
		SetBody(body).
		Post(path)
	if err != nil {
		return fmt.Errorf("kraken %s: %w", method, err)
	}
	return decode(method, resp, out)
}

func decode(method string, resp *resty.Response, out any) error {
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("kraken %s: http status %d", method, resp.StatusCode())
	}
	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("kraken %s: decode: %w", method, err)
	}
	if len(env.Error) > 0 {
		return &APIError{Method: method, Errors: env.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("kraken %s: decode result: %w", method, err)
	}
	return nil
}

// nonce is a strictly increasing millisecond timestamp.
func (c *Client) nonce() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := time.Now().UnixMilli()
	if n <= c.lastNonce {
		n = c.lastNonce + 1
	}
	c.lastNonce = n
	return strconv.FormatInt(n, 10)
}
