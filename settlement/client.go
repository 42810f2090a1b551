package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultTimeout  = 15 * time.Second
	maxResponseBody = 1 << 20
)

// Observer receives the outcome of every backend call.
type Observer interface {
	ObserveBackend(op string, elapsed time.Duration, err error)
}

// Config configures the settlement backend client.
type Config struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Option customises the client.
type Option func(*Client)

// WithObserver registers a per-call observer, typically the metrics bundle.
func WithObserver(observer Observer) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// Client talks to the settlement backend over HTTP/JSON. It never retries.
type Client struct {
	baseURL   string
	authToken string
	timeout   time.Duration
	http      *http.Client
	observer  Observer
}

// NewClient constructs a client with a bounded per-call timeout.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("settlement: base url required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("settlement: invalid base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rt := cfg.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	c := &Client{
		baseURL:   base,
		authToken: strings.TrimSpace(cfg.AuthToken),
		timeout:   timeout,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(rt),
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// StartBattle creates a battle on the backend.
func (c *Client) StartBattle(ctx context.Context, req StartBattleRequest) (*StartBattleResponse, error) {
	var out StartBattleResponse
	if err := c.do(ctx, "startbattle", http.MethodPost, "/startbattle", req, &out); err != nil {
		return nil, err
	}
	if out.BattleID.IsZero() {
		return nil, &Error{Op: "startbattle", Kind: KindTransport, Message: "response missing battleId"}
	}
	return &out, nil
}

// Vote records a single paid vote.
func (c *Client) Vote(ctx context.Context, req VoteRequest) (*VoteResponse, error) {
	var out VoteResponse
	if err := c.do(ctx, "votetrack", http.MethodPost, "/votetrack", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Votes fetches the per-track vote counts.
func (c *Client) Votes(ctx context.Context, id BattleID) (*VoteTally, error) {
	var out VoteTally
	if err := c.do(ctx, "votes", http.MethodGet, battlePath(id, "votes"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Details fetches the on-chain battle record.
func (c *Client) Details(ctx context.Context, id BattleID) (*BattleDetails, error) {
	var out BattleDetails
	if err := c.do(ctx, "details", http.MethodGet, battlePath(id, "details"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TotalVoters fetches the number of distinct voters.
func (c *Client) TotalVoters(ctx context.Context, id BattleID) (*VoterCount, error) {
	var out VoterCount
	if err := c.do(ctx, "voters", http.MethodGet, battlePath(id, "voters"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VotersList fetches the voter addresses.
func (c *Client) VotersList(ctx context.Context, id BattleID) (*VoterList, error) {
	var out VoterList
	if err := c.do(ctx, "votersList", http.MethodGet, battlePath(id, "votersList"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Winner closes the battle and returns the winner and settlement report.
func (c *Client) Winner(ctx context.Context, id BattleID) (*WinnerReport, error) {
	var out WinnerReport
	if err := c.do(ctx, "winner", http.MethodGet, battlePath(id, "winner"), nil, &out); err != nil {
		return nil, err
	}
	if out.BattleID.IsZero() {
		out.BattleID = id
	}
	return &out, nil
}

// Leaderboard fetches the backend-ranked standings for a battle.
func (c *Client) Leaderboard(ctx context.Context, id BattleID) (*Leaderboard, error) {
	var out Leaderboard
	path := "/leaderboard/" + url.PathEscape(id.String())
	if err := c.do(ctx, "leaderboard", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Balance fetches the contract balance.
func (c *Client) Balance(ctx context.Context) (*ContractBalance, error) {
	var out ContractBalance
	if err := c.do(ctx, "balance", http.MethodGet, "/balance", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TransferToOwner moves funds to the contract owner. A 2xx response without
// success=true is treated as a rejection.
func (c *Client) TransferToOwner(ctx context.Context, req TransferRequest) (*TransferResponse, error) {
	var out TransferResponse
	if err := c.do(ctx, "transferToOwner", http.MethodPost, "/transferToOwner", req, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		msg := strings.TrimSpace(out.Error)
		if msg == "" {
			msg = "transfer not confirmed"
		}
		return nil, &Error{Op: "transferToOwner", Kind: KindRejected, Message: msg}
	}
	return &out, nil
}

func battlePath(id BattleID, suffix string) string {
	return "/battle/" + url.PathEscape(id.String()) + "/" + suffix
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) (err error) {
	started := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveBackend(op, time.Since(started), err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		buf, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			return fmt.Errorf("settlement %s: encode request: %w", op, marshalErr)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("settlement %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: op, Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return &Error{Op: op, Kind: KindTransport, Status: resp.StatusCode, Err: err}
	}

	var eb errorBody
	parsedErr := json.Unmarshal(raw, &eb) == nil

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		code := ""
		if parsedErr {
			code = eb.Code
			switch {
			case strings.TrimSpace(eb.Error) != "":
				msg = strings.TrimSpace(eb.Error)
			case strings.TrimSpace(eb.Message) != "":
				msg = strings.TrimSpace(eb.Message)
			}
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &Error{Op: op, Kind: KindRejected, Status: resp.StatusCode, Code: code, Message: msg}
	}
	if parsedErr && strings.TrimSpace(eb.Error) != "" {
		return &Error{Op: op, Kind: KindRejected, Status: resp.StatusCode, Code: eb.Code, Message: strings.TrimSpace(eb.Error)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Op: op, Kind: KindTransport, Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}
