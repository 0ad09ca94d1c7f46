package problems

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/arnavm/leetbattle/internal/battle"
)

// Problem is a coding problem a round can be played against.
type Problem struct {
	Title      string            `json:"title"`
	Difficulty battle.Difficulty `json:"difficulty"`
}

// Client picks problems from a remote JSON endpoint. With no base URL
// configured it falls back to a small built-in list.
type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 8},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Random returns a problem for the next round.
func (c *Client) Random(ctx context.Context) (*Problem, error) {
	if c.baseURL == "" {
		p := builtin[rand.Intn(len(builtin))]
		return &p, nil
	}
	var p Problem
	if err := c.getJSON(ctx, "/random", &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Title) == "" {
		return nil, fmt.Errorf("problem api returned empty title")
	}
	return &p, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.baseURL + path)

	attempts := c.retryMax
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err == nil {
			status := resp.StatusCode()
			if status >= 200 && status < 300 {
				return json.Unmarshal(resp.Body(), out)
			}
			err = fmt.Errorf("problem api error: status=%d", status)
			if !shouldRetryStatus(status) {
				return err
			}
		}
		lastErr = err
		if attempt < attempts {
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
		}
	}
	return lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

var builtin = []Problem{
	{Title: "Two Sum", Difficulty: battle.DifficultyEasy},
	{Title: "Valid Parentheses", Difficulty: battle.DifficultyEasy},
	{Title: "Merge Intervals", Difficulty: battle.DifficultyMedium},
	{Title: "LRU Cache", Difficulty: battle.DifficultyMedium},
	{Title: "Word Ladder", Difficulty: battle.DifficultyHard},
	{Title: "Median of Two Sorted Arrays", Difficulty: battle.DifficultyHard},
}
