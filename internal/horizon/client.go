package horizon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/stellar-expert/operations-notifier/pkg/log"
)

// Source provides ordered ledger transactions, both historical pages and a
// live stream.
type Source interface {
	// FetchTransactions returns one page of transactions starting after
	// cursor. An empty cursor starts from the beginning of the feed.
	FetchTransactions(ctx context.Context, cursor string, limit int, order string) ([]Transaction, error)
	// StreamTransactions subscribes to the live feed and invokes onTx for
	// every new transaction. The returned release function terminates the
	// stream.
	StreamTransactions(ctx context.Context, onTx func(Transaction)) (release func(), err error)
}

const (
	// OrderAsc requests pages oldest first.
	OrderAsc = "asc"

	streamReconnectPause = 2 * time.Second
	streamBufferSize     = 1 << 20
)

// Client implements Source against a Horizon-style HTTP API.
type Client struct {
	base   string
	http   *http.Client
	logger log.Logger
}

// NewClient builds a client for the given base URL. The HTTP client carries
// no global timeout since streaming responses are long-lived.
func NewClient(base string, logger log.Logger) *Client {
	return &Client{
		base:   strings.TrimRight(base, "/"),
		http:   &http.Client{},
		logger: logger.WithComponent("horizon"),
	}
}

// transactionsPage mirrors the HAL envelope of the transactions endpoint.
type transactionsPage struct {
	Embedded struct {
		Records []Transaction `json:"records"`
	} `json:"_embedded"`
}

// FetchTransactions requests one page of historical transactions.
func (c *Client) FetchTransactions(ctx context.Context, cursor string, limit int, order string) ([]Transaction, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("order", order)
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/transactions?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("horizon: fetch transactions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("horizon: fetch transactions: unexpected status %d", resp.StatusCode)
	}
	var page transactionsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("horizon: decode transactions page: %w", err)
	}
	return page.Embedded.Records, nil
}

// StreamTransactions opens the SSE stream starting at the current ledger
// position. The stream reconnects on transport errors until released.
func (c *Client) StreamTransactions(ctx context.Context, onTx func(Transaction)) (func(), error) {
	sctx, cancel := context.WithCancel(ctx)
	go c.streamLoop(sctx, onTx)
	return cancel, nil
}

func (c *Client) streamLoop(ctx context.Context, onTx func(Transaction)) {
	cursor := "now"
	for ctx.Err() == nil {
		last, err := c.streamOnce(ctx, cursor, onTx)
		if last != "" {
			cursor = last
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.logger.Warn("transaction stream interrupted, reconnecting",
				log.Err(err), log.Str("cursor", cursor))
		}
		select {
		case <-time.After(streamReconnectPause):
		case <-ctx.Done():
			return
		}
	}
}

// streamOnce holds one SSE connection open and returns the paging token of
// the last transaction it delivered, so a reconnect resumes without gaps.
func (c *Client) streamOnce(ctx context.Context, cursor string, onTx func(Transaction)) (string, error) {
	q := url.Values{}
	q.Set("cursor", cursor)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/transactions?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("horizon: stream: unexpected status %d", resp.StatusCode)
	}

	var last string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), streamBufferSize)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		// the feed sends quoted keepalive strings like "hello"
		if data == "" || strings.HasPrefix(data, `"`) {
			continue
		}
		var tx Transaction
		if err := json.Unmarshal([]byte(data), &tx); err != nil {
			c.logger.Warn("skipping malformed stream event", log.Err(err))
			continue
		}
		if tx.Hash == "" {
			continue
		}
		last = tx.PagingToken
		onTx(tx)
	}
	return last, scanner.Err()
}
