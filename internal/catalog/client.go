// Package catalog reads candidate tokens from the pump-fun backend.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/harmony-one/pump-fun-trading-bot/internal/domain"
)

const (
	DefaultURL     = "https://pump-fun-backend.fly.dev"
	DefaultTimeout = 12 * time.Second
	DefaultLimit   = 100
)

// ErrCatalog marks every failure to fetch or decode the token list.
var ErrCatalog = errors.New("token catalog")

type Client struct {
	host       string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(host string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		host = DefaultURL
	}
	host = strings.TrimRight(host, "/")

	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("catalog url parse %q: %w", host, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("catalog url must be http(s), got %q", host)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		host:       host,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Filter mirrors the backend query parameters. Zero Limit means DefaultLimit.
type Filter struct {
	Search string
	Limit  int
	Offset int
}

func (f Filter) query() url.Values {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	q := url.Values{}
	q.Set("search", strings.TrimSpace(f.Search))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	return q
}

// creatorRef accepts the creator either as a plain address string or as an
// embedded user object carrying an address.
type creatorRef string

func (c *creatorRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = creatorRef(strings.TrimSpace(s))
		return nil
	}
	if b[0] == '{' {
		var obj struct {
			Address string `json:"address"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*c = creatorRef(strings.TrimSpace(obj.Address))
		return nil
	}
	// Numeric user ids and similar carry no address.
	*c = ""
	return nil
}

type tokenRecord struct {
	Address string     `json:"address"`
	Name    string     `json:"name"`
	Symbol  string     `json:"symbol"`
	Creator creatorRef `json:"creator"`
	User    creatorRef `json:"user"`
}

func (r tokenRecord) creator() common.Address {
	for _, raw := range []creatorRef{r.Creator, r.User} {
		if s := string(raw); common.IsHexAddress(s) {
			return common.HexToAddress(s)
		}
	}
	return common.Address{}
}

// ListTokens fetches one page of tokens. Entries without a valid address are
// dropped.
func (c *Client) ListTokens(ctx context.Context, filter Filter) ([]domain.Token, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: client nil", ErrCatalog)
	}

	endpoint := c.host + "/tokens?" + filter.query().Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalog, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalog, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := readBodyLimit(resp.Body, 8<<10)
		return nil, fmt.Errorf("%w: %s: status=%d body=%q", ErrCatalog, endpoint, resp.StatusCode, body)
	}

	var records []tokenRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrCatalog, err)
	}

	out := make([]domain.Token, 0, len(records))
	for _, r := range records {
		addr := strings.TrimSpace(r.Address)
		if !common.IsHexAddress(addr) {
			c.logger.Warn("skip catalog token with invalid address",
				zap.String("address", addr),
				zap.String("symbol", r.Symbol),
			)
			continue
		}
		out = append(out, domain.Token{
			Address: common.HexToAddress(addr),
			Name:    strings.TrimSpace(r.Name),
			Symbol:  strings.TrimSpace(r.Symbol),
			Creator: r.creator(),
		})
	}
	return out, nil
}

func readBodyLimit(r io.Reader, limit int64) string {
	if r == nil {
		return ""
	}
	if limit <= 0 {
		limit = 8 << 10
	}
	b, _ := io.ReadAll(io.LimitReader(r, limit))
	return strings.TrimSpace(string(b))
}
