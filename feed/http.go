package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/intraday/internal/errs"
	"github.com/rustyeddy/intraday/market"
)

// HTTPSource fetches snapshots from an external indicator provider:
//
//	GET {BaseURL}/snapshots/{symbol}?as_of=RFC3339
//
// answering a JSON market.Snapshot. 404 means no data for the symbol and
// is final; other failures are returned as plain errors so a Retrying
// wrapper can try again.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewHTTPSource(baseURL string, timeout time.Duration, log zerolog.Logger) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "feed_http").Logger(),
	}
}

func (h *HTTPSource) Snapshot(ctx context.Context, symbol string, asOf time.Time) (market.Snapshot, error) {
	const op = "feed.HTTPSource"

	u := fmt.Sprintf("%s/snapshots/%s?as_of=%s", h.baseURL, url.PathEscape(symbol), url.QueryEscape(asOf.Format(time.RFC3339)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return market.Snapshot{}, errs.E(errs.DataUnavailable, op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return market.Snapshot{}, fmt.Errorf("fetch %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return market.Snapshot{}, errs.Ef(errs.DataUnavailable, op, "%s: not found", symbol)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return market.Snapshot{}, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var snap market.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return market.Snapshot{}, errs.E(errs.DataUnavailable, op, fmt.Errorf("decode %s: %w", symbol, err))
	}
	if snap.Symbol == "" {
		snap.Symbol = symbol
	}
	if snap.Price <= 0 {
		return market.Snapshot{}, errs.Ef(errs.DataUnavailable, op, "%s: no price", symbol)
	}

	h.log.Debug().Str("symbol", symbol).Time("as_of", snap.Time).Float64("price", snap.Price).Msg("snapshot fetched")
	return snap, nil
}
