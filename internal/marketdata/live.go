package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/sentineltrading/execution-core/internal/domain"
)

const wsDialTimeout = 30 * time.Second

// HTTPConfig configures a HTTPProvider: a thin REST adapter over a single
// vendor's quote/candle endpoints, no generated SDK.
type HTTPConfig struct {
	Name       string
	BaseURL    string
	APIKey     string
	RPM        int
	WSURL      string // optional; empty disables streaming for this provider
	HTTPClient *http.Client
}

// HTTPProvider is a pluggable vendor adapter over plain net/http. It always
// satisfies StreamProvider; Stream returns an error when WSURL is empty.
type HTTPProvider struct {
	cfg HTTPConfig
	log zerolog.Logger
}

// NewHTTPProvider creates a vendor adapter from cfg, defaulting the HTTP
// client to one with a bounded per-request timeout.
func NewHTTPProvider(cfg HTTPConfig, log zerolog.Logger) *HTTPProvider {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProvider{cfg: cfg, log: log.With().Str("provider", cfg.Name).Logger()}
}

func (p *HTTPProvider) Name() string          { return p.cfg.Name }
func (p *HTTPProvider) RequestsPerMinute() int { return p.cfg.RPM }

type vendorQuoteResponse struct {
	Bid  float64 `json:"bid"`
	Ask  float64 `json:"ask"`
	Last float64 `json:"last"`
}

type vendorCandleResponse struct {
	OpenTime int64   `json:"t"`
	Open     float64 `json:"o"`
	High     float64 `json:"h"`
	Low      float64 `json:"l"`
	Close    float64 `json:"c"`
	Volume   float64 `json:"v"`
}

func (p *HTTPProvider) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	url := fmt.Sprintf("%s/quote?symbol=%s&apikey=%s", p.cfg.BaseURL, symbol, p.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("marketdata: build quote request: %w", err)
	}

	resp, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("marketdata: quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, fmt.Errorf("marketdata: %s quote returned status %d", p.cfg.Name, resp.StatusCode)
	}

	var body vendorQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Quote{}, fmt.Errorf("marketdata: decode quote response: %w", err)
	}

	return domain.Quote{
		Symbol:    symbol,
		Provider:  p.cfg.Name,
		Bid:       body.Bid,
		Ask:       body.Ask,
		Last:      body.Last,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (p *HTTPProvider) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	url := fmt.Sprintf("%s/candles?symbol=%s&timeframe=%s&limit=%d&apikey=%s", p.cfg.BaseURL, symbol, timeframe, limit, p.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("marketdata: build candles request: %w", err)
	}

	resp, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("marketdata: candles request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("marketdata: %s candles returned status %d", p.cfg.Name, resp.StatusCode)
	}

	var body []vendorCandleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("marketdata: decode candles response: %w", err)
	}

	candles := make([]domain.Candle, len(body))
	for i, c := range body {
		candles[i] = domain.Candle{
			Symbol:    symbol,
			Timeframe: timeframe,
			OpenTime:  time.Unix(c.OpenTime, 0).UTC(),
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		}
	}
	return candles, nil
}

type wsSubscribeMessage struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

type wsQuoteMessage struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
}

// Stream opens one WebSocket connection for the lifetime of ctx and
// subscribes to symbols. The returned channel closes when the connection
// drops or ctx is cancelled; Aggregator.runStream owns reconnection.
func (p *HTTPProvider) Stream(ctx context.Context, symbols []string) (<-chan domain.Quote, error) {
	if p.cfg.WSURL == "" {
		return nil, fmt.Errorf("marketdata: provider %s has no websocket endpoint configured", p.cfg.Name)
	}

	dialCtx, cancel := context.WithTimeout(ctx, wsDialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, p.cfg.WSURL, &websocket.DialOptions{HTTPClient: p.cfg.HTTPClient})
	if err != nil {
		return nil, fmt.Errorf("marketdata: dial %s websocket: %w", p.cfg.Name, err)
	}

	sub, err := json.Marshal(wsSubscribeMessage{Action: "subscribe", Symbols: symbols})
	if err != nil {
		conn.Close(websocket.StatusInternalError, "marshal subscribe")
		return nil, fmt.Errorf("marketdata: marshal subscribe message: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, sub); err != nil {
		conn.Close(websocket.StatusInternalError, "subscribe write failed")
		return nil, fmt.Errorf("marketdata: send subscribe message: %w", err)
	}

	out := make(chan domain.Quote, len(symbols)*4)
	go func() {
		defer close(out)
		defer conn.Close(websocket.StatusNormalClosure, "")

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				if ctx.Err() == nil {
					p.log.Warn().Err(err).Msg("websocket read failed")
				}
				return
			}

			var msg wsQuoteMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				p.log.Warn().Err(err).Msg("malformed websocket quote message")
				continue
			}

			select {
			case out <- domain.Quote{Symbol: msg.Symbol, Provider: p.cfg.Name, Bid: msg.Bid, Ask: msg.Ask, Last: msg.Last, Timestamp: time.Now().UTC()}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
