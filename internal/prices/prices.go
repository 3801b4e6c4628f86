package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"crashpilot/internal/config"
	"crashpilot/internal/game"
)

const quoteKeyPrefix = "price:"

// coinIDs maps supported currency codes to upstream quote identifiers.
var coinIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"LTC":  "litecoin",
	"DOGE": "dogecoin",
}

// defaultQuotes are the fixed last-resort USD prices used when both the
// upstream source and the cache are unavailable. Betting and cash-out never
// hard-fail solely because quotes are down.
var defaultQuotes = map[string]float64{
	"BTC":  50000.00,
	"ETH":  3000.00,
	"LTC":  100.00,
	"DOGE": 0.15,
}

// Service resolves USD quotes for supported cryptocurrencies with a bounded
// fallback chain: live upstream fetch, then the last cached quote, then a
// fixed default.
type Service struct {
	httpClient *http.Client
	cache      *redis.Client
	apiURL     string
	cacheTTL   time.Duration
}

// New builds the quote service. cache may be nil; the service then skips
// straight from the upstream source to the fixed defaults.
func New(cfg *config.Config, cache *redis.Client) *Service {
	return &Service{
		httpClient: &http.Client{Timeout: cfg.PriceTimeout},
		cache:      cache,
		apiURL:     cfg.PriceAPIURL,
		cacheTTL:   cfg.PriceCacheTTL,
	}
}

// Quote returns the current USD price for one currency code.
func (s *Service) Quote(ctx context.Context, currency string) (float64, error) {
	currency = strings.ToUpper(currency)
	id, ok := coinIDs[currency]
	if !ok {
		return 0, fmt.Errorf("%w: unsupported cryptocurrency %q", game.ErrValidation, currency)
	}

	if rate, err := s.fetchLive(ctx, currency, id); err == nil {
		return rate, nil
	} else {
		log.Printf("[PRICE] Live quote for %s failed: %v", currency, err)
	}

	if s.cache != nil {
		rate, err := s.cache.Get(ctx, quoteKeyPrefix+currency).Float64()
		if err == nil && rate > 0 {
			log.Printf("[PRICE] Using cached quote for %s: %.2f", currency, rate)
			return rate, nil
		}
	}

	rate := defaultQuotes[currency]
	log.Printf("[PRICE] Using default quote for %s: %.2f", currency, rate)
	return rate, nil
}

// Quotes returns current USD prices for every supported currency.
func (s *Service) Quotes(ctx context.Context) map[string]float64 {
	out := make(map[string]float64, len(coinIDs))
	for currency := range coinIDs {
		rate, err := s.Quote(ctx, currency)
		if err != nil {
			continue
		}
		out[currency] = rate
	}
	return out
}

// USDToCrypto converts a USD amount at the live quote. The returned rate is
// what callers lock into a bet.
func (s *Service) USDToCrypto(ctx context.Context, usd float64, currency string) (float64, float64, error) {
	rate, err := s.Quote(ctx, currency)
	if err != nil {
		return 0, 0, err
	}
	return usd / rate, rate, nil
}

// CryptoToUSD converts a crypto amount at the live quote. Cash-outs convert
// here rather than at the bet-time rate; the payout's USD value floats with
// the market between placement and cash-out.
func (s *Service) CryptoToUSD(ctx context.Context, amount float64, currency string) (float64, float64, error) {
	rate, err := s.Quote(ctx, currency)
	if err != nil {
		return 0, 0, err
	}
	return amount * rate, rate, nil
}

func (s *Service) fetchLive(ctx context.Context, currency, id string) (float64, error) {
	url := fmt.Sprintf("%s?ids=%s&vs_currencies=usd", s.apiURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", game.ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: quote source returned %d", game.ErrExternalService, resp.StatusCode)
	}

	var payload map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("%w: %v", game.ErrExternalService, err)
	}

	quote, ok := payload[id]
	if !ok || quote.USD <= 0 {
		return 0, fmt.Errorf("%w: no quote for %s", game.ErrExternalService, id)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, quoteKeyPrefix+currency, quote.USD, s.cacheTTL).Err(); err != nil {
			log.Printf("[PRICE] Failed to cache quote for %s: %v", currency, err)
		}
	}

	return quote.USD, nil
}
