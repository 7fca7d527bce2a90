package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCoinGeckoURL     = "https://api.coingecko.com/api/v3/simple/price?ids=solana&vs_currencies=usd"
	DefaultCryptoCompareURL = "https://min-api.cryptocompare.com/data/price?fsym=SOL&tsyms=USD"

	solUSDKey = "SOL/USD"
)

var ErrPriceUnavailable = errors.New("sol price unavailable")

// PriceSources are the endpoints PriceService queries, in order
type PriceSources struct {
	CoinGecko     string
	CryptoCompare string
}

// SolQuote is a SOL/USD rate and where it came from
type SolQuote struct {
	USD       decimal.Decimal `json:"usd"`
	Source    string          `json:"source"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// PriceQuote converts a listing price into USD
type PriceQuote struct {
	PriceSol decimal.Decimal `json:"price_sol"`
	PriceUSD decimal.Decimal `json:"price_usd"`
	SolUSD   decimal.Decimal `json:"sol_usd"`
	Source   string          `json:"source"`
}

// PriceService tracks the SOL/USD rate. CoinGecko is asked first and
// CryptoCompare is the fallback.
type PriceService struct {
	http    *retryablehttp.Client
	sources PriceSources
	cache   *cache.Cache
	group   singleflight.Group
	log     *zap.Logger
}

// NewPriceService creates a PriceService caching each rate for ttl
func NewPriceService(httpClient *retryablehttp.Client, sources PriceSources, ttl time.Duration) *PriceService {
	if sources.CoinGecko == "" {
		sources.CoinGecko = DefaultCoinGeckoURL
	}
	if sources.CryptoCompare == "" {
		sources.CryptoCompare = DefaultCryptoCompareURL
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &PriceService{
		http:    httpClient,
		sources: sources,
		cache:   cache.New(ttl, 2*ttl),
		log:     zap.L().Named("price"),
	}
}

// SolUSD returns the cached rate or fetches a fresh one
func (ps *PriceService) SolUSD(ctx context.Context) (*SolQuote, error) {
	if v, ok := ps.cache.Get(solUSDKey); ok {
		return v.(*SolQuote), nil
	}

	v, err, _ := ps.group.Do(solUSDKey, func() (interface{}, error) {
		quote, err := ps.fetch(ctx)
		if err != nil {
			return nil, err
		}
		ps.cache.SetDefault(solUSDKey, quote)
		return quote, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SolQuote), nil
}

// Quote prices an amount of SOL in USD, rounded to cents
func (ps *PriceService) Quote(ctx context.Context, priceSol decimal.Decimal) (*PriceQuote, error) {
	rate, err := ps.SolUSD(ctx)
	if err != nil {
		return nil, err
	}
	return &PriceQuote{
		PriceSol: priceSol,
		PriceUSD: priceSol.Mul(rate.USD).Round(2),
		SolUSD:   rate.USD,
		Source:   rate.Source,
	}, nil
}

func (ps *PriceService) fetch(ctx context.Context) (*SolQuote, error) {
	// {"solana":{"usd":195.83}}
	var gecko map[string]map[string]decimal.Decimal
	if err := ps.getJSON(ctx, ps.sources.CoinGecko, &gecko); err != nil {
		ps.log.Warn("coingecko request failed", zap.Error(err))
	} else if usd, ok := gecko["solana"]["usd"]; ok && usd.IsPositive() {
		return &SolQuote{USD: usd, Source: "coingecko", FetchedAt: time.Now()}, nil
	}

	// {"USD":195.83}
	var compare map[string]decimal.Decimal
	if err := ps.getJSON(ctx, ps.sources.CryptoCompare, &compare); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	usd, ok := compare["USD"]
	if !ok || !usd.IsPositive() {
		return nil, fmt.Errorf("%w: cryptocompare returned no USD rate", ErrPriceUnavailable)
	}
	return &SolQuote{USD: usd, Source: "cryptocompare", FetchedAt: time.Now()}, nil
}

func (ps *PriceService) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := retryablehttp.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")

	resp, err := ps.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned %d: %s", url, resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
