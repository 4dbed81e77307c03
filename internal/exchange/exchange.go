// Package exchange adapts github.com/adshao/go-binance/v2/futures into
// the push-stream ExchangeFeed interface the core consumes, generalizing
// the donor's own use of the same SDK for kline/price fetches into a
// long-lived websocket feed with an unbounded reconnect loop and capped
// backoff.
package exchange

import (
	"context"
	"fmt"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"

	"github.com/sentineld/sentineld/internal/model"
)

// Feed is the push-stream collaborator the core depends on: a stream of
// Ticker frames and, per subscribed symbol, DepthSnapshot frames.
type Feed interface {
	// Run blocks, dispatching Tickers and DepthSnapshots to the supplied
	// callbacks until ctx is cancelled or an unrecoverable error occurs.
	Run(ctx context.Context, onTicker func(model.Ticker), onDepth func(model.DepthSnapshot)) error
	GetOpenInterest(ctx context.Context, symbol string) (float64, error)
	GetAllSymbols(ctx context.Context) ([]string, error)
	GetSpotTickers(ctx context.Context) (map[string]float64, error)
}

// BinanceFeed implements Feed against Binance USD-M futures via combined
// market-stat and diff-depth websocket streams.
type BinanceFeed struct {
	futuresClient *futures.Client
	symbols       []string
	depthLevels   int
	log           zerolog.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewBinanceFeed returns a BinanceFeed for symbols, using apiKey/apiSecret
// against either the production or testnet endpoint.
func NewBinanceFeed(apiKey, apiSecret string, useTestnet bool, symbols []string, depthLevels int, log zerolog.Logger) *BinanceFeed {
	futures.UseTestnet = useTestnet
	client := futures.NewClient(apiKey, apiSecret)
	return &BinanceFeed{
		futuresClient: client,
		symbols:       symbols,
		depthLevels:   depthLevels,
		log:           log,
		minBackoff:    time.Second,
		maxBackoff:    time.Minute,
	}
}

// Run subscribes to combined market-stat and diff-depth streams for every
// configured symbol and reconnects with capped exponential backoff on any
// stream error, matching the donor's two-attempt retry idiom in
// trend_analyzer.go generalized to an unbounded loop suitable for a
// long-lived ingestion process.
func (f *BinanceFeed) Run(ctx context.Context, onTicker func(model.Ticker), onDepth func(model.DepthSnapshot)) error {
	for _, symbol := range f.symbols {
		symbol := symbol
		go f.runDepthLoop(ctx, symbol, onDepth)
	}

	backoff := f.minBackoff
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		doneC, stopC, err := futures.WsCombinedMarketStatServe(f.symbols, func(events futures.WsAllMarketsStatEvent) {
			for _, e := range events {
				onTicker(model.Ticker{
					Symbol:      e.Symbol,
					Price:       parseFloatOrZero(e.LastPrice),
					BaseVolume:  parseFloatOrZero(e.BaseVolume),
					QuoteVolume: parseFloatOrZero(e.QuoteVolume),
					TS:          time.UnixMilli(e.EventTime),
					WSRecvTS:    time.Now(),
				})
			}
		}, func(err error) {
			f.log.Warn().Err(err).Msg("market stat stream error")
		})
		if err != nil {
			f.log.Warn().Err(err).Dur("backoff", backoff).Msg("market stat stream connect failed")
			if !sleepOrDone(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff, f.maxBackoff)
			continue
		}

		backoff = f.minBackoff
		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			return ctx.Err()
		case <-doneC:
			f.log.Warn().Msg("market stat stream closed, reconnecting")
		}
	}
}

// runDepthLoop subscribes to the diff-depth stream for one symbol and
// reconnects with the same capped backoff as the ticker stream.
func (f *BinanceFeed) runDepthLoop(ctx context.Context, symbol string, onDepth func(model.DepthSnapshot)) {
	backoff := f.minBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		doneC, stopC, err := futures.WsDiffDepthServe(symbol, func(e *futures.WsDepthEvent) {
			snap := model.DepthSnapshot{
				Symbol:       symbol,
				Bids:         toBidLevels(e.Bids, f.depthLevels),
				Asks:         toAskLevels(e.Asks, f.depthLevels),
				LastUpdateID: e.LastUpdateID,
				TS:           time.UnixMilli(e.TransactionTime),
			}
			onDepth(snap)
		}, func(err error) {
			f.log.Warn().Err(err).Str("symbol", symbol).Msg("depth stream error")
		})
		if err != nil {
			f.log.Warn().Err(err).Str("symbol", symbol).Dur("backoff", backoff).Msg("depth stream connect failed")
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, f.maxBackoff)
			continue
		}

		backoff = f.minBackoff
		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			return
		case <-doneC:
			f.log.Warn().Str("symbol", symbol).Msg("depth stream closed, reconnecting")
		}
	}
}

// toBidLevels and toAskLevels stay separate because futures.WsDepthEvent
// carries Bids as []futures.Bid and Asks as []futures.Ask, two distinct
// (if identically shaped) SDK types.
func toBidLevels(entries []futures.Bid, limit int) []model.DepthLevel {
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	out := make([]model.DepthLevel, len(entries))
	for i, e := range entries {
		out[i] = model.DepthLevel{Price: parseFloatOrZero(e.Price), Qty: parseFloatOrZero(e.Quantity)}
	}
	return out
}

func toAskLevels(entries []futures.Ask, limit int) []model.DepthLevel {
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	out := make([]model.DepthLevel, len(entries))
	for i, e := range entries {
		out[i] = model.DepthLevel{Price: parseFloatOrZero(e.Price), Qty: parseFloatOrZero(e.Quantity)}
	}
	return out
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func parseFloatOrZero(s string) float64 {
	var v float64
	_, err := fmt.Sscanf(s, "%f", &v)
	if err != nil {
		return 0
	}
	return v
}

// GetOpenInterest fetches the current open interest for symbol.
func (f *BinanceFeed) GetOpenInterest(ctx context.Context, symbol string) (float64, error) {
	res, err := f.futuresClient.NewGetOpenInterestService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("get open interest for %s: %w", symbol, err)
	}
	return parseFloatOrZero(res.OpenInterest), nil
}

// GetAllSymbols returns every tradable USD-M perpetual symbol.
func (f *BinanceFeed) GetAllSymbols(ctx context.Context) ([]string, error) {
	info, err := f.futuresClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("get exchange info: %w", err)
	}
	symbols := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.ContractType == "PERPETUAL" {
			symbols = append(symbols, s.Symbol)
		}
	}
	return symbols, nil
}

// GetSpotTickers returns the latest spot-market price for every symbol the
// spot market lists, used to compute the spot/futures spread.
func (f *BinanceFeed) GetSpotTickers(ctx context.Context) (map[string]float64, error) {
	prices, err := binance.NewClient("", "").NewListPricesService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}
	out := make(map[string]float64, len(prices))
	for _, p := range prices {
		out[p.Symbol] = parseFloatOrZero(p.Price)
	}
	return out, nil
}
