// Package feature assembles a fixed-schema FeatureVector from Tracker and
// OrderBookMonitor state at the moment of an evaluation.
package feature

import (
	"time"

	"github.com/sentineld/sentineld/internal/indicator"
	"github.com/sentineld/sentineld/internal/model"
	"github.com/sentineld/sentineld/internal/orderbook"
	"github.com/sentineld/sentineld/internal/tracker"
)

const minPricePoints = 5

// Engine computes FeatureVectors from a Tracker and an optional
// OrderBookMonitor. It never writes to either.
type Engine struct {
	calc indicator.Calculator
}

// New returns a ready Engine.
func New() *Engine {
	return &Engine{}
}

// Compute builds the FeatureVector for symbol as of now. book may be nil if
// order-book wiring is unavailable for this symbol; otherwise its cached
// getDepthInfo/getTrackedWalls state feeds the imbalance and wall columns.
// Returns (nil, false) if fewer than minPricePoints price observations exist.
func (e *Engine) Compute(symbol string, st *tracker.SymbolTracker, book *orderbook.Monitor, now time.Time) (*model.FeatureVector, bool) {
	prices := st.Prices()
	if len(prices) < minPricePoints {
		return nil, false
	}

	fv := &model.FeatureVector{
		Symbol: symbol,
		TS:     now,
		Price:  st.LatestPrice(),
	}

	if v, _, _, ok := st.PriceChange(60 * time.Second); ok {
		fv.PriceChange1m = v
	}
	if v, _, _, ok := st.PriceChange(5 * time.Minute); ok {
		fv.PriceChange5m = v
	}
	if v, _, _, ok := st.PriceChange(15 * time.Minute); ok {
		fv.PriceChange15m = v
	}
	if v, ok := indicator.Volatility(prices, 12); ok { // ~60s at 5s cadence proxy window
		fv.Volatility1m = v
	}
	if v, ok := indicator.Volatility(prices, 60); ok {
		fv.Volatility5m = v
	}
	if v, ok := st.VolumeRatio(6); ok {
		fv.VolumeRatio6 = v
	}
	if v, ok := st.VolumeRatio(30); ok {
		fv.VolumeRatio30 = v
	}
	if v, ok := st.OIChange(5 * time.Minute); ok {
		fv.OIDelta5m = v
	}
	if v, ok := st.OIChange(15 * time.Minute); ok {
		fv.OIDelta15m = v
	}
	if v, _, _, ok := st.SpotFuturesSpread(30 * time.Second); ok {
		fv.SpreadPct = v
	}

	if book != nil {
		if snap, ok := book.DepthInfo(symbol); ok {
			if v, ok := snap.ImbalanceRatio(5); ok {
				fv.ImbalanceRatio5 = v
			}
			if v, ok := snap.ImbalanceRatio(10); ok {
				fv.ImbalanceRatio10 = v
			}
			if v, ok := snap.ImbalanceRatio(20); ok {
				fv.ImbalanceRatio20 = v
			}
		}
		bidDist, bidVal, askDist, askVal := nearestWalls(book.TrackedWalls(symbol), fv.Price)
		fv.WallDistanceBid, fv.WallValueBid = bidDist, bidVal
		fv.WallDistanceAsk, fv.WallValueAsk = askDist, askVal
	}

	bundle := e.calc.CalculateAll(prices)
	fv.SMA5, fv.SMA20, fv.SMA60 = bundle.SMA5, bundle.SMA20, bundle.SMA60
	fv.EMA12, fv.EMA26 = bundle.EMA12, bundle.EMA26
	fv.RSI14 = bundle.RSI14
	fv.MACDLine, fv.MACDSignal, fv.MACDHist = bundle.MACDLine, bundle.MACDSignal, bundle.MACDHist
	fv.BollingerUpper, fv.BollingerMiddle, fv.BollingerLower = bundle.BollingerUpper, bundle.BollingerMiddle, bundle.BollingerLower

	if rev, ok := st.PriceReversal(10 * time.Minute); ok {
		fv.ReversalType = string(rev.Type)
		fv.ReversalRise = rev.RisePct
		fv.ReversalFall = rev.FallPct
	}

	return fv, true
}

// nearestWalls scans the tracked walls for symbol and returns the percent
// distance from price to the nearest bid wall and nearest ask wall, along
// with each wall's value. A side with no tracked wall reports (0, 0).
func nearestWalls(walls []model.WallState, price float64) (bidDist, bidVal, askDist, askVal float64) {
	if price == 0 {
		return 0, 0, 0, 0
	}
	bidDist, askDist = -1, -1
	for _, w := range walls {
		d := distancePct(w.Price, price)
		switch w.Side {
		case model.SideBid:
			if bidDist < 0 || d < bidDist {
				bidDist, bidVal = d, w.Value
			}
		case model.SideAsk:
			if askDist < 0 || d < askDist {
				askDist, askVal = d, w.Value
			}
		}
	}
	if bidDist < 0 {
		bidDist = 0
	}
	if askDist < 0 {
		askDist = 0
	}
	return bidDist, bidVal, askDist, askVal
}

func distancePct(price, ref float64) float64 {
	if ref == 0 {
		return 0
	}
	d := (price - ref) / ref * 100
	if d < 0 {
		d = -d
	}
	return d
}
