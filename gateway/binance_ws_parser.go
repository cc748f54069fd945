package gateway

import (
	"bytes"
	"fmt"

	"github.com/segmentio/encoding/json"

	"flash-arb-gateway/market"
)

// decodeFrame 严格按大小写匹配字段：binance 同时下发 e/E、m/M、b/B 等字段。
func decodeFrame(data []byte, v any) error {
	rest, err := json.Parse(data, v, json.DontMatchCaseInsensitiveStructFields)
	if err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if len(bytes.TrimSpace(rest)) != 0 {
		return fmt.Errorf("%w: trailing data", errMalformed)
	}
	return nil
}

// binanceEnvelope 兼容单流（/ws/...）与 combined stream（/stream?streams=...）两种包装。
type binanceEnvelope struct {
	EventType *string         `json:"e"`
	Stream    string          `json:"stream"`
	Data      json.RawMessage `json:"data"`
}

type binanceAggTrade struct {
	Symbol     *string `json:"s"`
	Price      *string `json:"p"`
	Qty        *string `json:"q"`
	BuyerMaker *bool   `json:"m"`
	AggID      *uint64 `json:"a"`
	TradeTime  *int64  `json:"T"`
	EventTime  *int64  `json:"E"`
}

type binanceKlineBody struct {
	Interval  *string `json:"i"`
	OpenTime  *int64  `json:"t"`
	CloseTime *int64  `json:"T"`
	Open      *string `json:"o"`
	High      *string `json:"h"`
	Low       *string `json:"l"`
	Close     *string `json:"c"`
	Volume    *string `json:"v"`
	Closed    *bool   `json:"x"`
}

type binanceKline struct {
	Symbol *string           `json:"s"`
	Kline  *binanceKlineBody `json:"k"`
}

type binanceDepth struct {
	Symbol    *string    `json:"s"`
	EventTime *int64     `json:"E"`
	Bids      [][]string `json:"b"`
	Asks      [][]string `json:"a"`
}

type binanceBookTicker struct {
	Symbol    *string `json:"s"`
	BidPrice  *string `json:"b"`
	BidQty    *string `json:"B"`
	AskPrice  *string `json:"a"`
	AskQty    *string `json:"A"`
	EventTime *int64  `json:"E"`
}

// parseBinanceFrame 按 "e" 字段分派，一帧对应一个事件。
func parseBinanceFrame(data []byte) ([]market.Event, error) {
	var env binanceEnvelope
	if err := decodeFrame(data, &env); err != nil {
		return nil, err
	}
	if env.EventType == nil && env.Stream != "" && len(env.Data) > 0 {
		data = env.Data
		env = binanceEnvelope{}
		if err := decodeFrame(data, &env); err != nil {
			return nil, err
		}
	}
	if env.EventType == nil {
		return nil, fmt.Errorf("%w: e", errMissingField)
	}

	var (
		ev  market.Event
		err error
	)
	switch *env.EventType {
	case "aggTrade":
		ev, err = parseBinanceAggTrade(data)
	case "kline":
		ev, err = parseBinanceKline(data)
	case "depthUpdate":
		ev, err = parseBinanceDepth(data)
	case "bookTicker":
		ev, err = parseBinanceBookTicker(data)
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownEvent, *env.EventType)
	}
	if err != nil {
		return nil, err
	}
	return []market.Event{ev}, nil
}

func parseBinanceAggTrade(data []byte) (*market.AggTrade, error) {
	var m binanceAggTrade
	if err := decodeFrame(data, &m); err != nil {
		return nil, err
	}
	symbol, err := required("s", m.Symbol)
	if err != nil {
		return nil, err
	}
	priceStr, err := required("p", m.Price)
	if err != nil {
		return nil, err
	}
	qtyStr, err := required("q", m.Qty)
	if err != nil {
		return nil, err
	}
	maker, err := required("m", m.BuyerMaker)
	if err != nil {
		return nil, err
	}
	id, err := required("a", m.AggID)
	if err != nil {
		return nil, err
	}
	ts := m.TradeTime
	if ts == nil {
		ts = m.EventTime
	}
	timestamp, err := required("T", ts)
	if err != nil {
		return nil, err
	}
	price, err := parseDecimal("p", priceStr)
	if err != nil {
		return nil, err
	}
	qty, err := parseDecimal("q", qtyStr)
	if err != nil {
		return nil, err
	}
	return &market.AggTrade{
		Exchange:     market.Binance,
		Symbol:       symbol,
		Price:        price,
		Quantity:     qty,
		TimestampMs:  timestamp,
		IsBuyerMaker: maker,
		TradeID:      id,
	}, nil
}

func parseBinanceKline(data []byte) (*market.Kline, error) {
	var m binanceKline
	if err := decodeFrame(data, &m); err != nil {
		return nil, err
	}
	symbol, err := required("s", m.Symbol)
	if err != nil {
		return nil, err
	}
	if m.Kline == nil {
		return nil, fmt.Errorf("%w: k", errMissingField)
	}
	k := m.Kline
	ivStr, err := required("k.i", k.Interval)
	if err != nil {
		return nil, err
	}
	openTime, err := required("k.t", k.OpenTime)
	if err != nil {
		return nil, err
	}
	closeTime, err := required("k.T", k.CloseTime)
	if err != nil {
		return nil, err
	}
	closed, err := required("k.x", k.Closed)
	if err != nil {
		return nil, err
	}

	ohlcv := make([]float64, 5)
	for i, f := range []struct {
		name string
		v    *string
	}{{"k.o", k.Open}, {"k.h", k.High}, {"k.l", k.Low}, {"k.c", k.Close}, {"k.v", k.Volume}} {
		s, err := required(f.name, f.v)
		if err != nil {
			return nil, err
		}
		if ohlcv[i], err = parseDecimal(f.name, s); err != nil {
			return nil, err
		}
	}
	return &market.Kline{
		Exchange:    market.Binance,
		Symbol:      symbol,
		Interval:    ivStr,
		OpenTimeMs:  openTime,
		CloseTimeMs: closeTime,
		Open:        ohlcv[0],
		High:        ohlcv[1],
		Low:         ohlcv[2],
		Close:       ohlcv[3],
		Volume:      ohlcv[4],
		IsClosed:    closed,
	}, nil
}

func parseBinanceDepth(data []byte) (*market.DepthUpdate, error) {
	var m binanceDepth
	if err := decodeFrame(data, &m); err != nil {
		return nil, err
	}
	symbol, err := required("s", m.Symbol)
	if err != nil {
		return nil, err
	}
	ts, err := required("E", m.EventTime)
	if err != nil {
		return nil, err
	}
	return &market.DepthUpdate{
		Exchange:    market.Binance,
		Symbol:      symbol,
		Bids:        levelsFromStrings(m.Bids),
		Asks:        levelsFromStrings(m.Asks),
		TimestampMs: ts,
	}, nil
}

// levelsFromStrings 跳过无法解析的档位。
func levelsFromStrings(raw [][]string) []market.PriceLevel {
	out := make([]market.PriceLevel, 0, len(raw))
	for _, lv := range raw {
		p, q, ok := parseLevel(lv)
		if !ok {
			continue
		}
		out = append(out, market.PriceLevel{p, q})
	}
	return out
}

func parseBinanceBookTicker(data []byte) (*market.BookTicker, error) {
	var m binanceBookTicker
	if err := decodeFrame(data, &m); err != nil {
		return nil, err
	}
	symbol, err := required("s", m.Symbol)
	if err != nil {
		return nil, err
	}
	vals := make([]float64, 4)
	for i, f := range []struct {
		name string
		v    *string
	}{{"b", m.BidPrice}, {"B", m.BidQty}, {"a", m.AskPrice}, {"A", m.AskQty}} {
		s, err := required(f.name, f.v)
		if err != nil {
			return nil, err
		}
		if vals[i], err = parseDecimal(f.name, s); err != nil {
			return nil, err
		}
	}
	ts := nowMillis()
	if m.EventTime != nil {
		ts = *m.EventTime
	}
	return &market.BookTicker{
		Exchange:    market.Binance,
		Symbol:      symbol,
		BidPrice:    vals[0],
		BidQty:      vals[1],
		AskPrice:    vals[2],
		AskQty:      vals[3],
		TimestampMs: ts,
	}, nil
}
