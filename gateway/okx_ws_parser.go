package gateway

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/segmentio/encoding/json"

	"flash-arb-gateway/market"
)

type okxArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type okxEnvelope struct {
	Event   *string         `json:"event"`
	Code    json.RawMessage `json:"code"`
	Msg     string          `json:"msg"`
	Arg     *okxArg         `json:"arg"`
	Data    json.RawMessage `json:"data"`
	Confirm *bool           `json:"confirm"`
}

type okxTrade struct {
	TradeID *string    `json:"tradeId"`
	Px      *string    `json:"px"`
	Sz      *string    `json:"sz"`
	Side    *string    `json:"side"`
	Ts      *flexInt64 `json:"ts"`
}

type okxTicker struct {
	BidPx *string    `json:"bidPx"`
	BidSz *string    `json:"bidSz"`
	AskPx *string    `json:"askPx"`
	AskSz *string    `json:"askSz"`
	Ts    *flexInt64 `json:"ts"`
}

type okxBooks struct {
	Ts *flexInt64 `json:"ts"`
}

// parseOKXFrame 先处理 event 帧（订阅确认/错误），再按 arg.channel 分派数据帧。
func parseOKXFrame(data []byte) ([]market.Event, error) {
	var env okxEnvelope
	if err := decodeFrame(data, &env); err != nil {
		return nil, err
	}
	if env.Event != nil {
		switch *env.Event {
		case "subscribe", "unsubscribe":
			return nil, fmt.Errorf("%w: %s", errSubscribeAck, *env.Event)
		case "error":
			return nil, fmt.Errorf("%w: code=%s msg=%s", errExchangeNotice, env.Code, env.Msg)
		}
		return nil, fmt.Errorf("%w: event %s", errUnknownEvent, *env.Event)
	}
	if env.Arg == nil {
		return nil, fmt.Errorf("%w: arg", errMissingField)
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: data", errMissingField)
	}

	channel := env.Arg.Channel
	name, inst, _ := strings.Cut(channel, ":")
	if env.Arg.InstID != "" {
		inst = env.Arg.InstID
	}
	if inst == "" {
		return nil, fmt.Errorf("%w: arg.instId", errMissingField)
	}
	symbol := StandardSymbol(inst)

	switch {
	case strings.Contains(name, "trade"):
		return parseOKXTrades(symbol, env.Data)
	case strings.Contains(name, "candle"):
		return parseOKXCandles(symbol, name, env.Data, env.Confirm)
	case strings.Contains(name, "tickers"):
		return parseOKXTicker(symbol, env.Data)
	case strings.Contains(name, "books"):
		return parseOKXBooks(symbol, env.Data)
	}
	return nil, fmt.Errorf("%w: %s", errUnknownChannel, channel)
}

func parseOKXTrades(symbol string, raw json.RawMessage) ([]market.Event, error) {
	var rows []okxTrade
	if err := decodeFrame(raw, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errEmptyData
	}
	out := make([]market.Event, 0, len(rows))
	for _, r := range rows {
		pxStr, err := required("px", r.Px)
		if err != nil {
			return nil, err
		}
		szStr, err := required("sz", r.Sz)
		if err != nil {
			return nil, err
		}
		side, err := required("side", r.Side)
		if err != nil {
			return nil, err
		}
		ts, err := required("ts", r.Ts)
		if err != nil {
			return nil, err
		}
		px, err := parseDecimal("px", pxStr)
		if err != nil {
			return nil, err
		}
		sz, err := parseDecimal("sz", szStr)
		if err != nil {
			return nil, err
		}
		id := uint64(ts)
		if r.TradeID != nil {
			if v, err := strconv.ParseUint(*r.TradeID, 10, 64); err == nil {
				id = v
			}
		}
		out = append(out, &market.AggTrade{
			Exchange:     market.OKX,
			Symbol:       symbol,
			Price:        px,
			Quantity:     sz,
			TimestampMs:  int64(ts),
			IsBuyerMaker: side == "sell",
			TradeID:      id,
		})
	}
	return out, nil
}

// okxCandleInterval 从频道名取周期：public-candle1m / candle1H -> 1m / 1h。
func okxCandleInterval(name string) (market.KlineInterval, error) {
	i := strings.Index(name, "candle")
	token := strings.ToLower(name[i+len("candle"):])
	iv, err := market.ParseKlineInterval(token)
	if err != nil {
		return "", fmt.Errorf("%w: %s", errUnknownInterval, name)
	}
	return iv, nil
}

// parseOKXCandles 行格式 [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm]。
func parseOKXCandles(symbol, name string, raw json.RawMessage, envConfirm *bool) ([]market.Event, error) {
	interval, err := okxCandleInterval(name)
	if err != nil {
		return nil, err
	}
	var rows [][]flexString
	if err := decodeFrame(raw, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errEmptyData
	}
	out := make([]market.Event, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("%w: candle has %d fields", errMissingField, len(row))
		}
		openTime, err := strconv.ParseInt(string(row[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: ts=%q", errBadNumber, row[0])
		}
		vals := make([]float64, 5)
		for i, field := range []string{"o", "h", "l", "c", "vol"} {
			if vals[i], err = parseDecimal(field, string(row[i+1])); err != nil {
				return nil, err
			}
		}
		closed := false
		switch {
		case len(row) > 8:
			closed = row[8] == "1"
		case envConfirm != nil:
			closed = *envConfirm
		}
		out = append(out, &market.Kline{
			Exchange:    market.OKX,
			Symbol:      symbol,
			Interval:    interval.String(),
			OpenTimeMs:  openTime,
			CloseTimeMs: market.CloseTime(openTime, interval),
			Open:        vals[0],
			High:        vals[1],
			Low:         vals[2],
			Close:       vals[3],
			Volume:      vals[4],
			IsClosed:    closed,
		})
	}
	return out, nil
}

// parseOKXTicker 空字符串（盘口为空）按 0 处理。
func parseOKXTicker(symbol string, raw json.RawMessage) ([]market.Event, error) {
	var rows []okxTicker
	if err := decodeFrame(raw, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errEmptyData
	}
	r := rows[0]
	vals := make([]float64, 4)
	for i, f := range []struct {
		name string
		v    *string
	}{{"bidPx", r.BidPx}, {"bidSz", r.BidSz}, {"askPx", r.AskPx}, {"askSz", r.AskSz}} {
		s, err := required(f.name, f.v)
		if err != nil {
			return nil, err
		}
		if s == "" {
			continue
		}
		if vals[i], err = parseDecimal(f.name, s); err != nil {
			return nil, err
		}
	}
	ts, err := required("ts", r.Ts)
	if err != nil {
		return nil, err
	}
	return []market.Event{&market.BookTicker{
		Exchange:    market.OKX,
		Symbol:      symbol,
		BidPrice:    vals[0],
		BidQty:      vals[1],
		AskPrice:    vals[2],
		AskQty:      vals[3],
		TimestampMs: int64(ts),
	}}, nil
}

// parseOKXBooks 档位暂不提取，只转发带时间戳的更新通知。
func parseOKXBooks(symbol string, raw json.RawMessage) ([]market.Event, error) {
	var rows []okxBooks
	if err := decodeFrame(raw, &rows); err != nil {
		return nil, err
	}
	ts := nowMillis()
	if len(rows) > 0 && rows[0].Ts != nil {
		ts = int64(*rows[0].Ts)
	}
	return []market.Event{&market.DepthUpdate{
		Exchange:    market.OKX,
		Symbol:      symbol,
		Bids:        []market.PriceLevel{},
		Asks:        []market.PriceLevel{},
		TimestampMs: ts,
	}}, nil
}
