package market

// BookTicker 最优买卖价。
type BookTicker struct {
	Exchange    ExchangeID `json:"exchange"`
	Symbol      string     `json:"symbol"`
	BidPrice    float64    `json:"bid_price"`
	BidQty      float64    `json:"bid_qty"`
	AskPrice    float64    `json:"ask_price"`
	AskQty      float64    `json:"ask_qty"`
	TimestampMs int64      `json:"timestamp_ms"`
}
