package market

// AggTrade 归集成交。Price/Quantity 由交易所的十进制字符串解析而来。
type AggTrade struct {
	Exchange     ExchangeID `json:"exchange"`
	Symbol       string     `json:"symbol"`
	Price        float64    `json:"price"`
	Quantity     float64    `json:"quantity"`
	TimestampMs  int64      `json:"timestamp_ms"`
	IsBuyerMaker bool       `json:"is_buyer_maker"`
	TradeID      uint64     `json:"trade_id"`
}
