package market

// PriceLevel 一档价格 (price, quantity)，JSON 编码为两元素数组。
type PriceLevel [2]float64

func (l PriceLevel) Price() float64    { return l[0] }
func (l PriceLevel) Quantity() float64 { return l[1] }

// DepthUpdate 深度增量（不是维护好的订单簿）。
// Bids/Asks 为空是合法的：交易所帧中无法提取档位时即为空。
type DepthUpdate struct {
	Exchange    ExchangeID   `json:"exchange"`
	Symbol      string       `json:"symbol"`
	Bids        []PriceLevel `json:"bids"`
	Asks        []PriceLevel `json:"asks"`
	TimestampMs int64        `json:"timestamp_ms"`
}
