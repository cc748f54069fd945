package market

// Event 是四种行情记录的统一视图，engine 与 sink 只依赖这三个访问器。
// 实现方为 *AggTrade / *Kline / *DepthUpdate / *BookTicker，构造后不再修改。
type Event interface {
	GetExchange() ExchangeID
	GetSymbol() string
	Kind() DataKind
}

var (
	_ Event = (*AggTrade)(nil)
	_ Event = (*Kline)(nil)
	_ Event = (*DepthUpdate)(nil)
	_ Event = (*BookTicker)(nil)
)

func (t *AggTrade) GetExchange() ExchangeID { return t.Exchange }
func (t *AggTrade) GetSymbol() string       { return t.Symbol }
func (t *AggTrade) Kind() DataKind          { return KindAggTrade }

func (k *Kline) GetExchange() ExchangeID { return k.Exchange }
func (k *Kline) GetSymbol() string       { return k.Symbol }
func (k *Kline) Kind() DataKind          { return KindKline }

func (d *DepthUpdate) GetExchange() ExchangeID { return d.Exchange }
func (d *DepthUpdate) GetSymbol() string       { return d.Symbol }
func (d *DepthUpdate) Kind() DataKind          { return KindDepth }

func (b *BookTicker) GetExchange() ExchangeID { return b.Exchange }
func (b *BookTicker) GetSymbol() string       { return b.Symbol }
func (b *BookTicker) Kind() DataKind          { return KindBookTicker }
