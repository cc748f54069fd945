package market

import (
	"testing"

	"github.com/segmentio/encoding/json"
)

func TestDepthUpdate(t *testing.T) {
	d := DepthUpdate{
		Exchange:    Binance,
		Symbol:      "BTCUSDT",
		Bids:        []PriceLevel{{100, 1.5}},
		TimestampMs: 1700000000000,
	}
	if d.Bids[0].Price() != 100 || d.Bids[0].Quantity() != 1.5 {
		t.Fatalf("unexpected level: %+v", d.Bids[0])
	}

	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// 价位编码为两元素数组；空档位是合法的
	want := `{"exchange":"binance","symbol":"BTCUSDT","bids":[[100,1.5]],"asks":null,"timestamp_ms":1700000000000}`
	if string(raw) != want {
		t.Fatalf("got %s want %s", raw, want)
	}
}
