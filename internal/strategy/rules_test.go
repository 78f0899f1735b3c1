package strategy

import (
	"context"
	"testing"

	"paper-trading-bot/internal/market"
)

func TestMomentumRuleLong(t *testing.T) {
	// RSI, MACD, and price momentum all agree long with strong volume.
	snap := Snapshot{
		CurrentPrice: 100,
		RSI7:         65,
		RSI14:        60,
		MACDSignal:   0.5,
		MACDHist:     0.2,
		Momentum:     1.03,
		VolumeRatio:  1.5,
		ATR:          1,
	}

	rule := &MomentumRule{MinConfidence: 0.60}
	sig, err := rule.Generate(context.Background(), "BTCUSDT", snap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig == nil {
		t.Fatal("expected a long signal")
	}
	if sig.Action != ActionLong {
		t.Errorf("expected LONG, got %s", sig.Action)
	}
	if sig.StopLoss != 98 || sig.TakeProfit != 103 {
		t.Errorf("expected stop 98 and target 103, got %v / %v", sig.StopLoss, sig.TakeProfit)
	}
	if sig.Confidence < 0.60 {
		t.Errorf("confidence %v below floor", sig.Confidence)
	}
	if sig.Source != "RULE:momentum" {
		t.Errorf("unexpected source %s", sig.Source)
	}
}

func TestMomentumRuleNeutralMarketNoSignal(t *testing.T) {
	snap := Snapshot{
		CurrentPrice: 100,
		RSI7:         50,
		RSI14:        50,
		Momentum:     1.0,
		VolumeRatio:  1.0,
		ATR:          1,
	}

	rule := &MomentumRule{MinConfidence: 0.60}
	sig, err := rule.Generate(context.Background(), "BTCUSDT", snap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig != nil {
		t.Errorf("expected no signal, got %+v", sig)
	}
}

func TestMeanReversionRuleShort(t *testing.T) {
	// Stretched above the band with overbought RSI.
	snap := Snapshot{
		CurrentPrice: 110,
		ZScore:       2.0,
		BBPosition:   0.95,
		BBUpper:      108,
		BBMiddle:     100,
		BBLower:      92,
		RSI14:        75,
		ATR:          1,
	}

	rule := &MeanReversionRule{MinConfidence: 0.65}
	sig, err := rule.Generate(context.Background(), "ETHUSDT", snap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig == nil {
		t.Fatal("expected a short signal")
	}
	if sig.Action != ActionShort {
		t.Errorf("expected SHORT, got %s", sig.Action)
	}
	if sig.TakeProfit != 100 {
		t.Errorf("expected target at band middle 100, got %v", sig.TakeProfit)
	}
	if sig.StopLoss <= sig.EntryPrice {
		t.Errorf("short stop must be above entry: %v <= %v", sig.StopLoss, sig.EntryPrice)
	}
}

func TestBreakoutRuleRequiresVolume(t *testing.T) {
	snap := Snapshot{
		CurrentPrice: 110,
		BBUpper:      108,
		BBMiddle:     100,
		BBLower:      92,
		VolumeRatio:  0.9, // breakout without volume is noise
		Momentum:     1.02,
		Volatility:   0.01,
		ATR:          1,
	}

	rule := &BreakoutRule{MinConfidence: 0.70}
	sig, err := rule.Generate(context.Background(), "BTCUSDT", snap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig != nil {
		t.Errorf("expected no signal without volume confirmation, got %+v", sig)
	}

	snap.VolumeRatio = 1.5
	sig, err = rule.Generate(context.Background(), "BTCUSDT", snap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig == nil || sig.Action != ActionLong {
		t.Fatalf("expected long breakout with volume, got %+v", sig)
	}
}

func TestTrendFollowingRuleConfidenceFloor(t *testing.T) {
	// Two votes only: MACD trend without momentum or band confirmation.
	snap := Snapshot{
		CurrentPrice: 100,
		MACD:         0.5,
		MACDSignal:   0.3,
		MACDHist:     0.2,
		BBMiddle:     100,
		Momentum:     1.0,
		RSI14:        35, // outside confirmation range
		ATR:          1,
	}

	rule := &TrendFollowingRule{MinConfidence: 0.75}
	sig, err := rule.Generate(context.Background(), "BTCUSDT", snap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig != nil {
		t.Errorf("expected no signal with only 2 votes, got %+v", sig)
	}

	// Add momentum and RSI confirmation: 4 votes, confidence 0.9.
	snap.Momentum = 1.02
	snap.RSI14 = 55
	snap.CurrentPrice = 101
	sig, err = rule.Generate(context.Background(), "BTCUSDT", snap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig == nil || sig.Action != ActionLong {
		t.Fatalf("expected long trend signal, got %+v", sig)
	}
	if sig.Confidence < 0.75 {
		t.Errorf("confidence %v below floor", sig.Confidence)
	}
}

func TestComputeSnapshotInsufficientData(t *testing.T) {
	klines := make([]market.Kline, 10)
	if _, ok := ComputeSnapshot(klines); ok {
		t.Error("expected ok=false with 10 candles")
	}
}

func TestComputeSnapshotFlatSeries(t *testing.T) {
	klines := make([]market.Kline, 60)
	for i := range klines {
		klines[i] = market.Kline{Open: 100, High: 100, Low: 100, Close: 100, Volume: 10}
	}

	snap, ok := ComputeSnapshot(klines)
	if !ok {
		t.Fatal("expected snapshot from 60 candles")
	}
	if snap.CurrentPrice != 100 {
		t.Errorf("expected price 100, got %v", snap.CurrentPrice)
	}
	if snap.Momentum != 1 {
		t.Errorf("flat series momentum should be 1, got %v", snap.Momentum)
	}
	if snap.ZScore != 0 {
		t.Errorf("flat series z-score should be 0, got %v", snap.ZScore)
	}
	if snap.BBPosition != 0.5 {
		t.Errorf("flat series bb position should be 0.5, got %v", snap.BBPosition)
	}
	// Zero true range falls back to 1% of price.
	if snap.ATR != 1 {
		t.Errorf("expected ATR fallback of 1, got %v", snap.ATR)
	}
}

func TestComputeSnapshotUptrend(t *testing.T) {
	klines := make([]market.Kline, 60)
	price := 100.0
	for i := range klines {
		price *= 1.01
		klines[i] = market.Kline{
			Open:   price / 1.01,
			High:   price * 1.002,
			Low:    price / 1.01 * 0.998,
			Close:  price,
			Volume: 10,
		}
	}

	snap, ok := ComputeSnapshot(klines)
	if !ok {
		t.Fatal("expected snapshot")
	}
	if snap.Momentum <= 1 {
		t.Errorf("uptrend momentum should exceed 1, got %v", snap.Momentum)
	}
	if snap.RSI14 <= 70 {
		t.Errorf("steady uptrend should push RSI high, got %v", snap.RSI14)
	}
	if snap.MACDHist == 0 && snap.MACD == 0 {
		t.Error("expected non-zero MACD in a trend")
	}
	if snap.ZScore <= 0 {
		t.Errorf("price above rolling mean should give positive z-score, got %v", snap.ZScore)
	}
}
