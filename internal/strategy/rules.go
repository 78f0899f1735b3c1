package strategy

import (
	"context"
	"fmt"
	"math"
	"time"
)

// The four rule strategies score long and short votes from the indicator
// snapshot and only emit when enough votes line up. Each carries its own
// confidence floor; a proposal under the floor is discarded, not emitted.

// MomentumRule trades RSI, MACD, and price momentum agreement.
type MomentumRule struct {
	MinConfidence float64
}

func (r *MomentumRule) Name() string { return "momentum" }

func (r *MomentumRule) Generate(_ context.Context, symbol string, snap Snapshot) (*Signal, error) {
	if snap.CurrentPrice <= 0 {
		return nil, nil
	}

	longVotes, shortVotes := 0, 0

	if snap.RSI7 > 60 && snap.RSI14 > 55 {
		longVotes++
	} else if snap.RSI7 < 40 && snap.RSI14 < 45 {
		shortVotes++
	}

	if snap.MACDSignal > 0 && snap.MACDHist > 0 {
		longVotes++
	} else if snap.MACDSignal < 0 && snap.MACDHist < 0 {
		shortVotes++
	}

	if snap.Momentum > 1.02 {
		longVotes++
	} else if snap.Momentum < 0.98 {
		shortVotes++
	}

	volumeBoost := 1.0
	if snap.VolumeRatio > 1.2 {
		volumeBoost = 1.2
	} else if snap.VolumeRatio < 0.8 {
		volumeBoost = 0.8
	}

	price, atr := snap.CurrentPrice, snap.ATR
	switch {
	case longVotes >= 2:
		return r.emit(symbol, ActionLong,
			math.Min(0.9, 0.5+float64(longVotes)*0.15*volumeBoost),
			price, price-atr*2, price+atr*3,
			fmt.Sprintf("momentum long: %d votes, volume_ratio=%.2f", longVotes, snap.VolumeRatio))
	case shortVotes >= 2:
		return r.emit(symbol, ActionShort,
			math.Min(0.9, 0.5+float64(shortVotes)*0.15*volumeBoost),
			price, price+atr*2, price-atr*3,
			fmt.Sprintf("momentum short: %d votes, volume_ratio=%.2f", shortVotes, snap.VolumeRatio))
	}
	return nil, nil
}

func (r *MomentumRule) emit(symbol string, action Action, confidence, entry, stop, target float64, reason string) (*Signal, error) {
	return finishRule("RULE:momentum", r.MinConfidence, symbol, action, confidence, entry, stop, target, reason)
}

// MeanReversionRule fades stretched prices back toward the band middle.
type MeanReversionRule struct {
	MinConfidence float64
}

func (r *MeanReversionRule) Name() string { return "mean_reversion" }

func (r *MeanReversionRule) Generate(_ context.Context, symbol string, snap Snapshot) (*Signal, error) {
	if snap.CurrentPrice <= 0 {
		return nil, nil
	}

	longVotes, shortVotes := 0, 0

	if snap.ZScore < -1.5 {
		longVotes++
	} else if snap.ZScore > 1.5 {
		shortVotes++
	}

	if snap.BBPosition < 0.2 {
		longVotes++
	} else if snap.BBPosition > 0.8 {
		shortVotes++
	}

	if snap.RSI14 < 30 {
		longVotes++
	} else if snap.RSI14 > 70 {
		shortVotes++
	}

	price, atr := snap.CurrentPrice, snap.ATR
	reason := fmt.Sprintf("mean reversion: z_score=%.2f, bb_position=%.2f", snap.ZScore, snap.BBPosition)
	switch {
	case longVotes >= 2:
		stop := math.Min(price-atr*2, snap.BBLower*0.995)
		return finishRule("RULE:mean_reversion", r.MinConfidence, symbol, ActionLong,
			math.Min(0.85, 0.55+float64(longVotes)*0.1), price, stop, snap.BBMiddle, reason)
	case shortVotes >= 2:
		stop := math.Max(price+atr*2, snap.BBUpper*1.005)
		return finishRule("RULE:mean_reversion", r.MinConfidence, symbol, ActionShort,
			math.Min(0.85, 0.55+float64(shortVotes)*0.1), price, stop, snap.BBMiddle, reason)
	}
	return nil, nil
}

// BreakoutRule trades band escapes confirmed by volume and volatility.
type BreakoutRule struct {
	MinConfidence float64
}

func (r *BreakoutRule) Name() string { return "breakout" }

func (r *BreakoutRule) Generate(_ context.Context, symbol string, snap Snapshot) (*Signal, error) {
	if snap.CurrentPrice <= 0 {
		return nil, nil
	}

	price := snap.CurrentPrice
	longVotes, shortVotes := 0, 0

	if price > snap.BBUpper*1.001 && snap.VolumeRatio > 1.3 {
		longVotes += 2
	} else if price > snap.BBMiddle*1.005 && snap.Momentum > 1.01 && snap.VolumeRatio > 1.2 {
		longVotes++
	}

	if price < snap.BBLower*0.999 && snap.VolumeRatio > 1.3 {
		shortVotes += 2
	} else if price < snap.BBMiddle*0.995 && snap.Momentum < 0.99 && snap.VolumeRatio > 1.2 {
		shortVotes++
	}

	// Volatility expansion confirms an existing lean.
	if snap.Volatility > 0.02 {
		if longVotes > 0 {
			longVotes++
		}
		if shortVotes > 0 {
			shortVotes++
		}
	}

	atr := snap.ATR
	switch {
	case longVotes >= 2:
		return finishRule("RULE:breakout", r.MinConfidence, symbol, ActionLong,
			math.Min(0.9, 0.6+float64(longVotes)*0.1), price, snap.BBUpper, price+atr*4,
			fmt.Sprintf("breakout long: price=%.2f, bb_upper=%.2f, volume_ratio=%.2f", price, snap.BBUpper, snap.VolumeRatio))
	case shortVotes >= 2:
		return finishRule("RULE:breakout", r.MinConfidence, symbol, ActionShort,
			math.Min(0.9, 0.6+float64(shortVotes)*0.1), price, snap.BBLower, price-atr*4,
			fmt.Sprintf("breakout short: price=%.2f, bb_lower=%.2f, volume_ratio=%.2f", price, snap.BBLower, snap.VolumeRatio))
	}
	return nil, nil
}

// TrendFollowingRule rides established MACD trends; it demands the most
// agreement and carries the highest confidence floor.
type TrendFollowingRule struct {
	MinConfidence float64
}

func (r *TrendFollowingRule) Name() string { return "trend_following" }

func (r *TrendFollowingRule) Generate(_ context.Context, symbol string, snap Snapshot) (*Signal, error) {
	if snap.CurrentPrice <= 0 {
		return nil, nil
	}

	price := snap.CurrentPrice
	longVotes, shortVotes := 0, 0

	if snap.MACD > snap.MACDSignal && snap.MACDHist > 0 {
		longVotes += 2
	} else if snap.MACD < snap.MACDSignal && snap.MACDHist < 0 {
		shortVotes += 2
	}

	if price > snap.BBMiddle*1.002 {
		longVotes++
	} else if price < snap.BBMiddle*0.998 {
		shortVotes++
	}

	if snap.Momentum > 1.01 {
		longVotes++
	} else if snap.Momentum < 0.99 {
		shortVotes++
	}

	if snap.RSI14 > 40 && snap.RSI14 < 70 {
		if longVotes > 0 {
			longVotes++
		}
		if shortVotes > 0 {
			shortVotes++
		}
	}

	atr := snap.ATR
	reason := fmt.Sprintf("trend following: momentum=%.4f, macd=%.4f", snap.Momentum, snap.MACD)
	switch {
	case longVotes >= 3:
		return finishRule("RULE:trend_following", r.MinConfidence, symbol, ActionLong,
			math.Min(0.9, 0.65+float64(longVotes)*0.08), price, price-atr*2.5, price+atr*5, reason)
	case shortVotes >= 3:
		return finishRule("RULE:trend_following", r.MinConfidence, symbol, ActionShort,
			math.Min(0.9, 0.65+float64(shortVotes)*0.08), price, price+atr*2.5, price-atr*5, reason)
	}
	return nil, nil
}

// finishRule assembles and vets a rule proposal. Structural failures and
// sub-floor confidence both yield no signal.
func finishRule(source string, floor float64, symbol string, action Action, confidence, entry, stop, target float64, reason string) (*Signal, error) {
	sig := &Signal{
		Symbol:     symbol,
		Action:     action,
		Confidence: confidence,
		EntryPrice: entry,
		StopLoss:   stop,
		TakeProfit: target,
		Source:     source,
		Reason:     reason,
		Timestamp:  time.Now().UTC(),
	}
	if sig.Confidence < floor {
		return nil, nil
	}
	if err := sig.Validate(); err != nil {
		return nil, nil
	}
	return sig, nil
}
