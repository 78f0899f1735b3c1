package llm

import (
	"fmt"

	"paper-trading-bot/internal/strategy"
)

func signalPrompt(symbol string, snap strategy.Snapshot) string {
	return fmt.Sprintf(`Analyze the following cryptocurrency market data for %s and provide a trading signal.

Current Price: $%.2f
RSI (14): %.2f
RSI (7): %.2f
MACD Signal: %.4f
Bollinger Bands Position: %.2f (0=lower band, 1=upper band)
Volume Ratio: %.2f
Volatility: %.4f

Provide your analysis in JSON format:
{
    "action": "LONG" or "SHORT" or "FLAT",
    "confidence": 0.0-1.0,
    "entry_price": estimated entry price,
    "stop_loss": stop loss price,
    "take_profit": take profit price,
    "reason": "brief explanation"
}

Respond with ONLY the JSON, no additional text.`,
		symbol, snap.CurrentPrice, snap.RSI14, snap.RSI7, snap.MACDSignal,
		snap.BBPosition, snap.VolumeRatio, snap.Volatility)
}

func riskPrompt(sig *strategy.Signal, snap strategy.Snapshot) string {
	var risk, reward float64
	switch sig.Action {
	case strategy.ActionLong:
		risk = sig.EntryPrice - sig.StopLoss
		reward = sig.TakeProfit - sig.EntryPrice
	case strategy.ActionShort:
		risk = sig.StopLoss - sig.EntryPrice
		reward = sig.EntryPrice - sig.TakeProfit
	}
	riskReward := 0.0
	if risk > 0 {
		riskReward = reward / risk
	}

	return fmt.Sprintf(`Assess the risk of this trading signal for %s:

Action: %s
Entry Price: $%.2f
Stop Loss: $%.2f
Take Profit: $%.2f
Confidence: %.2f
Risk/Reward Ratio: %.2f
Current Volatility: %.4f
Volume Ratio: %.2f

Analyze the risk and respond with ONLY a JSON object:
{
    "approved": true or false,
    "reason": "brief explanation"
}

Respond with ONLY the JSON, no additional text.`,
		sig.Symbol, sig.Action, sig.EntryPrice, sig.StopLoss, sig.TakeProfit,
		sig.Confidence, riskReward, snap.Volatility, snap.VolumeRatio)
}
