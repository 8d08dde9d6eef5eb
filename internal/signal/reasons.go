package signal

import (
	"fmt"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

const maxReasons = 6

// Reasons builds one line per indicator in the order RSI, MACD, EMA,
// Bollinger, sentiment, volume. Sentiment is omitted when unknown.
func Reasons(price float64, snap models.IndicatorSnapshot, sentiment *int) []string {
	out := make([]string, 0, maxReasons)
	out = append(out, rsiReason(snap.RSI))
	out = append(out, macdReason(snap.MACDLine, snap.MACDHistogram))
	out = append(out, emaReason(classifyTrend(price, snap.EMAFast, snap.EMASlow)))
	out = append(out, bollingerReason(percentB(price, snap)))
	if sentiment != nil {
		out = append(out, sentimentReason(*sentiment))
	}
	out = append(out, volumeReason(snap.VolumeRatio))
	if len(out) > maxReasons {
		out = out[:maxReasons]
	}
	return out
}

func rsiReason(rsi float64) string {
	switch {
	case rsi > 80:
		return fmt.Sprintf("RSI %.1f extremely overbought", rsi)
	case rsi > 70:
		return fmt.Sprintf("RSI %.1f overbought", rsi)
	case rsi < 20:
		return fmt.Sprintf("RSI %.1f extremely oversold", rsi)
	case rsi < 30:
		return fmt.Sprintf("RSI %.1f oversold", rsi)
	default:
		return fmt.Sprintf("RSI %.1f neutral", rsi)
	}
}

func macdReason(line, hist float64) string {
	switch {
	case hist > 0 && line > 0:
		return "MACD bullish momentum above zero"
	case hist < 0 && line < 0:
		return "MACD bearish momentum below zero"
	case hist > 0:
		return "MACD histogram turning up"
	case hist < 0:
		return "MACD histogram turning down"
	default:
		return "MACD flat"
	}
}

func emaReason(t trend) string {
	switch t {
	case trendStrongBullish:
		return "Price above EMA50, EMA50 above EMA200 (uptrend)"
	case trendBullish:
		return "EMA50 above EMA200, price pulled back below EMA50"
	case trendBearish:
		return "EMA50 below EMA200, price bounced above EMA50"
	default:
		return "Price below EMA50, EMA50 below EMA200 (downtrend)"
	}
}

func bollingerReason(pb float64) string {
	switch {
	case pb > 1:
		return fmt.Sprintf("Price above upper Bollinger band (%%B %.2f)", pb)
	case pb > 0.8:
		return fmt.Sprintf("Price near upper Bollinger band (%%B %.2f)", pb)
	case pb < 0:
		return fmt.Sprintf("Price below lower Bollinger band (%%B %.2f)", pb)
	case pb < 0.2:
		return fmt.Sprintf("Price near lower Bollinger band (%%B %.2f)", pb)
	default:
		return fmt.Sprintf("Price inside Bollinger bands (%%B %.2f)", pb)
	}
}

func sentimentReason(v int) string {
	switch {
	case v >= 80:
		return fmt.Sprintf("Extreme greed (%d)", v)
	case v >= 65:
		return fmt.Sprintf("Greed (%d)", v)
	case v <= 20:
		return fmt.Sprintf("Extreme fear (%d)", v)
	case v <= 35:
		return fmt.Sprintf("Fear (%d)", v)
	default:
		return fmt.Sprintf("Neutral sentiment (%d)", v)
	}
}

func volumeReason(ratio float64) string {
	switch {
	case ratio >= 2:
		return fmt.Sprintf("Volume %.1fx average confirms the move", ratio)
	case ratio <= 0.5:
		return fmt.Sprintf("Thin volume (%.1fx average)", ratio)
	default:
		return fmt.Sprintf("Volume %.1fx average", ratio)
	}
}
