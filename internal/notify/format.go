package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

const alertTimeLayout = "2006-01-02 15:04:05 UTC"

// FormatEvent renders the alert title and body for a detection.
func FormatEvent(ev domain.Event) (title, message string) {
	switch {
	case ev.Order != nil:
		return formatOrder(*ev.Order)
	case ev.Trade != nil:
		return formatTrade(*ev.Trade)
	}
	return "Whale alert: " + ev.Symbol, ""
}

func formatOrder(o domain.DetectedOrder) (string, string) {
	title := fmt.Sprintf("Large %s: %s %s", o.OrderType, o.Symbol, usd(o.OrderValueUSD))

	var b strings.Builder
	fmt.Fprintf(&b, "Side: %s\n", o.OrderSide)
	fmt.Fprintf(&b, "Size: %s shares @ %s\n", shares(o.SizeShares), usd(o.Price))
	if o.Spread != nil {
		fmt.Fprintf(&b, "Spread: %s\n", usd(*o.Spread))
	}
	fmt.Fprintf(&b, "Method: %s\n", o.DetectionMethod)
	fmt.Fprintf(&b, "Instrument: %s\n", o.Instrument)
	fmt.Fprintf(&b, "Time: %s", o.Timestamp.UTC().Format(alertTimeLayout))
	return title, b.String()
}

func formatTrade(t domain.DetectedTrade) (string, string) {
	title := fmt.Sprintf("Large Trade: %s %s", t.Symbol, usd(t.TradeValueUSD))

	var b strings.Builder
	fmt.Fprintf(&b, "Volume: %s shares\n", shares(t.Volume))
	fmt.Fprintf(&b, "Entry: %s  Exit: %s\n", usd(t.EntryPrice), usd(t.ExitPrice))
	fmt.Fprintf(&b, "Change: %s (%s%%)\n", signedUSD(t.PriceChange), decimal.NewFromFloat(t.PriceChangePct).StringFixed(2))
	fmt.Fprintf(&b, "Method: %s\n", t.DetectionMethod)
	fmt.Fprintf(&b, "Window: %s", window(t.EntryTime, t.ExitTime))
	return title, b.String()
}

// usd formats v as dollars with thousands separators, e.g. $1,234,567.89.
func usd(v float64) string {
	d := decimal.NewFromFloat(v).Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	fixed := d.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")
	return sign + "$" + group(whole) + "." + frac
}

func signedUSD(v float64) string {
	if v > 0 {
		return "+" + usd(v)
	}
	return usd(v)
}

func shares(n int64) string {
	if n < 0 {
		return "-" + group(fmt.Sprint(-n))
	}
	return group(fmt.Sprint(n))
}

// group inserts commas every three digits of an unsigned integer string.
func group(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func window(entry, exit time.Time) string {
	return fmt.Sprintf("%s to %s (%s)",
		entry.UTC().Format("15:04:05"),
		exit.UTC().Format("15:04:05"),
		exit.Sub(entry).Round(time.Second),
	)
}
