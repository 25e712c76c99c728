package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/GlowingScrewdriver/go-sntp/internal/sntp"
)

var (
	colorIce   = lipgloss.Color("#A8D8EA")
	colorDeep  = lipgloss.Color("#596E79")
	colorGood  = lipgloss.Color("#4ECDC4")
	colorAlert = lipgloss.Color("#FF6B6B")
	colorMuted = lipgloss.Color("#6c757d")
)

var (
	styleTitle = lipgloss.NewStyle().
			Foreground(colorIce).
			Bold(true)

	styleCard = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDeep).
			Padding(0, 1)

	styleLabel = lipgloss.NewStyle().
			Foreground(colorDeep).
			Width(labelWidth)

	styleMuted = lipgloss.NewStyle().Foreground(colorMuted)

	styleGood = lipgloss.NewStyle().Foreground(colorGood).Bold(true)
	styleBad  = lipgloss.NewStyle().Foreground(colorAlert).Bold(true)
)

// wide enough for "ReferenceIdentifier" plus a gap
const labelWidth = 21

var leapNames = map[uint8]string{
	sntp.LeapNone:      "no warning",
	sntp.LeapAddSecond: "last minute has 61 seconds",
	sntp.LeapDelSecond: "last minute has 59 seconds",
	sntp.LeapNotInSync: "alarm, clock not synchronized",
}

// renderMessage draws every header field of m in a bordered card.
func renderMessage(title string, m *sntp.Message) string {
	lines := []string{styleTitle.Render(title)}
	for _, fv := range m.Fields() {
		lines = append(lines, styleLabel.Render(fv.Name)+describeField(m, fv))
	}
	return styleCard.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func describeField(m *sntp.Message, fv sntp.FieldValue) string {
	switch fv.Name {
	case sntp.FieldLI:
		return fmt.Sprintf("%d %s", fv.Value, styleMuted.Render("("+leapNames[uint8(fv.Value)]+")"))
	case sntp.FieldMode:
		return fmt.Sprintf("%d %s", fv.Value, styleMuted.Render("("+sntp.Mode(fv.Value).String()+")"))
	case sntp.FieldPoll, sntp.FieldPrecision:
		exp := int8(fv.Value)
		return fmt.Sprintf("%d %s", exp, styleMuted.Render(fmt.Sprintf("(%s)", log2Duration(exp))))
	case sntp.FieldRootDelay, sntp.FieldRootDispersion:
		return fmt.Sprintf("%#08x %s", fv.Value, styleMuted.Render(fmt.Sprintf("(%.6f s)", shortSeconds(uint32(fv.Value)))))
	case sntp.FieldReferenceIdentifier:
		return fmt.Sprintf("%#08x %s", fv.Value, styleMuted.Render("("+sntp.FormatReferenceID(uint32(fv.Value), m.Stratum())+")"))
	case sntp.FieldReferenceTimestamp, sntp.FieldOriginateTimestamp, sntp.FieldReceiveTimestamp, sntp.FieldTransmitTimestamp:
		return formatTimestamp(sntp.Timestamp(fv.Value))
	default:
		return fmt.Sprintf("%d", fv.Value)
	}
}

// shortSeconds converts an NTP short format (16.16) value to seconds.
func shortSeconds(v uint32) float64 {
	return float64(v) / 65536
}

func log2Duration(exp int8) time.Duration {
	if exp >= 0 {
		return time.Duration(1<<uint(exp)) * time.Second
	}
	return time.Duration(float64(time.Second) / float64(uint64(1)<<uint(-exp)))
}

func formatTimestamp(ts sntp.Timestamp) string {
	if ts.IsZero() {
		return fmt.Sprintf("%#016x %s", uint64(ts), styleMuted.Render("(unset)"))
	}
	return fmt.Sprintf("%#016x %s", uint64(ts), styleMuted.Render("("+ts.Time().UTC().Format(time.RFC3339Nano)+")"))
}

// renderResult summarizes an exchange outcome.
func renderResult(res *sntp.Result) string {
	var b strings.Builder
	server := "-"
	if res.Server != nil {
		server = res.Server.String()
	}

	if !res.Accepted() {
		fmt.Fprintf(&b, "%s %s\n", styleBad.Render("REJECTED"), server)
		fmt.Fprintf(&b, "%s%v", styleLabel.Render("reason"), res.Reason)
		return b.String()
	}

	resp := res.Response
	fmt.Fprintf(&b, "%s %s\n", styleGood.Render("ACCEPTED"), server)
	fmt.Fprintf(&b, "%s%d %s\n", styleLabel.Render("stratum"), resp.Stratum(),
		styleMuted.Render("("+sntp.FormatReferenceID(resp.ReferenceID(), resp.Stratum())+")"))
	fmt.Fprintf(&b, "%s%+.6f s\n", styleLabel.Render("offset"), res.Offset)
	fmt.Fprintf(&b, "%s%.6f s\n", styleLabel.Render("delay"), res.Delay)
	fmt.Fprintf(&b, "%s%s", styleLabel.Render("corrected time"), res.CorrectedTime().UTC().Format(time.RFC3339Nano))
	return b.String()
}
