package output

import "github.com/charmbracelet/lipgloss"

// Palette
var (
	ColorAccent  = lipgloss.AdaptiveColor{Light: "#1e66f5", Dark: "#89b4fa"}
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#40a02b", Dark: "#a6e3a1"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#df8e1d", Dark: "#f9e2af"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#d20f39", Dark: "#f38ba8"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#6c6f85", Dark: "#7f849c"}
)

// Styles groups the text styles commands use.
type Styles struct {
	Heading lipgloss.Style
	Header  lipgloss.Style // table header
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	Box     lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		Heading: r.NewStyle().Bold(true).Foreground(ColorAccent),
		Header:  r.NewStyle().Bold(true),
		Success: r.NewStyle().Foreground(ColorSuccess),
		Warning: r.NewStyle().Foreground(ColorWarning),
		Error:   r.NewStyle().Foreground(ColorError).Bold(true),
		Muted:   r.NewStyle().Foreground(ColorMuted),
		Box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorAccent).
			Padding(0, 1),
	}
}

// StatusStyle picks the style for a message log status.
func (s Styles) StatusStyle(status string) lipgloss.Style {
	switch status {
	case "replied", "sent":
		return s.Success
	case "rate_limited":
		return s.Warning
	case "failed":
		return s.Error
	default:
		return s.Muted
	}
}
