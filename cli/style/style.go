package style

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	Primary = lipgloss.Color("#7C3AED")
	Green   = lipgloss.Color("#10B981")
	Red     = lipgloss.Color("#EF4444")
	Yellow  = lipgloss.Color("#F59E0B")
	Cyan    = lipgloss.Color("#06B6D4")
	Dim     = lipgloss.Color("#6B7280")
	White   = lipgloss.Color("#F9FAFB")

	Banner = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary).
		MarginBottom(1)

	Subtitle = lipgloss.NewStyle().
			Foreground(Dim).
			Italic(true)

	Bold    = lipgloss.NewStyle().Bold(true).Foreground(White)
	Warning = lipgloss.NewStyle().Foreground(Yellow)
	DimText = lipgloss.NewStyle().Foreground(Dim)

	Complete   = lipgloss.NewStyle().Foreground(Green).Bold(true)
	Incomplete = lipgloss.NewStyle().Foreground(Red)

	// Step indicators
	StepPending = DimText
	StepRunning = lipgloss.NewStyle().Foreground(Yellow).Bold(true)
	StepDone    = lipgloss.NewStyle().Foreground(Green)
	StepFailed  = lipgloss.NewStyle().Foreground(Red).Bold(true)

	TableHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary).
			BorderBottom(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(Dim).
			PaddingRight(2)

	ErrorBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Red).
			Foreground(Red).
			Padding(0, 1).
			MarginTop(1)

	SuccessBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Green).
			Foreground(Green).
			Padding(0, 1).
			MarginTop(1)

	Hint = lipgloss.NewStyle().Foreground(Cyan).Italic(true)

	// Key-value
	Key = lipgloss.NewStyle().Foreground(Dim).Width(14)
	Val = lipgloss.NewStyle().Foreground(White)
)

// StackState colors a classified stack state.
func StackState(state string) string {
	switch state {
	case "SUCCEEDED":
		return StepDone.Render(state)
	case "FAILED", "ROLLED_BACK":
		return StepFailed.Render(state)
	case "IN_PROGRESS":
		return StepRunning.Render(state)
	default:
		return DimText.Render(state)
	}
}

// CompleteMark renders the completeness marker of a deployment listing.
func CompleteMark(complete bool) string {
	if complete {
		return Complete.Render("●")
	}
	return Incomplete.Render("○")
}
