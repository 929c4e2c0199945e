package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/dukex/botportal/pkg/models"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("236")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).Width(12)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("150"))
	detailStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1).
			MarginLeft(2)
	viewerStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)
)

var statusColors = map[models.ExecutionStatus]lipgloss.Color{
	models.ExecutionStatusQueued:      lipgloss.Color("220"),
	models.ExecutionStatusRunning:     lipgloss.Color("39"),
	models.ExecutionStatusCompleted:   lipgloss.Color("42"),
	models.ExecutionStatusFailed:      lipgloss.Color("203"),
	models.ExecutionStatusCancelled:   lipgloss.Color("245"),
	models.ExecutionStatusInterrupted: lipgloss.Color("208"),
}

func statusStyle(status models.ExecutionStatus) lipgloss.Style {
	color, ok := statusColors[status]
	if !ok {
		color = lipgloss.Color("250")
	}

	return lipgloss.NewStyle().Foreground(color).Width(15)
}
