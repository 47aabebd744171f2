package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Width(10)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("229"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func printTitle(s string) {
	fmt.Println(titleStyle.Render(s))
}

func printField(label, value string) {
	fmt.Println("  " + labelStyle.Render(label) + valueStyle.Render(value))
}

func printOK(format string, args ...any) {
	fmt.Println(okStyle.Render(fmt.Sprintf(format, args...)))
}

func printFail(format string, args ...any) {
	fmt.Println(failStyle.Render(fmt.Sprintf(format, args...)))
}
