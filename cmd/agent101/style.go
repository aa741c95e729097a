package main

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func printSection(title, body string) {
	fmt.Println()
	fmt.Println(titleStyle.Render("=== " + title + " ==="))
	fmt.Println(body)
}

func printJSON(title string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		printError(err.Error())
		return
	}
	printSection(title, string(data))
}

func printAnswer(answer string) {
	fmt.Println()
	fmt.Println(boxStyle.Render(answer))
}

func printError(msg string) {
	fmt.Println(errorStyle.Render("[error] " + msg))
}
