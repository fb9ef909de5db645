package ui

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
)

// Action represents the user's choice for a selected search result
type Action int

const (
	ActionShow Action = iota
	ActionCopy
	ActionBack
	ActionQuit
)

// PromptProvider prompts the user to select an embedding provider
func PromptProvider() (string, error) {
	var provider string
	prompt := &survey.Select{
		Message: "Select an embedding provider:",
		Options: []string{"hash", "ollama", "openai"},
		Default: "hash",
	}

	if err := survey.AskOne(prompt, &provider); err != nil {
		return "", err
	}

	return provider, nil
}

// ConfirmResult shows the selected passage and asks the user what to do
func ConfirmResult(summary string) (Action, error) {
	// Display the passage with nice formatting
	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Println("\nSelected passage:")
	fmt.Printf("  %s\n\n", summary)

	var choice string
	prompt := &survey.Select{
		Message: "What would you like to do?",
		Options: []string{
			"Show full text",
			"Copy to clipboard",
			"Back to results",
			"Quit",
		},
	}

	if err := survey.AskOne(prompt, &choice); err != nil {
		return ActionQuit, err
	}

	switch choice {
	case "Show full text":
		return ActionShow, nil
	case "Copy to clipboard":
		return ActionCopy, nil
	case "Back to results":
		return ActionBack, nil
	default:
		return ActionQuit, nil
	}
}

// PromptInput asks the user for a non-empty line of input
func PromptInput(message string) (string, error) {
	var value string
	prompt := &survey.Input{
		Message: message,
	}

	if err := survey.AskOne(prompt, &value, survey.WithValidator(survey.Required)); err != nil {
		return "", err
	}

	return value, nil
}

// PromptPassword asks for a secret without echoing it
func PromptPassword(message string) (string, error) {
	var value string
	prompt := &survey.Password{
		Message: message,
	}

	if err := survey.AskOne(prompt, &value, survey.WithValidator(survey.Required)); err != nil {
		return "", err
	}

	return value, nil
}

// PromptYesNo asks a yes/no question
func PromptYesNo(question string, defaultValue bool) (bool, error) {
	var confirmed bool
	prompt := &survey.Confirm{
		Message: question,
		Default: defaultValue,
	}

	if err := survey.AskOne(prompt, &confirmed); err != nil {
		return false, err
	}

	return confirmed, nil
}

// ShowMenu displays a selection menu and returns the chosen index
func ShowMenu(title string, options []string) (int, error) {
	var choice string
	prompt := &survey.Select{
		Message: title,
		Options: options,
	}

	if err := survey.AskOne(prompt, &choice); err != nil {
		return 0, err
	}

	for i, option := range options {
		if option == choice {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown selection: %q", choice)
}

// ShowSection displays a section header
func ShowSection(title string) {
	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Printf("\n=== %s ===\n", title)
}

// ShowSuccess displays a success message
func ShowSuccess(message string) {
	green := color.New(color.FgGreen, color.Bold)
	green.Printf("✓ %s\n", message)
}

// ShowError displays an error message
func ShowError(message string) {
	red := color.New(color.FgRed, color.Bold)
	red.Printf("✗ %s\n", message)
}

// ShowWarning displays a warning message
func ShowWarning(message string) {
	yellow := color.New(color.FgYellow, color.Bold)
	yellow.Printf("! %s\n", message)
}

// ShowInfo displays an info message
func ShowInfo(message string) {
	blue := color.New(color.FgBlue)
	blue.Println(message)
}
