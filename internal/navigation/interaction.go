package navigation

import (
	"strconv"
	"strings"
)

// Display is the interactive surface menu interaction reads from and
// writes feedback to — a narrower cut of the display collaborator spec.md
// §1 treats as out of scope (rendering itself is never this package's job).
type Display interface {
	ReadString(prompt string) string
	Text(s string)
	Error(s string)
	Warning(s string)
}

// GetChoice reads a single numeric index from display until it names a
// valid option in menu.
func GetChoice(menu Menu, display Display) string {
	return GetChoiceFromList(menu.Options, display)
}

// GetChoiceFromList is the bare index-validation loop (menu_interaction.py's
// get_choice_from_list).
func GetChoiceFromList(options []string, display Display) string {
	for {
		raw := strings.TrimSpace(display.ReadString("> "))
		index, err := strconv.Atoi(raw)
		if err != nil {
			display.Error("Invalid input — enter a number.")
			continue
		}
		if index < 0 || index >= len(options) {
			display.Error("Choice out of range.")
			continue
		}
		return options[index]
	}
}

// GetMultipleChoices reads a comma-separated list of indices and returns the
// corresponding options, re-prompting on any invalid index.
func GetMultipleChoices(options []string, display Display, prompt string) []string {
	display.Text(prompt)
	for {
		raw := display.ReadString("> ")
		parts := strings.Split(raw, ",")
		indices := make([]int, 0, len(parts))
		valid := true
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				valid = false
				break
			}
			indices = append(indices, n)
		}
		if !valid {
			display.Error("Invalid input — enter comma-separated numbers.")
			continue
		}

		var invalid []int
		for _, i := range indices {
			if i < 0 || i >= len(options) {
				invalid = append(invalid, i)
			}
		}
		if len(invalid) > 0 {
			display.Error("Invalid indices in selection.")
			continue
		}

		selected := make([]string, len(indices))
		for i, idx := range indices {
			selected[i] = options[idx]
		}
		return selected
	}
}

// GetChoiceWithSearch supports the "/term" in-menu filter mode: any input
// beginning with "/" narrows the option list by substring match (case
// insensitive); anything else is parsed as a selection index into the
// *currently filtered* list (menu_interaction.py's get_choice_with_search).
func GetChoiceWithSearch(options []string, display Display, searchPrompt string) string {
	filtered := append([]string(nil), options...)
	display.Text(searchPrompt + " (enter number or /term to filter):")

	for {
		raw := display.ReadString("> ")

		if strings.HasPrefix(raw, "/") {
			term := strings.ToLower(raw[1:])
			var next []string
			for _, opt := range options {
				if strings.Contains(strings.ToLower(opt), term) {
					next = append(next, opt)
				}
			}
			if len(next) == 0 {
				display.Warning("No matches found.")
				filtered = append([]string(nil), options...)
			} else {
				filtered = next
			}
			continue
		}

		index, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			display.Error("Invalid input — enter a number or /search")
			continue
		}
		if index < 0 || index >= len(filtered) {
			display.Error("Choice out of range.")
			continue
		}
		return filtered[index]
	}
}
