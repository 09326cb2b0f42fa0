// Package navigation implements the breadcrumb-driven navigation surface:
// menu construction and interaction, and zLink cross-file linking with
// permission predicates (spec.md §4.2 "Linking" and "Menu subsystem").
// Grounded on menu_builder.py, menu_interaction.py, and linking.py.
package navigation

import "fmt"

// Menu is the built, render-ready representation of a set of choices
// (menu_builder.py's `build`).
type Menu struct {
	Options   []string
	Title     string
	AllowBack bool
}

// BackOption is the sentinel appended when AllowBack is set and the caller's
// options don't already include it.
const BackOption = "zBack"

// Build normalises options (a list, or a map whose keys become the options)
// into a Menu, appending BackOption when allowBack is set and it isn't
// already present.
func Build(options interface{}, title string, allowBack bool) Menu {
	var list []string
	switch v := options.(type) {
	case []string:
		list = append(list, v...)
	case map[string]interface{}:
		for k := range v {
			list = append(list, k)
		}
	default:
		list = []string{fmt.Sprintf("%v", options)}
	}

	if allowBack && !contains(list, BackOption) {
		list = append(list, BackOption)
	}

	return Menu{Options: list, Title: title, AllowBack: allowBack}
}

// BuildDynamic realises a callable or pre-fetched data source into a Menu.
// source is either a func() []string (realised eagerly) or a []string.
func BuildDynamic(source interface{}, title string, allowBack bool) Menu {
	switch v := source.(type) {
	case func() []string:
		return Build(v(), title, allowBack)
	case []string:
		return Build(v, title, allowBack)
	default:
		return Build([]string{fmt.Sprintf("%v", source)}, title, allowBack)
	}
}

func contains(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}
