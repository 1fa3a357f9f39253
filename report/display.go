package report

import (
	"encoding/json"
	"fmt"

	"github.com/pterm/pterm"
)

var (
	successColorFG = pterm.FgLightGreen
	successStyleBG = pterm.NewStyle(pterm.BgLightGreen, pterm.FgBlack)
	warnColorFG    = pterm.FgYellow
	warnStyleBG    = pterm.NewStyle(pterm.BgYellow, pterm.FgBlack)
	errorColorFG   = pterm.FgRed
	errorStyleBG   = pterm.NewStyle(pterm.BgRed, pterm.FgWhite)
)

// displayError prints an error message to the console.
func displayError(msg string) {
	errorStyleBG.Print("Error")
	errorColorFG.Println(" " + msg)
}

// displayWarning prints a warning message to the console.
func displayWarning(msg string) {
	warnStyleBG.Print("Warning")
	warnColorFG.Println(" " + msg)
}

// displayInfo prints an informational message to the console.
func displayInfo(msg string) {
	successStyleBG.Print("Info")
	successColorFG.Println(" " + msg)
}

// displayFatal prints a fatal error message to the console.
func displayFatal(msg string) {
	errorStyleBG.Print("Fatal Error")
	errorColorFG.Println(" " + msg)
}

// displayEntry prints a single result entry: the code banner, the overview,
// and the indented context JSON below it.
func displayEntry(ent Entry, isError bool) {
	if isError {
		errorStyleBG.Print(ent.Code)
	} else {
		warnStyleBG.Print(ent.Code)
	}
	fmt.Println(" " + ent.Overview)

	if len(ent.Data) > 0 {
		pretty, err := json.MarshalIndent(ent.Data, "  ", "  ")
		if err == nil {
			fmt.Println("  " + string(pretty))
		}
	}
}
