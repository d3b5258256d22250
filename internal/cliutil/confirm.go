// Package cliutil holds the small interactive-terminal helpers fsbctl uses
// for its destructive operator commands: a yes/no confirmation prompt and a
// plain table renderer.
package cliutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user interrupts a prompt with Ctrl+C.
var ErrAborted = errors.New("cliutil: aborted by user")

// Confirm prompts label and returns true if the operator answers yes. A
// bare Enter takes defaultYes. Ctrl+C returns ErrAborted rather than false,
// so callers can distinguish "said no" from "gave up".
func Confirm(label string, defaultYes bool) (bool, error) {
	defaultStr := "y/N"
	if defaultYes {
		defaultStr = "Y/n"
	}

	prompt := promptui.Prompt{
		Label:     fmt.Sprintf("%s [%s]", label, defaultStr),
		IsConfirm: true,
	}
	if defaultYes {
		prompt.Default = "y"
	}

	result, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			return false, ErrAborted
		}
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		if result == "" {
			return defaultYes, nil
		}
		return false, err
	}
	if result == "" {
		return defaultYes, nil
	}

	return strings.EqualFold(result, "y") || strings.EqualFold(result, "yes"), nil
}
