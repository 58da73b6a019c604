package workflow

import "errors"

// User-facing texts.
const (
	MsgGenericFailure = "Something went wrong on our side. Please try again later."
	MsgSubmitted      = "Thank you! Your answers were submitted."
	MsgCancelled      = "Cancelled."

	labelCancel = "✖ Cancel"
	labelSkip   = "Skip ⏭"
	labelDone   = "Done ✔"
	labelSubmit = "Submit ✔"
)

// Action verbs under the workflow token prefix.
const (
	ActCancel = "cancel"
	ActSkip   = "skip"
	ActDone   = "done"
	ActOption = "opt"
	ActToggle = "toggle"
	ActOK     = "ok"
	ActSubmit = "submit"
)

var (
	// ErrUnknownWorkflow is returned when starting a workflow that is not registered.
	ErrUnknownWorkflow = errors.New("unknown workflow")

	errNothingSelected = errors.New("nothing selected")
	errNothingAdded    = errors.New("nothing added")
	errListFull        = errors.New("list full")
	errUnknownOption   = errors.New("unknown option")
	errUseButtons      = errors.New("use buttons")
)

func stepErrorMessage(err error) string {
	switch {
	case errors.Is(err, errNothingSelected):
		return "Select at least one item first."
	case errors.Is(err, errNothingAdded):
		return "Add at least one item first, or skip the step if it is optional."
	case errors.Is(err, errListFull):
		return "The list is full. Press Done to continue."
	case errors.Is(err, errUnknownOption):
		return "That option is no longer available. Please pick another one."
	case errors.Is(err, errUseButtons):
		return "Please choose one of the buttons below."
	default:
		return ""
	}
}
