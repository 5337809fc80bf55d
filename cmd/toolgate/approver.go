package main

import (
	"fmt"
	"log/slog"

	"github.com/charmbracelet/huh"

	"github.com/kallt/toolgate/internal/bus"
	"github.com/kallt/toolgate/pkg/call"
)

// terminalApprover answers confirmation requests with an interactive
// form on the controlling terminal. The bus delivers requests one at a
// time, so prompts never interleave.
type terminalApprover struct {
	bus    *bus.Bus
	logger *slog.Logger
}

func newTerminalApprover(b *bus.Bus, logger *slog.Logger) *terminalApprover {
	if logger == nil {
		logger = slog.Default()
	}
	return &terminalApprover{bus: b, logger: logger}
}

func (a *terminalApprover) handle(req bus.Request) {
	var choice call.Outcome

	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[call.Outcome]().
			Title(fmt.Sprintf("Allow %s?", req.ToolName)).
			Description(req.Description).
			Options(
				huh.NewOption("Yes, once", call.ProceedOnce),
				huh.NewOption("Yes, always for this command", call.ProceedAlways),
				huh.NewOption("No, cancel this call", call.CancelCall),
			).
			Value(&choice),
	))

	if err := form.Run(); err != nil {
		// Ctrl-C in the form cancels the call, not the process.
		a.logger.Warn("approval prompt aborted", "tool", req.ToolName, "error", err)
		a.bus.Resolve(bus.Response{CorrelationID: req.CorrelationID, Cancelled: true})
		return
	}

	a.bus.Resolve(bus.Response{CorrelationID: req.CorrelationID, Outcome: choice})
}
