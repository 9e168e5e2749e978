package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/gpyt/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg is the message union the model receives from background work.
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgProgressUpdate MsgKind = iota
	MsgTargetRequested
	MsgRunComplete
)

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// targetRequestedMsg is the constructor for [MsgTargetRequested]
func targetRequestedMsg(req *targetRequest) Msg {
	return Msg{kind: MsgTargetRequested, data: req}
}

// runCompleteMsg is the constructor for [MsgRunComplete]
func runCompleteMsg(result *tasks.RunResult, err error) Msg {
	return Msg{
		kind: MsgRunComplete,
		data: runOutcome{result: result, err: err},
	}
}

type runOutcome struct {
	result *tasks.RunResult
	err    error
}
