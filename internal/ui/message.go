package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/mixgen/internal/workflow"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgLoginComplete MsgKind = iota
	MsgGenerated
	MsgCreated
	MsgProgressUpdate
	MsgSessionExpired
	MsgOpened
)

type generatedData struct {
	pending *workflow.PendingPlaylist
	err     error
}

type createdData struct {
	created *workflow.CreatedPlaylist
	err     error
}

// loginCompleteMsg is the constructor for [MsgLoginComplete]
func loginCompleteMsg(err error) Msg {
	return Msg{kind: MsgLoginComplete, data: err}
}

// generatedMsg is the constructor for [MsgGenerated]
func generatedMsg(pending *workflow.PendingPlaylist, err error) Msg {
	return Msg{kind: MsgGenerated, data: generatedData{pending, err}}
}

// createdMsg is the constructor for [MsgCreated]
func createdMsg(created *workflow.CreatedPlaylist, err error) Msg {
	return Msg{kind: MsgCreated, data: createdData{created, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update workflow.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// SessionExpiredMsg is sent by the workflow's expire hook.
func SessionExpiredMsg() Msg {
	return Msg{kind: MsgSessionExpired}
}

// openedMsg is the constructor for [MsgOpened]
func openedMsg(err error) Msg {
	return Msg{kind: MsgOpened, data: err}
}

func errorOf(data any) error {
	err, _ := data.(error)
	return err
}
