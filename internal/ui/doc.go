// Package ui implements an interactive terminal interface over [workflow.Workflow] using bubbletea's Elm architecture.
//
// The view is derived from the workflow's state:
//  1. logged out : prompt to log in, which opens the browser and waits for the redirect
//  2. ready : a form for track count, genre and playlist name
//  3. previewing : the generated tracks, confirmed with y or discarded with n
//  4. completed : the created playlist, which o opens in the browser
//
// Blocking workflow calls run as [tea.Cmd] functions and report back through the Msg union. Progress updates arrive
// on a channel the model registers with the workflow, and session expiry is pushed into the program by [Run].
package ui
