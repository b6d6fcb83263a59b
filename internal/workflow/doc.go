// Package workflow implements the session and playlist workflow: implicit grant login, recommendation generation,
// preview and playlist creation.
//
// # States
//
//	LoggedOut → Authenticating → Ready → Generating → Previewing → Creating → Completed
//
// [Workflow.ResetForNewPlaylist] returns to Ready from Previewing or Completed. [Workflow.Logout], the session
// expiry timer and any 401 from the catalog return to LoggedOut from every state.
//
// # Concurrency
//
// One operation runs at a time; a second call while one is in flight fails with [shared.ErrBusy]. Catalog calls are
// made without holding the workflow lock. Each session has an epoch, and an operation whose session was cleared
// while it waited on the network finishes without touching state and returns [shared.ErrSessionExpired].
//
// # Progress
//
// Operations emit [ProgressUpdate] values on the channel passed to [Workflow.SetProgress]. Sends never block, so a
// slow consumer misses updates rather than stalling the workflow.
package workflow
