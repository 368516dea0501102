// Package uia is the Windows accessibility backend, built on UI Automation
// through COM. The tree root is synthetic; its children are the host
// process's visible top-level windows.
package uia
