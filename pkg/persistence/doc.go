// Package persistence stores server runtime state that must survive a
// restart, such as aliases added while the server was running.
package persistence
