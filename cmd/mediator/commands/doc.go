// Package commands implements the mediator CLI.
//
// The root command runs the local email/notification demo. publish sends a
// single request over the configured transport and listen dispatches every
// request it receives to the reference handlers.
package commands
