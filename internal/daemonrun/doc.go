// Package daemonrun assembles the production collaborators and runs the
// daemon until it receives SIGINT or SIGTERM.
package daemonrun
