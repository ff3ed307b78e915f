// Package cmd implements the command-line interface for mailfold.
//
// It provides the root command and its subcommands:
//   - serve: start the HTTP facade and metrics server
//   - version: print version information
package cmd
