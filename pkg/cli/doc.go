// Package cli provides the command-line interface for rbind.
//
// The cli package implements the commands for working with Review Board
// resources through package resources:
//   - branches: List the branches of a repository
//   - attachment get: Show a user file attachment
//   - attachment create: Upload a new user file attachment
//   - attachment update: Change an attachment's caption or file
//   - diff-file parse: Map diff viewer file entries read from a file or stdin
//   - config show: Display the effective configuration and where each value came from
//
// Configuration is resolved by package cliconfig with the precedence
// flags > environment > local file > global file > defaults.
package cli
