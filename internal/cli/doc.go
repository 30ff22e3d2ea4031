// Package cli is responsible for parsing command-line arguments, merging them
// with the settings file and environment, and handling process-level
// concerns like exit codes. It translates the command line into the
// application's configuration.
package cli
