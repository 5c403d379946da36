// Package cli provides shared helpers for the atlasbridge command line:
// typed command errors and signal handling.
package cli
