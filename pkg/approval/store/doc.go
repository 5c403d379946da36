// Package store provides approval request persistence backends.
package store
