// Package memory provides in-process stores for development and tests.
package memory
