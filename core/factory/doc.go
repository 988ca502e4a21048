// Package factory builds pluggable service modules, such as metrics sinks,
// from configuration. A module is declared by its type name plus a raw
// settings map; the factory registered under that name decodes the settings
// and returns the concrete implementation.
package factory
