// Package version carries mapperd's build-time version metadata.
package version

// VERSION of mapperd, set during the build process with -ldflags.
var VERSION = "undefined"
