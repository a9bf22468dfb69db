// Package sentinel provides a const-compatible error type for the sentinel
// errors exported by qlock. Keeping it in its own package lets the public
// package and the adapter packages declare error constants without an import
// cycle through internal/core.
package sentinel
