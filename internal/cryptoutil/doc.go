// Package cryptoutil holds the content digests used to detect unchanged
// exports.
package cryptoutil
