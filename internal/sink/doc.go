// Package sink delivers export events to their destinations.
//
// Every sink maps a page event at path P to <P>/index.html ("/" maps to
// index.html) and a file event to its public path, so an S3 bucket and a
// local directory seeded from the same run hold the same layout.
package sink
