// Package content models the CMS side of an export: the content items the
// host system hands over, their workflow transitions, and the YAML manifest
// that lists what a seed run should export.
//
// Items are read-only to the exporter. The manifest also carries the site
// section (front page and 403/404 targets) that drives special-path fan-out.
package content
