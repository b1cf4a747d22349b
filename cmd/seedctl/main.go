// Command seedctl exports CMS content into static storage by rendering each
// page through the site's own web server, and serves the preview token API
// that lets those renders see unpublished revisions.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
