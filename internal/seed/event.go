package seed

import "context"

// Event is one rendered page handed to the sinks.
type Event struct {
	Markup   string
	Path     string
	Metadata map[string]any
	// Revision is nil for exports that have no backing revision.
	Revision *int64
}

// FileEvent is one static file handed to the sinks. SourcePath is absolute;
// PublicPath is where the file is served on the site.
type FileEvent struct {
	SourcePath string
	PublicPath string
}

// Sink consumes export events. Implementations live in the sink package.
type Sink interface {
	Output(ctx context.Context, ev Event) error
	File(ctx context.Context, ev FileEvent) error
}
