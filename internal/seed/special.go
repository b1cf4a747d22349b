package seed

import "github.com/keithlinneman/linnemanlabs-seed/internal/content"

const (
	FrontPath     = "/"
	NotFoundPath  = "/_quant404"
	ForbiddenPath = "/_quant403"
)

// SpecialPage maps a reserved output path to the CMS system path that
// provides its content.
type SpecialPage struct {
	Path   string
	Target string
}

// SpecialPages lists the reserved paths in emission order.
func SpecialPages(s content.Site) []SpecialPage {
	return []SpecialPage{
		{Path: FrontPath, Target: s.Front},
		{Path: NotFoundPath, Target: s.NotFound},
		{Path: ForbiddenPath, Target: s.Forbidden},
	}
}

// targets reports whether target is the system path of item id. Aliased
// targets never match.
func targets(target string, id int64) bool {
	n, ok := content.NodeID(target)
	return ok && n == id
}
