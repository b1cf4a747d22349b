package content

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Item is a content node as exported by the CMS.
type Item struct {
	ID          int64        `yaml:"nid" json:"nid"`
	RevisionID  int64        `yaml:"vid" json:"vid"`
	Title       string       `yaml:"title" json:"title"`
	Path        string       `yaml:"path" json:"path"`
	Author      string       `yaml:"author" json:"author"`
	Changed     time.Time    `yaml:"changed" json:"changed"`
	RevisionLog string       `yaml:"log" json:"log"`
	Published   bool         `yaml:"published" json:"published"`
	Transitions []Transition `yaml:"transitions" json:"transitions"`
}

// Transition is one content-moderation state change on an item.
type Transition struct {
	From      string    `yaml:"from" json:"from"`
	To        string    `yaml:"to" json:"to"`
	User      string    `yaml:"user" json:"user"`
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
}

const systemPrefix = "/node/"

// SystemPath is the unaliased CMS route for the item, e.g. /node/12.
func (it Item) SystemPath() string {
	return systemPrefix + strconv.FormatInt(it.ID, 10)
}

// URL is the alias when one is set, the system path otherwise.
func (it Item) URL() string {
	if it.Path != "" {
		return it.Path
	}
	return it.SystemPath()
}

// Validate checks the fields the exporter relies on.
func (it Item) Validate() error {
	if it.ID <= 0 {
		return fmt.Errorf("item %q: nid must be positive (got %d)", it.Title, it.ID)
	}
	if it.Path != "" && !strings.HasPrefix(it.Path, "/") {
		return fmt.Errorf("item %d: path %q must start with /", it.ID, it.Path)
	}
	return nil
}

// NodeID extracts the id from a system path of the form /node/<id>.
// Anything else, including aliases, reports false.
func NodeID(systemPath string) (int64, bool) {
	rest, ok := strings.CutPrefix(systemPath, systemPrefix)
	if !ok || rest == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
