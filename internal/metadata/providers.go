package metadata

import "github.com/keithlinneman/linnemanlabs-seed/internal/content"

// Info reports authorship and revision details under "info".
type Info struct{}

func (Info) Name() string              { return "info" }
func (Info) Applies(content.Item) bool { return true }

func (Info) Build(it content.Item) map[string]any {
	var ts int64
	if !it.Changed.IsZero() {
		ts = it.Changed.Unix()
	}
	return map[string]any{
		"info": map[string]any{
			"author":         it.Author,
			"date_timestamp": ts,
			"log":            it.RevisionLog,
		},
	}
}

// Published reports the item's publication state.
type Published struct{}

func (Published) Name() string              { return "published" }
func (Published) Applies(content.Item) bool { return true }

func (Published) Build(it content.Item) map[string]any {
	return map[string]any{"published": it.Published}
}

// Transitions lists moderation state changes, oldest first. Items without
// moderation history are skipped.
type Transitions struct{}

func (Transitions) Name() string { return "transitions" }

func (Transitions) Applies(it content.Item) bool { return len(it.Transitions) > 0 }

func (Transitions) Build(it content.Item) map[string]any {
	out := make([]map[string]any, 0, len(it.Transitions))
	for _, t := range it.Transitions {
		out = append(out, map[string]any{
			"from":      t.From,
			"to":        t.To,
			"user":      t.User,
			"timestamp": t.Timestamp.Unix(),
		})
	}
	return map[string]any{"transitions": out}
}
