package core

import "github.com/mkaran/coedit/internal/domain"

// palette holds the cursor/presence colors shown next to collaborators.
var palette = []string{
	"#e6194b",
	"#3cb44b",
	"#ffe119",
	"#4363d8",
	"#f58231",
	"#911eb4",
	"#46f0f0",
	"#f032e6",
	"#bcf60c",
	"#fabebe",
	"#008080",
	"#e6beff",
}

// ColorFor maps a user id to a stable palette color. Same id, same
// color for the process lifetime; collisions between users are fine.
func ColorFor(id domain.UserID) string {
	var h uint32
	for _, c := range id {
		h = h*31 + uint32(c)
	}
	return palette[h%uint32(len(palette))]
}
