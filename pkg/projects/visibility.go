package projects

import (
	"strconv"

	"github.com/ethpandaops/portfolioor/pkg/github"
)

// Key is the visibility map key for a repository id.
func Key(id int64) string {
	return strconv.FormatInt(id, 10)
}

// IsVisible reports whether the repository with the given id is shown.
// Repositories are visible unless explicitly mapped to false.
func IsVisible(id int64, visibility map[string]bool) bool {
	shown, ok := visibility[Key(id)]

	return !ok || shown
}

// Visible returns the repositories that are not hidden, in their original
// order. Neither input is modified.
func Visible(repos []github.Repo, visibility map[string]bool) []github.Repo {
	out := make([]github.Repo, 0, len(repos))

	for _, r := range repos {
		if IsVisible(r.ID, visibility) {
			out = append(out, r)
		}
	}

	return out
}
