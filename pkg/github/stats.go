package github

// Stats summarizes a set of repositories.
type Stats struct {
	TotalRepos int      `json:"totalRepos"`
	TotalStars int      `json:"totalStars"`
	TotalForks int      `json:"totalForks"`
	Languages  []string `json:"languages"`
}

// ComputeStats totals stars and forks and collects the distinct primary
// languages in first-seen order.
func ComputeStats(repos []Repo) Stats {
	stats := Stats{
		TotalRepos: len(repos),
		Languages:  make([]string, 0, 8),
	}

	seen := make(map[string]struct{}, 8)

	for _, r := range repos {
		stats.TotalStars += r.Stars
		stats.TotalForks += r.Forks

		if r.Language == "" {
			continue
		}

		if _, ok := seen[r.Language]; ok {
			continue
		}

		seen[r.Language] = struct{}{}
		stats.Languages = append(stats.Languages, r.Language)
	}

	return stats
}
