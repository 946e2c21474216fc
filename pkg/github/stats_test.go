package github

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeStats(t *testing.T) {
	stats := ComputeStats([]Repo{
		{Stars: 3, Forks: 1, Language: "Go"},
		{Stars: 10, Forks: 2, Language: "TypeScript"},
		{Stars: 0, Forks: 0, Language: ""},
		{Stars: 1, Forks: 0, Language: "Go"},
	})

	assert.Equal(t, 4, stats.TotalRepos)
	assert.Equal(t, 14, stats.TotalStars)
	assert.Equal(t, 3, stats.TotalForks)
	assert.Equal(t, []string{"Go", "TypeScript"}, stats.Languages)
}

func TestComputeStats_Empty(t *testing.T) {
	stats := ComputeStats(nil)

	assert.Zero(t, stats.TotalRepos)
	assert.NotNil(t, stats.Languages)
	assert.Empty(t, stats.Languages)
}
