package projects

import (
	"strings"
	"time"
	"unicode"

	"github.com/ethpandaops/portfolioor/pkg/config"
	"github.com/ethpandaops/portfolioor/pkg/github"
)

const defaultLanguageColor = "#00FF94"

var languageColors = map[string]string{
	"JavaScript": "#f1e05a",
	"TypeScript": "#3178c6",
	"Python":     "#3572A5",
	"HTML":       "#e34c26",
	"CSS":        "#563d7c",
	"C":          "#555555",
	"C++":        "#f34b7d",
	"Java":       "#b07219",
	"Go":         "#00ADD8",
	"Rust":       "#dea584",
	"PHP":        "#4F5D95",
}

var defaultLanguageImages = map[string]string{
	"JavaScript": "https://images.unsplash.com/photo-1627398242454-45a1465c2479?w=600",
	"TypeScript": "https://images.unsplash.com/photo-1627398242454-45a1465c2479?w=600",
	"Python":     "https://images.unsplash.com/photo-1526379095098-d400fd0bf935?w=600",
	"HTML":       "https://images.unsplash.com/photo-1542831371-29b0f74f9713?w=600",
	"C":          "https://images.unsplash.com/photo-1629654297299-c8506221ca97?w=600",
	"C++":        "https://images.unsplash.com/photo-1629654297299-c8506221ca97?w=600",
}

// Project is a repository as shown on the portfolio.
type Project struct {
	ID            int64     `json:"id,omitempty"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Image         string    `json:"image"`
	Category      Category  `json:"category"`
	Tags          []string  `json:"tags"`
	URL           string    `json:"url,omitempty"`
	LiveURL       string    `json:"liveUrl,omitempty"`
	Language      string    `json:"language,omitempty"`
	LanguageColor string    `json:"languageColor,omitempty"`
	Stars         int       `json:"stars"`
	Forks         int       `json:"forks"`
	UpdatedAt     time.Time `json:"updatedAt,omitzero"`
	Visible       bool      `json:"visible"`
	Featured      bool      `json:"featured,omitempty"`
}

// LanguageColor returns the badge color for a primary language.
func LanguageColor(language string) string {
	if c, ok := languageColors[language]; ok {
		return c
	}

	return defaultLanguageColor
}

// NormalizeName lower-cases a repository name and strips whitespace,
// dashes and underscores, so "My-Tool" and "my_tool" share lookups.
func NormalizeName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' || r == '_' {
			return -1
		}

		return unicode.ToLower(r)
	}, name)
}

// Presenter enriches repositories with images, live URLs and categories.
type Presenter struct {
	images         map[string]string
	liveURLs       map[string]string
	languageImages map[string]string
	defaultImage   string
	featured       []config.FeaturedProject
}

// NewPresenter builds a Presenter from configuration. Configured image and
// live URL keys are normalized with NormalizeName.
func NewPresenter(cfg *config.ProjectsConfig) *Presenter {
	p := &Presenter{
		images:         make(map[string]string, len(cfg.Images)),
		liveURLs:       make(map[string]string, len(cfg.LiveURLs)),
		languageImages: make(map[string]string, len(defaultLanguageImages)),
		defaultImage:   cfg.DefaultImage,
		featured:       cfg.Featured,
	}

	for k, v := range cfg.Images {
		p.images[NormalizeName(k)] = v
	}

	for k, v := range cfg.LiveURLs {
		p.liveURLs[NormalizeName(k)] = v
	}

	for k, v := range defaultLanguageImages {
		p.languageImages[strings.ToLower(k)] = v
	}

	for k, v := range cfg.LanguageImages {
		p.languageImages[strings.ToLower(k)] = v
	}

	if p.defaultImage == "" {
		p.defaultImage = config.DefaultProjectImage
	}

	return p
}

// Image returns the configured image for a repository, else the image for
// its language, else the default image.
func (p *Presenter) Image(name, language string) string {
	if img, ok := p.images[NormalizeName(name)]; ok {
		return img
	}

	if img, ok := p.languageImages[strings.ToLower(language)]; ok {
		return img
	}

	return p.defaultImage
}

// LiveURL returns the configured live URL for a repository, else its
// homepage. It is empty when neither is set.
func (p *Presenter) LiveURL(name, homepage string) string {
	if u, ok := p.liveURLs[NormalizeName(name)]; ok {
		return u
	}

	return strings.TrimSpace(homepage)
}

// Present converts a repository to a Project.
func (p *Presenter) Present(repo github.Repo, visibility map[string]bool) Project {
	tags := make([]string, 0, len(repo.Topics)+1)
	if repo.Language != "" {
		tags = append(tags, repo.Language)
	}

	tags = append(tags, repo.Topics...)

	return Project{
		ID:            repo.ID,
		Title:         repo.Name,
		Description:   repo.Description,
		Image:         p.Image(repo.Name, repo.Language),
		Category:      Categorize(repo.Language, repo.Topics, repo.Name, repo.Description),
		Tags:          tags,
		URL:           repo.HTMLURL,
		LiveURL:       p.LiveURL(repo.Name, repo.Homepage),
		Language:      repo.Language,
		LanguageColor: LanguageColor(repo.Language),
		Stars:         repo.Stars,
		Forks:         repo.Forks,
		UpdatedAt:     repo.UpdatedAt,
		Visible:       IsVisible(repo.ID, visibility),
	}
}

// PresentAll converts every repository, keeping hidden ones with
// Visible=false.
func (p *Presenter) PresentAll(repos []github.Repo, visibility map[string]bool) []Project {
	out := make([]Project, 0, len(repos))

	for _, r := range repos {
		out = append(out, p.Present(r, visibility))
	}

	return out
}

// PresentVisible converts only the repositories that are not hidden.
func (p *Presenter) PresentVisible(repos []github.Repo, visibility map[string]bool) []Project {
	return p.PresentAll(Visible(repos, visibility), visibility)
}

// Featured returns the statically configured fallback projects.
func (p *Presenter) Featured() []Project {
	out := make([]Project, 0, len(p.featured))

	for _, f := range p.featured {
		image := f.Image
		if image == "" {
			image = p.Image(f.Title, "")
		}

		category := Category(f.Category)
		if category == "" {
			category = CategoryOther
		}

		tags := f.Tags
		if tags == nil {
			tags = []string{}
		}

		out = append(out, Project{
			Title:       f.Title,
			Description: f.Description,
			Image:       image,
			Category:    category,
			Tags:        tags,
			URL:         f.URL,
			LiveURL:     f.LiveURL,
			Visible:     true,
			Featured:    true,
		})
	}

	return out
}
