package upstream

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// IsNumericID reports whether identifier parses fully as an integer.
// Numeric identifiers are queried by cid, everything else by slug.
func IsNumericID(identifier string) bool {
	s := strings.TrimSpace(identifier)
	if s == "" {
		return false
	}
	_, err := strconv.Atoi(s)
	return err == nil
}

// UnmarshalJSON normalizes the remote post shape:
//   - legacy "text" fills Content when "content" is absent
//   - a bare string "category" is promoted to an object whose slug is
//     derived from the first directory path segment
//   - when a "categories" array is present its first element becomes the
//     primary category
func (p *Post) UnmarshalJSON(data []byte) error {
	type postAlias struct {
		CID         int             `json:"cid"`
		Title       string          `json:"title"`
		Slug        string          `json:"slug"`
		Created     int64           `json:"created"`
		Modified    int64           `json:"modified"`
		Content     string          `json:"content"`
		Text        string          `json:"text"`
		Digest      string          `json:"digest"`
		Category    json.RawMessage `json:"category"`
		Categories  []Category      `json:"categories"`
		Directory   []string        `json:"directory"`
		Tags        []string        `json:"tags"`
		CommentsNum int             `json:"commentsNum"`
	}

	var raw postAlias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.CID = raw.CID
	p.Title = raw.Title
	p.Slug = raw.Slug
	p.Created = raw.Created
	p.Modified = raw.Modified
	p.Digest = raw.Digest
	p.Categories = raw.Categories
	p.Directory = raw.Directory
	p.Tags = raw.Tags
	p.CommentsNum = raw.CommentsNum

	p.Content = raw.Content
	if p.Content == "" && raw.Text != "" {
		p.Content = raw.Text
	}

	p.Category = normalizeCategory(raw.Category, raw.Categories, raw.Directory)
	return nil
}

func normalizeCategory(raw json.RawMessage, categories []Category, directory []string) *Category {
	if len(categories) > 0 {
		c := categories[0]
		return &c
	}

	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		if strings.TrimSpace(name) == "" {
			return nil
		}
		slug := ""
		if len(directory) > 0 {
			slug = directory[0]
		}
		return &Category{Name: name, Slug: slug}
	}

	var c Category
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil
	}
	if c.Name == "" && c.Slug == "" {
		return nil
	}
	return &c
}

// groupArchives folds a flat archive listing into the year→month map shape.
// Entries without a year/month are dropped, matching the original behavior.
func groupArchives(flat []ArchivePost) Archives {
	out := Archives{
		TotalPosts: len(flat),
		Groups:     map[string]map[string][]ArchivePost{},
	}
	for _, post := range flat {
		if post.Year == "" || post.Month == "" {
			continue
		}
		if out.Groups[post.Year] == nil {
			out.Groups[post.Year] = map[string][]ArchivePost{}
		}
		out.Groups[post.Year][post.Month] = append(out.Groups[post.Year][post.Month], post)
	}
	return out
}

// Years returns the archive years in descending order.
func (a Archives) Years() []string {
	years := make([]string, 0, len(a.Groups))
	for year := range a.Groups {
		years = append(years, year)
	}
	sortDescending(years)
	return years
}

// Months returns a year's months in descending order.
func (a Archives) Months(year string) []string {
	months := make([]string, 0, len(a.Groups[year]))
	for month := range a.Groups[year] {
		months = append(months, month)
	}
	sortDescending(months)
	return months
}

// sortDescending orders numerically when both keys parse ("9" before "12"
// would be wrong for months), lexically otherwise.
func sortDescending(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA == nil && errB == nil {
			return a > b
		}
		return keys[i] > keys[j]
	})
}
