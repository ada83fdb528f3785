package report

import (
	"strings"

	"taskadmin/model"
)

const (
	UncategorizedLabel = "Uncategorized"
	UncategorizedColor = "#9e9e9e"
)

// Palette is handed out, in order, to catalog entries without a color.
var Palette = []string{"#0088FE", "#00C49F", "#FFBB28", "#FF8042", "#8884d8", "#82ca9d"}

type Slice struct {
	Label string `json:"name"`
	Count int    `json:"value"`
	Color string `json:"color"`
}

// catalogIndex maps ids and titles to catalog positions. The first entry
// wins on duplicates.
type catalogIndex struct {
	byID    map[string]int
	byTitle map[string]int
}

func indexCatalog(cats []model.Category) catalogIndex {
	idx := catalogIndex{byID: make(map[string]int, len(cats)), byTitle: make(map[string]int, len(cats))}
	for i, c := range cats {
		if c.ID != "" {
			if _, dup := idx.byID[c.ID]; !dup {
				idx.byID[c.ID] = i
			}
		}
		if c.Title != "" {
			if _, dup := idx.byTitle[c.Title]; !dup {
				idx.byTitle[c.Title] = i
			}
		}
	}
	return idx
}

// resolve returns the catalog position the ref matches, or -1.
func (idx catalogIndex) resolve(ref model.CategoryRef) int {
	var id, title string
	switch ref.Kind {
	case model.RefReference:
		id, title = ref.Value, ref.Value
	case model.RefEmbedded:
		id, title = ref.ID, ref.Title
	default:
		return -1
	}
	if i, ok := idx.byID[id]; ok && id != "" {
		return i
	}
	if i, ok := idx.byTitle[title]; ok && title != "" {
		return i
	}
	return -1
}

// Distribution buckets every task into exactly one slice. Unmatched embedded
// categories keep their own title and color; every other miss lands in
// Uncategorized. Empty slices are left out.
func Distribution(cats []model.Category, tasks []model.Task) []Slice {
	idx := indexCatalog(cats)
	counts := make([]int, len(cats))

	var literals []Slice
	literalAt := make(map[string]int)
	uncategorized := 0

	for i := range tasks {
		ref := tasks[i].Category
		if c := idx.resolve(ref); c >= 0 {
			counts[c]++
			continue
		}
		if ref.Kind == model.RefEmbedded && strings.TrimSpace(ref.Title) != "" {
			key := strings.ToLower(strings.TrimSpace(ref.Title))
			j, ok := literalAt[key]
			if !ok {
				j = len(literals)
				literalAt[key] = j
				literals = append(literals, Slice{Label: strings.TrimSpace(ref.Title), Color: ref.Color})
			}
			literals[j].Count++
			continue
		}
		uncategorized++
	}

	colors := assignColors(cats)
	out := make([]Slice, 0, len(cats)+len(literals)+1)
	for i, c := range cats {
		if counts[i] == 0 {
			continue
		}
		label := c.Title
		if label == "" {
			label = c.ID
		}
		out = append(out, Slice{Label: label, Count: counts[i], Color: colors[i]})
	}
	for _, l := range literals {
		if l.Color == "" {
			l.Color = UncategorizedColor
		}
		out = append(out, l)
	}
	if uncategorized > 0 {
		out = append(out, Slice{Label: UncategorizedLabel, Count: uncategorized, Color: UncategorizedColor})
	}
	return out
}

// assignColors keeps explicit catalog colors and fills the gaps from Palette,
// skipping palette entries already used explicitly.
func assignColors(cats []model.Category) []string {
	taken := make(map[string]bool)
	for _, c := range cats {
		if c.Color != "" {
			taken[strings.ToLower(c.Color)] = true
		}
	}
	out := make([]string, len(cats))
	next := 0
	for i, c := range cats {
		if c.Color != "" {
			out[i] = c.Color
			continue
		}
		for next < len(Palette) && taken[strings.ToLower(Palette[next])] {
			next++
		}
		if next < len(Palette) {
			out[i] = Palette[next]
			taken[strings.ToLower(Palette[next])] = true
			next++
		} else {
			out[i] = Palette[i%len(Palette)]
		}
	}
	return out
}

// CategoryUsage counts tasks per catalog id, zeros included. Tasks on
// unknown categories are not counted anywhere.
func CategoryUsage(cats []model.Category, tasks []model.Task) map[string]int {
	idx := indexCatalog(cats)
	usage := make(map[string]int, len(cats))
	for _, c := range cats {
		usage[c.ID] = 0
	}
	for i := range tasks {
		if c := idx.resolve(tasks[i].Category); c >= 0 {
			usage[cats[c].ID]++
		}
	}
	return usage
}

// categoryLabel resolves a task's category to a display label for report
// rows, with the same matching order as Distribution.
func categoryLabel(idx catalogIndex, cats []model.Category, ref model.CategoryRef) string {
	if c := idx.resolve(ref); c >= 0 {
		if cats[c].Title != "" {
			return cats[c].Title
		}
		return cats[c].ID
	}
	if ref.Kind == model.RefEmbedded && strings.TrimSpace(ref.Title) != "" {
		return strings.TrimSpace(ref.Title)
	}
	return UncategorizedLabel
}
