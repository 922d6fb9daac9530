package fonts

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LocalDir locates font files under a set of directories, matching on
// normalized family names. The directory listing is read once.
type LocalDir struct {
	Dirs []string

	once  sync.Once
	mu    sync.RWMutex
	index map[string][]string // normalized family -> paths
}

func NewLocalDir(dirs ...string) *LocalDir {
	return &LocalDir{Dirs: dirs}
}

// Find returns the font file best matching family and style, or ""
// when the directories hold nothing usable.
func (d *LocalDir) Find(family string, bold, italic bool) string {
	d.once.Do(d.scan)
	key := strings.ToLower(NormalizeName(family))
	d.mu.RLock()
	paths := d.index[key]
	d.mu.RUnlock()
	if len(paths) == 0 {
		return ""
	}
	best := ""
	bestScore := -1
	for _, p := range paths {
		score := styleScore(filepath.Base(p), bold, italic)
		if score > bestScore {
			best = p
			bestScore = score
		}
	}
	return best
}

// Add writes a downloaded font into the first configured directory and
// indexes it so later lookups for the family resolve locally.
func (d *LocalDir) Add(family string, bold, italic bool, data []byte) (string, error) {
	if len(d.Dirs) == 0 {
		return "", errors.New("no font directory configured")
	}
	d.once.Do(d.scan)
	name := NormalizeName(family)
	if style := styleSuffix(bold, italic); style != "" {
		name += "-" + style
	}
	path := filepath.Join(d.Dirs[0], name+".ttf")
	if err := os.MkdirAll(d.Dirs[0], 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	key := strings.ToLower(NormalizeName(family))
	d.mu.Lock()
	d.index[key] = append(d.index[key], path)
	d.mu.Unlock()
	return path, nil
}

func styleSuffix(bold, italic bool) string {
	switch {
	case bold && italic:
		return "BoldItalic"
	case bold:
		return "Bold"
	case italic:
		return "Italic"
	}
	return ""
}

func (d *LocalDir) scan() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.index = make(map[string][]string)
	for _, dir := range d.Dirs {
		filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return nil
			}
			switch strings.ToLower(filepath.Ext(path)) {
			case ".ttf", ".otf":
			default:
				return nil
			}
			family := familyFromFilename(filepath.Base(path))
			key := strings.ToLower(family)
			d.index[key] = append(d.index[key], path)
			return nil
		})
	}
}

// familyFromFilename derives a family key from names such as
// "DejaVuSans-BoldOblique.ttf" or "NotoSerif.otf".
func familyFromFilename(base string) string {
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if idx := strings.IndexAny(name, "-_"); idx > 0 {
		name = name[:idx]
	}
	return name
}

func styleScore(filename string, bold, italic bool) int {
	lower := strings.ToLower(filename)
	hasBold := strings.Contains(lower, "bold")
	hasItalic := strings.Contains(lower, "italic") || strings.Contains(lower, "oblique")
	score := 0
	if hasBold == bold {
		score += 2
	}
	if hasItalic == italic {
		score += 2
	}
	return score
}
