package markup

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
)

// searchLoader resolves template names the way the page authors expect:
// relative to the including template first, then through each component
// directory in order.
type searchLoader struct {
	dirs []string
}

func (l *searchLoader) candidates(base, name string) []string {
	var out []string
	if base != "" {
		out = append(out, filepath.Join(filepath.Dir(base), name))
	}
	for _, dir := range l.dirs {
		out = append(out, filepath.Join(dir, name))
	}
	return out
}

// Abs returns the first existing candidate for name. When none exists the
// first candidate is returned so Get reports a not-found error for it.
func (l *searchLoader) Abs(base, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	cands := l.candidates(base, name)
	for _, c := range cands {
		if info, err := os.Stat(c); err == nil && info.Mode().IsRegular() {
			return c
		}
	}
	if len(cands) == 0 {
		return name
	}
	return cands[0]
}

func (l *searchLoader) Get(path string) (io.Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}
