package styles

import (
	"bytes"
	"context"
)

// Fragment is a run of CSS together with the file it was written in.
type Fragment struct {
	File string
	CSS  []byte
}

// Sheet is one entry stylesheet moving through the plugin chain. Until
// Join is called its content is a list of fragments so per-file plugins
// can see where each declaration came from.
type Sheet struct {
	Entry     string
	Fragments []Fragment
	CSS       []byte
	Map       []byte
	// Deps maps every file read for this entry to its content hash.
	Deps map[string]string
}

// Join flattens the fragments into CSS.
func (s *Sheet) Join() []byte {
	if s.Fragments != nil {
		var buf bytes.Buffer
		for _, f := range s.Fragments {
			buf.Write(f.CSS)
		}
		s.CSS = buf.Bytes()
		s.Fragments = nil
	}
	return s.CSS
}

// Plugin is one transformation in the chain.
type Plugin interface {
	Name() string
	Process(ctx context.Context, s *Sheet) error
}
