package markup

import (
	"bytes"
	"errors"

	"gopkg.in/yaml.v3"
)

var errUnterminatedFrontMatter = errors.New("front matter is missing its closing ---")

// splitFrontMatter separates a leading `---` fenced YAML block from the
// body. Documents without one return an empty map and the full input.
func splitFrontMatter(content []byte) (map[string]any, []byte, error) {
	if !bytes.HasPrefix(content, []byte("---\n")) && !bytes.HasPrefix(content, []byte("---\r\n")) {
		return map[string]any{}, content, nil
	}
	rest := content[bytes.IndexByte(content, '\n')+1:]

	offset := 0
	for {
		end := bytes.IndexByte(rest[offset:], '\n')
		line, next := rest[offset:], len(rest)
		if end >= 0 {
			line, next = rest[offset:offset+end], offset+end+1
		}
		if string(bytes.TrimRight(line, "\r")) == "---" {
			data := map[string]any{}
			if raw := rest[:offset]; len(bytes.TrimSpace(raw)) > 0 {
				if err := yaml.Unmarshal(raw, &data); err != nil {
					return nil, nil, err
				}
			}
			return data, rest[next:], nil
		}
		if end < 0 {
			return nil, nil, errUnterminatedFrontMatter
		}
		offset = next
	}
}
