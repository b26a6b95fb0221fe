package devserver

import (
	"bytes"
	"net/http"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const scriptTag = `<script async src="/__livereload.js"></script>`

// injectScript inserts the reload script before the last </body> end tag,
// or appends it when the document has none.
func injectScript(doc []byte) []byte {
	at := -1
	offset := 0
	z := html.NewTokenizer(bytes.NewReader(doc))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := len(z.Raw())
		if tt == html.EndTagToken {
			if name, _ := z.TagName(); atom.Lookup(name) == atom.Body {
				at = offset
			}
		}
		offset += raw
	}
	if at < 0 {
		return append(append([]byte{}, doc...), scriptTag...)
	}
	out := make([]byte, 0, len(doc)+len(scriptTag))
	out = append(out, doc[:at]...)
	out = append(out, scriptTag...)
	return append(out, doc[at:]...)
}

// injectHandler buffers HTML responses from next and adds the reload
// script. Other content types and oversized documents pass through.
func injectHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}
		// Conditional requests would answer 304 with the uninjected copy cached.
		r.Header.Del("If-Modified-Since")
		r.Header.Del("If-None-Match")
		r.Header.Del("Range")

		ij := &injector{ResponseWriter: w, status: http.StatusOK, maxSize: 4 << 20}
		next.ServeHTTP(ij, r)
		ij.finalize()
	})
}

type injector struct {
	http.ResponseWriter
	status      int
	buffer      []byte
	buffering   bool
	passthrough bool
	wroteHeader bool
	maxSize     int
}

func (i *injector) WriteHeader(code int) {
	i.status = code
	if i.passthrough {
		i.ResponseWriter.WriteHeader(code)
		i.wroteHeader = true
	}
}

func (i *injector) Write(data []byte) (int, error) {
	if !i.buffering && !i.passthrough {
		ct := i.Header().Get("Content-Type")
		if i.status != http.StatusOK || !strings.HasPrefix(ct, "text/html") {
			i.startPassthrough()
		} else {
			i.buffering = true
		}
	}
	if i.passthrough {
		return i.ResponseWriter.Write(data)
	}
	if len(i.buffer)+len(data) > i.maxSize {
		i.startPassthrough()
		if _, err := i.ResponseWriter.Write(i.buffer); err != nil {
			return 0, err
		}
		i.buffer = nil
		return i.ResponseWriter.Write(data)
	}
	i.buffer = append(i.buffer, data...)
	return len(data), nil
}

func (i *injector) startPassthrough() {
	i.passthrough = true
	i.buffering = false
	i.ResponseWriter.WriteHeader(i.status)
	i.wroteHeader = true
}

func (i *injector) finalize() {
	if i.wroteHeader {
		return
	}
	if !i.buffering {
		i.ResponseWriter.WriteHeader(i.status)
		return
	}
	i.Header().Del("Content-Length")
	i.ResponseWriter.WriteHeader(i.status)
	_, _ = i.ResponseWriter.Write(injectScript(i.buffer))
}
