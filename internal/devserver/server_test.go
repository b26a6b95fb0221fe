package devserver

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

type countingObserver struct{ n atomic.Int32 }

func (c *countingObserver) IncReload() { c.n.Add(1) }

func TestInjectScript(t *testing.T) {
	doc := `<html><body><script>var s = "</body>";</script><p>hi</p></body></html>`
	got := string(injectScript([]byte(doc)))
	assert.Equal(t, `<html><body><script>var s = "</body>";</script><p>hi</p>`+scriptTag+`</body></html>`, got)

	frag := `<p>fragment</p>`
	assert.Equal(t, frag+scriptTag, string(injectScript([]byte(frag))))
}

func writeSite(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html><body><h1>Home</h1></body></html>"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "styles"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "styles", "site.css"), []byte("body{margin:0}"), 0o644))
	return root
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestServesFilesWithInjection(t *testing.T) {
	s := New(Options{Root: writeSite(t), LiveReload: true, Logger: quietLogger()})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, body := get(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html><body><h1>Home</h1>"+scriptTag+"</body></html>", body)

	resp, body = get(t, ts.URL+"/styles/site.css")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "body{margin:0}", body)

	resp, body = get(t, ts.URL+"/__livereload.js")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "EventSource('/__livereload')")

	resp, _ = get(t, ts.URL+"/missing.html")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNoInjectionWithoutLiveReload(t *testing.T) {
	s := New(Options{Root: writeSite(t), Logger: quietLogger()})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	_, body := get(t, ts.URL+"/index.html")
	assert.NotContains(t, body, scriptTag)

	resp, _ := get(t, ts.URL+"/__livereload")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "metrics") })
	s := New(Options{Root: writeSite(t), Metrics: metrics, Logger: quietLogger()})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, body := get(t, ts.URL+"/__health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"status":"ok"`)

	_, body = get(t, ts.URL+"/__metrics")
	assert.Equal(t, "metrics", body)
}

// readReload waits for the next reload event on an SSE stream.
func readReload(t *testing.T, r *bufio.Reader) {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				done <- err
				return
			}
			if strings.HasPrefix(line, "event: reload") {
				done <- nil
				return
			}
		}
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload event")
	}
}

func connect(t *testing.T, url string, s *Server) *bufio.Reader {
	t.Helper()
	resp, err := http.Get(url + "/__livereload")
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)
	require.Eventually(t, func() bool { return s.hub.Clients() > 0 }, time.Second, 10*time.Millisecond)
	return r
}

func TestReloadBroadcastsToSessions(t *testing.T) {
	obs := &countingObserver{}
	s := New(Options{Root: writeSite(t), LiveReload: true, Observer: obs, Logger: quietLogger()})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	defer s.hub.Shutdown()

	a := connect(t, ts.URL, s)
	b := connect(t, ts.URL, s)
	s.Reload()
	readReload(t, a)
	readReload(t, b)
	assert.Equal(t, int32(1), obs.n.Load())
}

func TestOutputChangesTriggerOneReload(t *testing.T) {
	root := writeSite(t)
	obs := &countingObserver{}
	s := New(Options{Root: root, LiveReload: true, ReloadDebounce: 50 * time.Millisecond, Observer: obs, Logger: quietLogger()})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String()
	r := connect(t, url, s)
	time.Sleep(100 * time.Millisecond) // output watcher registration

	for i := range 5 {
		require.NoError(t, os.WriteFile(filepath.Join(root, "styles", "site.css"), []byte("body{margin:"+string(rune('0'+i))+"}"), 0o644))
	}
	readReload(t, r)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), obs.n.Load())

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("server did not stop")
	}
}
