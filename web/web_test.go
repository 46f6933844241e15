package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/devanshuDesai/cse252d-sp21-hw3/nnet"
	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, user, password string) *Server {
	conf := nnet.DefaultConfig()
	conf.Experiment = t.TempDir()
	conf.VisEvery = 2
	conf.User, conf.Password = user, password
	s, err := NewServer(conf)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func update(s *Server, iter int) {
	s.Update(nnet.Stats{
		Epoch:         iter / 10,
		Iteration:     iter,
		Loss:          1 / float64(iter),
		Accuracy:      float64(iter),
		ClassAccuracy: []float64{float64(iter), 0},
		LearningRate:  0.1,
		Elapsed:       time.Duration(iter) * time.Second,
	})
}

func get(t *testing.T, h http.Handler, url string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", url, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRoutes(t *testing.T) {
	s := newTestServer(t, "", "")
	r := s.Router()
	if w := get(t, r, "/images/images"); w.Code != http.StatusNotFound {
		t.Error("expecting no images before first update, got", w.Code)
	}
	for i := 1; i <= 3; i++ {
		update(s, i)
	}

	w := get(t, r, "/")
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/stats" {
		t.Errorf("redirect: got %d %q", w.Code, w.Header().Get("Location"))
	}
	w = get(t, r, "/stats")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "epoch 0 iteration 3") {
		t.Errorf("stats page: got %d\n%s", w.Code, w.Body)
	}
	// running loss mean and stddev over 1, 1/2, 1/3
	if !strings.Contains(w.Body.String(), "0.6111&PlusMinus;0.3469") {
		t.Errorf("accumulated loss missing from stats page:\n%s", w.Body)
	}

	w = get(t, r, "/stats.json")
	var resp struct {
		Latest   nnet.Stats
		Loss     []float64
		Accuracy []float64
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Latest.Iteration != 3 || len(resp.Loss) != 3 || resp.Accuracy[1] != 2 {
		t.Errorf("stats json: %+v", resp)
	}

	w = get(t, r, "/plot/loss?width=300&height=200")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/svg+xml" || !strings.Contains(w.Body.String(), "<svg") {
		t.Errorf("plot: got %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if w = get(t, r, "/plot/other"); w.Code != http.StatusNotFound {
		t.Error("expecting 404 for unknown plot, got", w.Code)
	}

	// images are written at iteration 2
	if err := os.WriteFile(filepath.Join(s.Experiment, "labelGt_2.png"), []byte("png"), 0644); err != nil {
		t.Fatal(err)
	}
	if w = get(t, r, "/images/labelGt"); w.Code != http.StatusOK || w.Body.String() != "png" {
		t.Error("image: got", w.Code)
	}
	if w = get(t, r, "/images/labelPred"); w.Code != http.StatusNotFound {
		t.Error("expecting 404 for missing image, got", w.Code)
	}
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, "user", "pass")
	r := s.Router()
	if w := get(t, r, "/stats.json"); w.Code != http.StatusUnauthorized {
		t.Fatal("expecting unauthorized, got", w.Code)
	}
	req := httptest.NewRequest("GET", "/stats.json", nil)
	req.SetBasicAuth("user", "wrong")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatal("expecting unauthorized for bad password, got", w.Code)
	}

	req = httptest.NewRequest("GET", "/stats.json", nil)
	req.SetBasicAuth("user", "pass")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	cookies := w.Result().Cookies()
	if w.Code != http.StatusOK || len(cookies) == 0 {
		t.Fatalf("login: got %d with %d cookies", w.Code, len(cookies))
	}

	// the session cookie is enough for later requests
	req = httptest.NewRequest("GET", "/stats.json", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Error("session: got", w.Code)
	}
}

func TestWebsocket(t *testing.T) {
	s := newTestServer(t, "", "")
	update(s, 1)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var st nnet.Stats
	if err := conn.ReadJSON(&st); err != nil {
		t.Fatal(err)
	}
	if st.Iteration != 1 {
		t.Error("expecting latest stats on connect, got iteration", st.Iteration)
	}
	update(s, 2)
	if err := conn.ReadJSON(&st); err != nil {
		t.Fatal(err)
	}
	if st.Iteration != 2 || st.Accuracy != 2 {
		t.Errorf("pushed stats: %+v", st)
	}
}
