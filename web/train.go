// Package web has a web based monitor for viewing segmentation training progress.
package web

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/devanshuDesai/cse252d-sp21-hw3/nnet"
	"github.com/devanshuDesai/cse252d-sp21-hw3/stats"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	plotWidth  = 600
	plotHeight = 300
	writeWait  = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Server keeps a copy of the training statistics reported by the trainer and serves them over HTTP.
type Server struct {
	*Templates
	Experiment string
	VisEvery   int
	User       string
	Password   string
	latest     nnet.Stats
	history    nnet.History
	loss       stats.Average
	images     int
	conns      map[*websocket.Conn]bool
	sync.Mutex
}

// NewServer creates a monitor for the training run described by conf.
func NewServer(conf nnet.Config) (*Server, error) {
	t, err := NewTemplates()
	if err != nil {
		return nil, err
	}
	return &Server{
		Templates:  t,
		Experiment: conf.Experiment,
		VisEvery:   conf.VisEvery,
		User:       conf.User,
		Password:   conf.Password,
		conns:      map[*websocket.Conn]bool{},
	}, nil
}

// Update records the stats for the latest iteration and pushes them to any websocket clients.
func (s *Server) Update(st nnet.Stats) {
	s.Lock()
	defer s.Unlock()
	s.latest = st
	s.loss.Add(st.Loss)
	s.history.Loss = append(s.history.Loss, st.Loss)
	s.history.Accuracy = append(s.history.Accuracy, st.Accuracy)
	if s.VisEvery > 0 && st.Iteration%s.VisEvery == 0 {
		s.images = st.Iteration
	}
	for conn := range s.conns {
		s.send(conn, st)
	}
}

// send a message to one client, dropping the connection on error. Must be called with the lock held.
func (s *Server) send(conn *websocket.Conn, st nnet.Stats) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(st); err != nil {
		log.Println("websocket write error:", err)
		delete(s.conns, conn)
		conn.Close()
	}
}

// Router returns the handler for all of the monitor routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/", http.RedirectHandler("/stats", http.StatusFound))
	r.HandleFunc("/stats", s.Stats())
	r.HandleFunc("/stats.json", s.JSON())
	r.HandleFunc("/plot/{name:(?:loss|accuracy)}", s.Plot())
	r.HandleFunc("/images/{kind:(?:images|labelGt|labelPred)}", s.Image())
	r.HandleFunc("/ws", s.Websocket())
	if s.User != "" {
		r.Use(NewAuthMiddleware(s.User, s.Password).Middleware)
	}
	return r
}

// ListenAndServe serves the monitor until an error occurs.
func (s *Server) ListenAndServe(addr string) error {
	log.Printf("training monitor listening on %s\n", addr)
	return http.ListenAndServe(addr, s.Router())
}

type statsPage struct {
	*Templates
	Heading    string
	Latest     nnet.Stats
	Loss       *stats.Average
	RunTime    string
	Images     int
	ImageKinds []string
	Refresh    int
	PlotWidth  int
	PlotHeight int
}

// Handler function for the stats page
func (s *Server) Stats() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()
		loss := s.loss
		p := statsPage{
			Templates:  s.Clone().Select("/stats"),
			Heading:    fmt.Sprintf("%s: epoch %d iteration %d", s.Experiment, s.latest.Epoch, s.latest.Iteration),
			Latest:     s.latest,
			Loss:       &loss,
			Images:     s.images,
			ImageKinds: []string{"images", "labelGt", "labelPred"},
			Refresh:    s.VisEvery,
			PlotWidth:  plotWidth,
			PlotHeight: plotHeight,
		}
		if p.Refresh <= 0 {
			p.Refresh = 1
		}
		if s.latest.Iteration > 0 {
			p.RunTime = fmt.Sprintf("run time: %s", s.latest.Elapsed.Round(10*time.Millisecond))
		}
		if err := s.ExecuteTemplate(w, "stats", p); err != nil {
			logError(w, err)
		}
	}
}

// Handler function returning the latest stats and full history as JSON
func (s *Server) JSON() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()
		w.Header().Set("Content-Type", "application/json")
		resp := struct {
			Latest   nnet.Stats
			Loss     []float64
			Accuracy []float64
		}{s.latest, s.history.Loss, s.history.Accuracy}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Println("error encoding stats:", err)
		}
	}
}

// Handler function for the loss and accuracy history plots
func (s *Server) Plot() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		width := queryInt(r, "width", plotWidth)
		height := queryInt(r, "height", plotHeight)
		s.Lock()
		values := s.history.Loss
		title := "loss"
		if name == "accuracy" {
			values = s.history.Accuracy
			title = "mean accuracy %"
		}
		values = append([]float64{}, values...)
		s.Unlock()
		p, err := stats.NewPlot(title, values)
		if err != nil {
			logError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		if err := stats.WriteSVG(w, p, width, height); err != nil {
			log.Println(err)
		}
	}
}

// Handler function for websocket connection, the latest stats are sent on connect
func (s *Server) Websocket() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("websocket upgrade error:", err)
			return
		}
		s.Lock()
		s.conns[conn] = true
		s.send(conn, s.latest)
		s.Unlock()
		// read until the client goes away so that control messages are processed
		go func() {
			for {
				if _, _, err := conn.NextReader(); err != nil {
					s.Lock()
					if s.conns[conn] {
						delete(s.conns, conn)
						conn.Close()
					}
					s.Unlock()
					return
				}
			}
		}()
	}
}

func queryInt(r *http.Request, key string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && v > 0 && v <= 4000 {
		return v
	}
	return def
}
