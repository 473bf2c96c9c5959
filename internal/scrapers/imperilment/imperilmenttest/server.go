// Package imperilmenttest implements a fake imperilment instance for tests.
//
// The fake behaves like the rails app where it matters to a client: every rendered
// form carries a fresh anti-forgery token that is only valid for the next post, the
// session cookie is rotated on every response and only the latest value is accepted,
// and successful creations redirect to the created resource.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//		remote := imperilmenttest.NewServer(t)
//		remote.Games = []imperilmenttest.Game{{Id: 1, EndedAt: "2024-02-21T00:00:00Z"}}
//		client, _ := imperilment.NewClient(imperilment.ClientOptions{BaseUrl: remote.URL()}, tel)
//		...
//		require.Equal(t, expected, remote.RequestLines())
//	}
package imperilmenttest

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
)

const (
	SessionCookie = "_imperilment_session"
	Username      = "admin@example.com"
	Password      = "hunter22"
)

// Game is an entry of /games.json, it is also used to record created games.
type Game struct {
	Id      uint64 `json:"id"`
	EndedAt string `json:"ended_at"`
}

type Category struct {
	Id   uint64
	Name string
}

type Answer struct {
	GameId     uint64
	CategoryId string
	Answer     string
	Question   string
	Amount     string
	StartDate  string
}

// Request is a request the server received.
type Request struct {
	Method string
	Path   string
	Form   url.Values
	Cookie string
}

// Line renders the request as "METHOD /path".
func (r Request) Line() string {
	return r.Method + " " + r.Path
}

type session struct {
	cookie   string
	token    string
	loggedIn bool
}

// Server is a fake imperilment instance backed by httptest.
type Server struct {
	// Games is served from /games.json, newest first.
	Games []Game

	// RejectCategories makes category creation fail validation for these names.
	RejectCategories map[string]bool
	// RejectAnswers makes answer creation fail validation for these answers.
	RejectAnswers map[string]bool
	// OmitToken renders the form at these paths without an anti-forgery token.
	OmitToken map[string]bool
	// LoginWithoutCookie makes a successful sign in redirect without issuing a cookie.
	LoginWithoutCookie bool

	// Created, Categories and Answers record what the server created, in order.
	Created    []Game
	Categories []Category
	Answers    []Answer

	server *httptest.Server

	lock     sync.Mutex
	requests []Request
	sessions map[string]*session
	counter  int
}

// NewServer starts a server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	s := &Server{
		RejectCategories: map[string]bool{},
		RejectAnswers:    map[string]bool{},
		OmitToken:        map[string]bool{},
		sessions:         map[string]*session{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /games.json", s.gamesJson)
	mux.HandleFunc("GET /users/sign_in", s.signIn)
	mux.HandleFunc("POST /users/sign_in", s.signIn)
	mux.HandleFunc("GET /games/new", s.authenticated(s.form("New game")))
	mux.HandleFunc("POST /games", s.authenticated(s.createGame))
	mux.HandleFunc("GET /categories/new", s.authenticated(s.form("New category")))
	mux.HandleFunc("POST /categories", s.authenticated(s.createCategory))
	mux.HandleFunc("GET /games/{game}/answers/new", s.authenticated(s.form("New answer")))
	mux.HandleFunc("POST /games/{game}/answers", s.authenticated(s.createAnswer))

	s.server = httptest.NewServer(s.record(mux))
	t.Cleanup(s.server.Close)
	return s
}

// URL is the base url of the server.
func (s *Server) URL() string {
	return s.server.URL
}

// Close stops the server early, subsequent requests fail at the transport level.
func (s *Server) Close() {
	s.server.Close()
}

// Requests returns every request received so far, in order.
func (s *Server) Requests() []Request {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestLines returns Request.Line for every request received so far.
func (s *Server) RequestLines() []string {
	var lines []string
	for _, r := range s.Requests() {
		lines = append(lines, r.Line())
	}
	return lines
}

// Posts returns the posts made to `path`.
func (s *Server) Posts(path string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Method == http.MethodPost && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := r.ParseForm()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.lock.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Form:   r.PostForm,
			Cookie: r.Header.Get("Cookie"),
		})
		s.lock.Unlock()
		next.ServeHTTP(w, r)
	})
}

// current returns the session the request belongs to, starting a new one when the
// request carries no cookie or a stale one. The cookie is rotated either way.
//
// must be called with the lock held
func (s *Server) current(w http.ResponseWriter, r *http.Request) *session {
	var sess *session
	cookie, err := r.Cookie(SessionCookie)
	if err == nil {
		id, _, _ := strings.Cut(cookie.Value, ".")
		found, ok := s.sessions[id]
		if ok && found.cookie == cookie.Value {
			sess = found
		}
	}
	if sess == nil {
		s.counter++
		id := strconv.Itoa(s.counter)
		sess = &session{cookie: id + ".0"}
		s.sessions[id] = sess
	}

	id, gen, _ := strings.Cut(sess.cookie, ".")
	next, _ := strconv.Atoi(gen)
	sess.cookie = fmt.Sprintf("%s.%d", id, next+1)
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: sess.cookie, Path: "/", HttpOnly: true})
	return sess
}

func (s *Server) authenticated(next func(http.ResponseWriter, *http.Request, *session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.lock.Lock()
		defer s.lock.Unlock()

		sess := s.current(w, r)
		if !sess.loggedIn {
			http.Redirect(w, r, s.URL()+"/users/sign_in", http.StatusFound)
			return
		}
		next(w, r, sess)
	}
}

// verifyToken consumes the session's token, it reports whether the post carried it.
func (s *Server) verifyToken(w http.ResponseWriter, r *http.Request, sess *session) bool {
	expected := sess.token
	sess.token = ""
	if expected == "" || r.PostForm.Get("authenticity_token") != expected {
		http.Error(w, "ActionController::InvalidAuthenticityToken", http.StatusUnprocessableEntity)
		return false
	}
	return true
}

var formPage = template.Must(template.New("form").Parse(`<!DOCTYPE html>
<html>
<head>
  <title>Imperilment</title>
  <meta name="csrf-param" content="authenticity_token" />
  {{if .Token}}<meta name="csrf-token" content="{{.Token}}" />{{end}}
</head>
<body>
  <h1>{{.Title}}</h1>
  {{if .Errors}}<div id="error_explanation"><ul>{{range .Errors}}<li>{{.}}</li>{{end}}</ul></div>{{end}}
  <form method="post"><input type="submit" name="commit" /></form>
</body>
</html>`))

type formData struct {
	Title  string
	Token  string
	Errors []string
}

func (s *Server) renderForm(w http.ResponseWriter, r *http.Request, sess *session, title string, status int, errors ...string) {
	s.counter++
	sess.token = fmt.Sprintf("token-%d", s.counter)
	data := formData{Title: title, Token: sess.token, Errors: errors}
	if s.OmitToken[r.URL.Path] {
		data.Token = ""
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	formPage.Execute(w, data)
}

func (s *Server) form(title string) func(http.ResponseWriter, *http.Request, *session) {
	return func(w http.ResponseWriter, r *http.Request, sess *session) {
		s.renderForm(w, r, sess, title, http.StatusOK)
	}
}

func (s *Server) gamesJson(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()

	games := s.Games
	if games == nil {
		games = []Game{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(games)
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if r.Method == http.MethodGet {
		s.renderForm(w, r, s.current(w, r), "Log in", http.StatusOK)
		return
	}
	if s.LoginWithoutCookie {
		s.current(w, r)
		w.Header().Del("Set-Cookie")
		http.Redirect(w, r, s.URL()+"/", http.StatusFound)
		return
	}

	sess := s.current(w, r)
	if !s.verifyToken(w, r, sess) {
		return
	}
	if r.PostForm.Get("user[email]") != Username || r.PostForm.Get("user[password]") != Password {
		s.renderForm(w, r, sess, "Log in", http.StatusOK, "Invalid email or password.")
		return
	}
	sess.loggedIn = true
	http.Redirect(w, r, s.URL()+"/", http.StatusFound)
}

func (s *Server) createGame(w http.ResponseWriter, r *http.Request, sess *session) {
	if !s.verifyToken(w, r, sess) {
		return
	}
	endedAt := r.PostForm.Get("game[ended_at]")
	if endedAt == "" {
		s.renderForm(w, r, sess, "New game", http.StatusUnprocessableEntity, "Ended at can't be blank")
		return
	}
	game := Game{Id: uint64(len(s.Created) + 1), EndedAt: endedAt}
	s.Created = append(s.Created, game)
	http.Redirect(w, r, fmt.Sprintf("%s/games/%d", s.URL(), game.Id), http.StatusFound)
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request, sess *session) {
	if !s.verifyToken(w, r, sess) {
		return
	}
	name := r.PostForm.Get("category[name]")
	if name == "" || s.RejectCategories[name] {
		s.renderForm(w, r, sess, "New category", http.StatusUnprocessableEntity, "Name is invalid")
		return
	}
	category := Category{Id: uint64(len(s.Categories) + 1), Name: name}
	s.Categories = append(s.Categories, category)
	http.Redirect(w, r, fmt.Sprintf("%s/categories/%d", s.URL(), category.Id), http.StatusFound)
}

func (s *Server) createAnswer(w http.ResponseWriter, r *http.Request, sess *session) {
	if !s.verifyToken(w, r, sess) {
		return
	}
	gameId, err := strconv.ParseUint(r.PathValue("game"), 10, 64)
	if err != nil || gameId == 0 || gameId > uint64(len(s.Created)) {
		http.NotFound(w, r)
		return
	}
	answer := Answer{
		GameId:     gameId,
		CategoryId: r.PostForm.Get("answer[category_id]"),
		Answer:     r.PostForm.Get("answer[answer]"),
		Question:   r.PostForm.Get("answer[correct_question]"),
		Amount:     r.PostForm.Get("answer[amount]"),
		StartDate:  r.PostForm.Get("answer[start_date]"),
	}
	if s.RejectAnswers[answer.Answer] {
		s.renderForm(w, r, sess, "New answer", http.StatusUnprocessableEntity, "Answer is invalid")
		return
	}
	s.Answers = append(s.Answers, answer)
	http.Redirect(w, r, fmt.Sprintf("%s/games/%d", s.URL(), gameId), http.StatusFound)
}
