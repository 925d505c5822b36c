// memorybox card-pairs game
//
// Every game ID is its own session. The board is shuffled from the image
// catalog, and the player flips two cards at a time looking for pairs.
//
// Features:
// - WebSockets per game ID: /memory/:gameid and /memory/:gameid/ws
// - The server owns the board; clients only send card selections
// - Both faces of a pair stay visible briefly before the pair resolves
// - Resolutions scheduled by a previous game are dropped on "new game"
// - Games auto-reaped after configurable idle timeout
// - Random 8-char game IDs via crypto/rand, with server-side collision check
// - Finished games can be submitted to the leaderboard once
// - In-browser QR button to share the current session, backed by go-qrcode

package main

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/memorybox/internal/leaderboard"
	"github.com/Seednode/memorybox/internal/memory"
)

const (
	gamePath     = "/memory"
	storeTimeout = 5 * time.Second
)

// catalog is the part of the image store a game needs.
type catalog interface {
	Load(ctx context.Context) []string
	FrontImage(ctx context.Context) string
}

type rankings interface {
	Submit(ctx context.Context, r leaderboard.Record) (leaderboard.Record, error)
	Top(ctx context.Context, limit int) ([]leaderboard.Record, error)
}

// Messages coming from clients
type ClientMessage struct {
	Type       string `json:"type"`                  // "new_game", "select", "submit_score"
	CardID     *int   `json:"card_id,omitempty"`     // select
	PlayerName string `json:"player_name,omitempty"` // submit_score
}

// GameStateMessage is broadcast after every change to the session.
type GameStateMessage struct {
	Type           string `json:"type"` // "game_state"
	FrontImage     string `json:"front_image"`
	ScoreSubmitted bool   `json:"score_submitted"`
	memory.Snapshot
}

// ErrorMessage is sent to a single client when its request cannot be served.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Code    string `json:"code"`
	Message string `json:"message"`
	Link    string `json:"link,omitempty"`
}

// ScoreSubmittedMessage is broadcast once a finished game is on the leaderboard.
type ScoreSubmittedMessage struct {
	Type   string             `json:"type"` // "score_submitted"
	Record leaderboard.Record `json:"record"`
}

type Client struct {
	conn *websocket.Conn
	send chan any
}

type selectRequest struct {
	client *Client
	cardID int
}

type scoreRequest struct {
	client *Client
	name   string
}

type Hub struct {
	id      string
	clients map[*Client]bool
	engine  *memory.Engine

	catalog  catalog
	rankings rankings

	frontImage string
	submitted  bool

	register    chan *Client
	unreg       chan *Client
	newGames    chan *Client
	selects     chan selectRequest
	scores      chan scoreRequest
	resolutions chan func()
	done        chan struct{}
	closeOnce   sync.Once

	// realigned on every new game so the first tick lands a full second in
	ticker *time.Ticker

	mu         sync.RWMutex
	createdAt  time.Time
	lastActive time.Time
}

func newHub(cfg *Config, gameID string, c catalog, r rankings) *Hub {
	now := time.Now()
	h := &Hub{
		id:          gameID,
		clients:     make(map[*Client]bool),
		catalog:     c,
		rankings:    r,
		register:    make(chan *Client),
		unreg:       make(chan *Client),
		newGames:    make(chan *Client),
		selects:     make(chan selectRequest),
		scores:      make(chan scoreRequest),
		resolutions: make(chan func()),
		done:        make(chan struct{}),
		ticker:      time.NewTicker(time.Second),
		createdAt:   now,
		lastActive:  now,
	}
	h.engine = memory.NewEngine(
		memory.WithScheduler(h),
		memory.WithDelays(cfg.matchDelay, cfg.mismatchDelay),
	)
	return h
}

// Schedule hands resolutions back to the run loop, so the engine is only
// ever touched from one goroutine.
func (h *Hub) Schedule(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, func() {
		post(h, h.resolutions, fn)
	})
	return func() { t.Stop() }
}

// post delivers v to the run loop unless the hub has been shut down.
func post[T any](h *Hub, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) run(cfg *Config) {
	defer h.ticker.Stop()

	for {
		select {
		case <-h.done:
			h.engine.Stop()
			for c := range h.clients {
				close(c.send)
				_ = c.conn.Close()
				delete(h.clients, c)
			}
			return

		case c := <-h.register:
			h.touch()
			h.clients[c] = true

			if h.engine.State() == memory.NotStarted {
				if h.startGame(cfg, c) {
					h.broadcastState()
					continue
				}
			}
			h.sendTo(c, h.stateMessage())

		case c := <-h.unreg:
			h.touch()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case c := <-h.newGames:
			h.touch()
			if h.startGame(cfg, c) {
				h.broadcastState()
			}

		case sr := <-h.selects:
			h.touch()
			if h.engine.Select(sr.cardID) {
				h.broadcastState()
			}

		case fn := <-h.resolutions:
			fn()
			if h.engine.State() == memory.Won {
				snap := h.engine.Snapshot()
				logf(cfg, "GAMES: %s won with %d points in %d moves and %ds", h.id, snap.Score, snap.Moves, snap.TimeSeconds)
			}
			h.broadcastState()

		case sr := <-h.scores:
			h.touch()
			h.submitScore(cfg, sr)

		case <-h.ticker.C:
			if h.engine.State() == memory.InProgress {
				h.engine.Tick()
				h.broadcastState()
			}
		}
	}
}

func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()
}

// startGame builds a new board from the catalog. On failure the requesting
// client is told why and the previous board stays in place.
func (h *Hub) startGame(cfg *Config, requester *Client) bool {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	images := h.catalog.Load(ctx)

	if err := h.engine.Start(images); err != nil {
		logf(cfg, "GAMES: Refused to start %s with %d images: %v", h.id, len(images), err)

		msg := ErrorMessage{
			Type:    "error",
			Code:    "start_failed",
			Message: "The game could not be started.",
		}
		if errors.Is(err, memory.ErrNotEnoughImages) {
			msg.Code = "not_enough_images"
			msg.Message = "There are not enough cards to play. Add at least two images in the admin panel."
			msg.Link = cfg.prefix + "/admin"
		}
		h.sendTo(requester, msg)

		return false
	}

	h.ticker.Reset(time.Second)
	h.frontImage = h.catalog.FrontImage(ctx)
	h.submitted = false

	logf(cfg, "GAMES: Started %s with %d cards", h.id, len(h.engine.Snapshot().Cards))

	return true
}

func (h *Hub) submitScore(cfg *Config, sr scoreRequest) {
	if h.engine.State() != memory.Won {
		h.sendTo(sr.client, ErrorMessage{
			Type:    "error",
			Code:    "not_finished",
			Message: "Finish the game before submitting a score.",
		})
		return
	}
	if h.submitted {
		h.sendTo(sr.client, ErrorMessage{
			Type:    "error",
			Code:    "already_submitted",
			Message: "This game is already on the leaderboard.",
		})
		return
	}

	snap := h.engine.Snapshot()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	rec, err := h.rankings.Submit(ctx, leaderboard.Record{
		PlayerName:  sr.name,
		Score:       snap.Score,
		Moves:       snap.Moves,
		TimeSeconds: snap.TimeSeconds,
	})
	if err != nil {
		msg := ErrorMessage{
			Type:    "error",
			Code:    "leaderboard_unavailable",
			Message: "The score could not be saved. Please try again.",
		}
		if errors.Is(err, leaderboard.ErrInvalidRecord) {
			msg.Code = "invalid_score"
			msg.Message = strings.TrimPrefix(err.Error(), leaderboard.ErrInvalidRecord.Error()+": ")
		}
		logf(cfg, "GAMES: Score for %s rejected: %v", h.id, err)
		h.sendTo(sr.client, msg)
		return
	}

	h.submitted = true
	logf(cfg, "GAMES: %q submitted %d points for %s", rec.PlayerName, rec.Score, h.id)

	h.broadcast(ScoreSubmittedMessage{Type: "score_submitted", Record: rec})
	h.broadcastState()
}

func (h *Hub) stateMessage() GameStateMessage {
	return GameStateMessage{
		Type:           "game_state",
		FrontImage:     h.frontImage,
		ScoreSubmitted: h.submitted,
		Snapshot:       h.engine.Snapshot().Masked(),
	}
}

func (h *Hub) broadcastState() {
	h.broadcast(h.stateMessage())
}

func (h *Hub) broadcast(msg any) {
	for client := range h.clients {
		h.sendTo(client, msg)
	}
}

// sendTo drops clients that cannot keep up.
func (h *Hub) sendTo(c *Client, msg any) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

// closeAll disconnects all clients of this hub (used by reaper).
func (h *Hub) closeAll() {
	h.closeOnce.Do(func() { close(h.done) })
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// GameManager holds a set of hubs keyed by game ID, so each $path/$gameid
// is its own isolated session.
type GameManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
	catalog     catalog
	rankings    rankings
}

func newGameManager(ctx context.Context, idleTimeout time.Duration, c catalog, r rankings) *GameManager {
	gm := &GameManager{
		hubs:        make(map[string]*Hub),
		idleTimeout: idleTimeout,
		catalog:     c,
		rankings:    r,
	}
	if idleTimeout > 0 {
		go gm.reaperLoop(ctx)
	}
	return gm
}

func (gm *GameManager) getHub(cfg *Config, gameID string) *Hub {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[gameID]; ok {
		return hub
	}

	hub := newHub(cfg, gameID, gm.catalog, gm.rankings)
	gm.hubs[gameID] = hub
	go hub.run(cfg)
	return hub
}

// newGameID generates a crypto-random game ID and ensures it doesn't
// collide with existing games.
func (gm *GameManager) newGameID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		gm.mu.Lock()
		_, exists := gm.hubs[id]
		gm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reaperLoop periodically removes hubs that have been idle longer than
// idleTimeout, and all of them once ctx is done.
func (gm *GameManager) reaperLoop(ctx context.Context) {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			gm.mu.Lock()
			for id, hub := range gm.hubs {
				delete(gm.hubs, id)
				hub.closeAll()
			}
			gm.mu.Unlock()
			return

		case <-ticker.C:
			cutoff := time.Now().Add(-gm.idleTimeout)

			gm.mu.Lock()
			for id, hub := range gm.hubs {
				hub.mu.RLock()
				last := hub.lastActive
				hub.mu.RUnlock()

				if last.Before(cutoff) {
					delete(gm.hubs, id)
					hub.closeAll()
				}
			}
			gm.mu.Unlock()
		}
	}
}

// WebSocket handler that picks the hub based on :gameid
func serveWSForManager(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: WebSocket upgrade for %s failed: %v", gameID, err)
			return
		}

		hub := gm.getHub(cfg, gameID)

		client := &Client{
			conn: conn,
			send: make(chan any, 16),
		}

		if !post(hub, hub.register, client) {
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		post(h, h.unreg, c)
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "new_game":
			post(h, h.newGames, c)
		case "select":
			if msg.CardID == nil {
				continue
			}
			post(h, h.selects, selectRequest{
				client: c,
				cardID: *msg.CardID,
			})
		case "submit_score":
			post(h, h.scores, scoreRequest{
				client: c,
				name:   msg.PlayerName,
			})
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current game URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	gameID := ps.ByName("gameid")
	if gameID == "" {
		http.Error(w, "missing game id", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:gameid/qr; strip trailing "/qr" to get the game URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// redirectNewGame handles GET /path by generating a new random game ID
// (with server-side collision detection) and redirecting to /path/:gameid.
func redirectNewGame(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gameID := gm.newGameID()
		logf(cfg, "GAMES: Created game %s/%s", gamePath, gameID)
		http.Redirect(w, r, cfg.prefix+gamePath+"/"+gameID, http.StatusTemporaryRedirect)
	}
}

// registerMemoryGame sets up routes so that:
//   - /memory                  → redirects to new random game (8-char ID)
//   - /memory/:gameid          → HTML client
//   - /memory/:gameid/ws       → WebSocket for that game
//   - /memory/:gameid/qr       → PNG QR code for that game URL
func registerMemoryGame(cfg *Config, gm *GameManager, mux *httprouter.Router, errs chan<- error) {
	mux.GET(cfg.prefix+gamePath, redirectNewGame(cfg, gm))

	mux.GET(cfg.prefix+gamePath+"/:gameid", servePage(cfg, "assets/memory/index.html", errs))

	mux.GET(cfg.prefix+gamePath+"/:gameid/ws", serveWSForManager(cfg, gm))

	mux.GET(cfg.prefix+gamePath+"/:gameid/qr", qrHandler)
}
