/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/memorybox/internal/leaderboard"
	"github.com/Seednode/memorybox/internal/memory"
)

type fixedCatalog []string

func (c fixedCatalog) Load(context.Context) []string {
	return c
}

func (c fixedCatalog) FrontImage(context.Context) string {
	return "/back.svg"
}

// serverMessage is the union of everything the hub sends.
type serverMessage struct {
	Type           string        `json:"type"`
	State          string        `json:"state"`
	Cards          []memory.Card `json:"cards"`
	Pending        []int         `json:"pending"`
	Moves          int           `json:"moves"`
	Score          int           `json:"score"`
	TimeSeconds    int           `json:"time_seconds"`
	Generation     uint64        `json:"generation"`
	FrontImage     string        `json:"front_image"`
	ScoreSubmitted bool          `json:"score_submitted"`

	Code string `json:"code"`
	Link string `json:"link"`

	Record leaderboard.Record `json:"record"`
}

func dialGame(t *testing.T, c catalog) (*websocket.Conn, *leaderboard.Board) {
	t.Helper()

	cfg := testConfig(t)
	board := openBoard(t)

	mux := httprouter.New()
	registerMemoryGame(cfg, newGameManager(t.Context(), 0, c, board), mux, drain(t))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+gamePath+"/testgame/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn, board
}

// await reads messages until one satisfies ok.
func await(t *testing.T, conn *websocket.Conn, ok func(serverMessage) bool) serverMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if ok(msg) {
			return msg
		}
	}
}

func isState(msg serverMessage) bool {
	return msg.Type == "game_state"
}

func TestGamePlaysToWin(t *testing.T) {
	conn, board := dialGame(t, fixedCatalog{"/a.svg", "/b.svg"})

	state := await(t, conn, isState)
	if state.State != "in_progress" || len(state.Cards) != 4 {
		t.Fatalf("initial state %q with %d cards", state.State, len(state.Cards))
	}
	if state.FrontImage != "/back.svg" {
		t.Errorf("front image = %q", state.FrontImage)
	}
	for _, c := range state.Cards {
		if c.Image != "" {
			t.Fatalf("face-down card %d leaked image %q", c.ID, c.Image)
		}
	}

	conn.WriteJSON(map[string]string{"type": "submit_score", "player_name": "early"})
	if msg := await(t, conn, func(m serverMessage) bool { return m.Type == "error" }); msg.Code != "not_finished" {
		t.Errorf("early submit: code = %q", msg.Code)
	}

	matched := map[int]bool{}
	moves := 0
	for i := range 4 {
		for j := i + 1; j < 4; j++ {
			a, b := state.Cards[i].ID, state.Cards[j].ID
			if matched[a] || matched[b] {
				continue
			}

			conn.WriteJSON(map[string]any{"type": "select", "card_id": a})
			conn.WriteJSON(map[string]any{"type": "select", "card_id": b})
			moves++

			state = await(t, conn, func(m serverMessage) bool {
				return isState(m) && m.Moves == moves && len(m.Pending) == 0
			})
			for _, c := range state.Cards {
				if c.Matched {
					matched[c.ID] = true
				}
			}
		}
	}

	if state.State != "won" || state.Score != 2*memory.DefaultScoreIncrement {
		t.Fatalf("final state %q with score %d", state.State, state.Score)
	}

	conn.WriteJSON(map[string]string{"type": "submit_score", "player_name": "  Ada  "})
	msg := await(t, conn, func(m serverMessage) bool { return m.Type == "score_submitted" || m.Type == "error" })
	if msg.Type != "score_submitted" || msg.Record.PlayerName != "Ada" || msg.Record.Moves != moves {
		t.Fatalf("submit: %+v", msg)
	}

	conn.WriteJSON(map[string]string{"type": "submit_score", "player_name": "Ada"})
	if msg := await(t, conn, func(m serverMessage) bool { return m.Type == "error" }); msg.Code != "already_submitted" {
		t.Errorf("second submit: code = %q", msg.Code)
	}

	top, err := board.Top(context.Background(), 0)
	if err != nil || len(top) != 1 || top[0].Score != state.Score {
		t.Errorf("leaderboard = %+v, %v", top, err)
	}

	conn.WriteJSON(map[string]string{"type": "new_game"})
	state = await(t, conn, func(m serverMessage) bool { return isState(m) && m.State == "in_progress" })
	if state.Moves != 0 || state.Score != 0 || state.ScoreSubmitted {
		t.Errorf("new game kept old progress: %+v", state)
	}
}

func TestGameRefusesSmallCatalog(t *testing.T) {
	conn, _ := dialGame(t, fixedCatalog{"/only.svg"})

	msg := await(t, conn, func(m serverMessage) bool { return m.Type == "error" })
	if msg.Code != "not_enough_images" || msg.Link != "/admin" {
		t.Errorf("error = %+v", msg)
	}

	state := await(t, conn, isState)
	if state.State != "not_started" || len(state.Cards) != 0 {
		t.Errorf("state after refusal = %q with %d cards", state.State, len(state.Cards))
	}
}

func TestNewGameIDsAreUnique(t *testing.T) {
	gm := newGameManager(context.Background(), 0, fixedCatalog{}, nil)

	seen := map[string]bool{}
	for range 100 {
		id := gm.newGameID()
		if len(id) != 8 || seen[id] {
			t.Fatalf("bad or repeated id %q", id)
		}
		seen[id] = true
	}
}

func TestReaperEndsIdleGames(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gm := newGameManager(ctx, 20*time.Millisecond, fixedCatalog{"/a.svg", "/b.svg"}, nil)
	hub := gm.getHub(testConfig(t), "idle")

	select {
	case <-hub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("idle hub was not reaped")
	}

	gm.mu.Lock()
	defer gm.mu.Unlock()
	if _, ok := gm.hubs["idle"]; ok {
		t.Error("reaped hub still registered")
	}
}

func TestQRCodeEncodesGameURL(t *testing.T) {
	mux := httprouter.New()
	mux.GET(gamePath+"/:gameid/qr", qrHandler)

	r := httptest.NewRequest(http.MethodGet, gamePath+"/abcdefgh/qr", nil)
	r.Header.Set("X-Forwarded-Proto", "https")

	w := serve(mux, r)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("status = %d, content type %q", w.Code, w.Header().Get("Content-Type"))
	}

	want, err := qrcode.Encode("https://example.com"+gamePath+"/abcdefgh", qrcode.Medium, 320)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(w.Body.Bytes(), want) {
		t.Error("QR code does not encode the game URL")
	}
}

func TestNewGameRealignsTimer(t *testing.T) {
	conn, _ := dialGame(t, fixedCatalog{"/a.svg", "/b.svg"})

	first := await(t, conn, isState)

	// land the new game just before the old game's first tick
	time.Sleep(900 * time.Millisecond)

	sent := time.Now()
	conn.WriteJSON(map[string]string{"type": "new_game"})

	fresh := await(t, conn, func(m serverMessage) bool {
		return isState(m) && m.Generation > first.Generation
	})
	if fresh.TimeSeconds != 0 {
		t.Fatalf("new game starts at %ds", fresh.TimeSeconds)
	}

	await(t, conn, func(m serverMessage) bool {
		return isState(m) && m.Generation == fresh.Generation && m.TimeSeconds == 1
	})
	if elapsed := time.Since(sent); elapsed < 900*time.Millisecond {
		t.Errorf("first second of the new game counted after %s", elapsed)
	}
}

func TestPlainRequestStartsNoHub(t *testing.T) {
	cfg := testConfig(t)
	gm := newGameManager(t.Context(), 0, fixedCatalog{"/a.svg", "/b.svg"}, nil)

	mux := httprouter.New()
	registerMemoryGame(cfg, gm, mux, drain(t))

	w := serve(mux, httptest.NewRequest(http.MethodGet, gamePath+"/stray/ws", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	gm.mu.Lock()
	defer gm.mu.Unlock()
	if n := len(gm.hubs); n != 0 {
		t.Errorf("%d hubs started without a websocket", n)
	}
}

func TestStartLogsDealtCards(t *testing.T) {
	var out bytes.Buffer
	log.SetOutput(&out)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	cfg := testConfig(t)
	cfg.verbose = true

	h := newHub(cfg, "dupes", fixedCatalog{"/a.svg", "/a.svg", "/b.svg", ""}, nil)
	defer h.ticker.Stop()

	if !h.startGame(cfg, nil) {
		t.Fatal("game did not start")
	}
	if !strings.Contains(out.String(), "Started dupes with 4 cards") {
		t.Errorf("log = %q", out.String())
	}
}
