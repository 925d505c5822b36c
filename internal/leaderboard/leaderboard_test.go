/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package leaderboard

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openBoard(t *testing.T) *Board {
	t.Helper()

	b, err := Open(context.Background(), filepath.Join(t.TempDir(), "ranking.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return b
}

func TestTopOrdering(t *testing.T) {
	ctx := context.Background()
	b := openBoard(t)

	for _, r := range []Record{
		{PlayerName: "slow", Score: 80, Moves: 10, TimeSeconds: 90},
		{PlayerName: "fast", Score: 80, Moves: 12, TimeSeconds: 45},
		{PlayerName: "best", Score: 120, Moves: 14, TimeSeconds: 200},
		{PlayerName: "low", Score: 20, Moves: 3, TimeSeconds: 10},
	} {
		if _, err := b.Submit(ctx, r); err != nil {
			t.Fatalf("Submit(%s): %v", r.PlayerName, err)
		}
	}

	top, err := b.Top(ctx, 10)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}

	want := []string{"best", "fast", "slow", "low"}
	if len(top) != len(want) {
		t.Fatalf("got %d records", len(top))
	}
	for i, name := range want {
		if top[i].PlayerName != name {
			t.Errorf("position %d = %s, want %s", i, top[i].PlayerName, name)
		}
	}
	if top[0].ID == "" || top[0].ID == top[1].ID {
		t.Error("records are missing unique ids")
	}
}

func TestTopLimit(t *testing.T) {
	ctx := context.Background()
	b := openBoard(t)

	for i := range 15 {
		if _, err := b.Submit(ctx, Record{PlayerName: "p", Score: i * 10}); err != nil {
			t.Fatal(err)
		}
	}

	top, err := b.Top(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != DefaultLimit {
		t.Errorf("got %d records, want %d", len(top), DefaultLimit)
	}
	if top[0].Score != 140 {
		t.Errorf("top score = %d", top[0].Score)
	}
}

func TestSubmitValidation(t *testing.T) {
	ctx := context.Background()
	b := openBoard(t)

	for name, r := range map[string]Record{
		"empty name":     {PlayerName: "   "},
		"long name":      {PlayerName: strings.Repeat("x", MaxNameLength+1)},
		"negative score": {PlayerName: "a", Score: -1},
		"negative time":  {PlayerName: "a", TimeSeconds: -5},
	} {
		if _, err := b.Submit(ctx, r); !errors.Is(err, ErrInvalidRecord) {
			t.Errorf("%s: got %v, want ErrInvalidRecord", name, err)
		}
	}

	saved, err := b.Submit(ctx, Record{PlayerName: "  padded  ", Score: 10})
	if err != nil {
		t.Fatal(err)
	}
	if saved.PlayerName != "padded" {
		t.Errorf("name not trimmed: %q", saved.PlayerName)
	}

	top, _ := b.Top(ctx, 10)
	if len(top) != 1 {
		t.Errorf("invalid records were stored: %d rows", len(top))
	}
}
