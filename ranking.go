/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/memorybox/internal/leaderboard"
)

type rankingResponse struct {
	Ranking []leaderboard.Record `json:"ranking"`
}

func serveRanking(cfg *Config, board rankings, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		top, err := board.Top(r.Context(), leaderboard.DefaultLimit)
		if err != nil {
			logf(cfg, "SERVE: Ranking unavailable for %s: %v", realIP(r), err)
			writeError(cfg, w, http.StatusServiceUnavailable, "The ranking could not be loaded.")

			return
		}

		if err := writeJSON(cfg, w, http.StatusOK, rankingResponse{Ranking: top}); err != nil {
			errs <- err
		}
	}
}
