/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package memory

import (
	"errors"
	"math/rand/v2"
)

var ErrNoImages = errors.New("no images to build a deck from")

// Card is a single physical card. Two cards share an Image per pair.
type Card struct {
	ID      int    `json:"id"`
	Image   string `json:"image"`
	Flipped bool   `json:"flipped"`
	Matched bool   `json:"matched"`
}

// ShuffleFunc has the signature of rand.Shuffle.
type ShuffleFunc func(n int, swap func(i, j int))

// NewDeck returns two hidden cards per image, shuffled. Card IDs are assigned
// before shuffling, so they are unique but say nothing about position.
func NewDeck(images []string, shuffle ShuffleFunc) ([]Card, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	if shuffle == nil {
		shuffle = rand.Shuffle
	}

	deck := make([]Card, 0, len(images)*2)
	for _, img := range images {
		for range 2 {
			deck = append(deck, Card{ID: len(deck), Image: img})
		}
	}

	shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })

	return deck, nil
}
