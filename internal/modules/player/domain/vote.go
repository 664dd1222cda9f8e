package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Vote is one provider's answer in a metadata consensus round. It exists
// only for the duration of the round and is never persisted.
type Vote struct {
	Source string
	Genres []string
	Year   int
}

var genreCaser = cases.Title(language.English)

// NormalizeGenre maps a raw genre name to its canonical display form.
func NormalizeGenre(name string) string {
	return genreCaser.String(strings.ToLower(strings.TrimSpace(name)))
}

// TallyYears aggregates the year votes and returns the winner, or 0 when no
// valid year was offered. Years outside (1900, maxYear] are discarded. The
// winner is the mode; when several years tie for the highest count the
// earliest of them wins, keeping the result deterministic.
func TallyYears(votes []Vote, maxYear int) int {
	counts := make(map[int]int)
	for _, v := range votes {
		if v.Year > 1900 && v.Year <= maxYear {
			counts[v.Year]++
		}
	}

	winner, best := 0, 0
	for year, count := range counts {
		if count > best || (count == best && winner != 0 && year < winner) {
			winner, best = year, count
		}
	}
	return winner
}

// TallyGenres aggregates the genre votes as a flat counter across all
// providers; a provider offering several genres votes once for each. Names
// are case-normalized before counting. It returns the winning genre with its
// vote count, or ("", 0) when nobody voted. Ties break on the
// lexicographically smallest normalized name so the result is deterministic.
func TallyGenres(votes []Vote) (string, int) {
	counts := make(map[string]int)
	for _, v := range votes {
		for _, g := range v.Genres {
			name := NormalizeGenre(g)
			if name == "" {
				continue
			}
			counts[name]++
		}
	}

	winner, best := "", 0
	for name, count := range counts {
		if count > best || (count == best && winner != "" && name < winner) {
			winner, best = name, count
		}
	}
	return winner, best
}
