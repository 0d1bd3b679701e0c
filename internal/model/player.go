package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/benbeisheim/unionchess-backend/internal/reconcile"
)

const (
	maxDisplayNameRunes = 32
	anonymousName       = "Anonymous"
)

// AIMeta describes an AI playing one color.
type AIMeta struct {
	ModelName   string  `json:"modelName"`
	Strength    int     `json:"modelStrength"`
	Temperature float64 `json:"modelTemperature"`
	// FrontendAI is set when the AI runs in a participant's client rather
	// than on the server.
	FrontendAI bool `json:"isFrontendAi"`
}

// Profile is the public data shown for one color.
type Profile struct {
	Name   string  `json:"name"`
	Avatar string  `json:"avatar"`
	AI     *AIMeta `json:"ai,omitempty"`
}

// NormalizeDisplayName folds compatibility forms, collapses whitespace and
// caps the length of a user supplied name.
func NormalizeDisplayName(name string) string {
	name = norm.NFKC.String(name)
	name = strings.Join(strings.FieldsFunc(name, unicode.IsSpace), " ")
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	if runes := []rune(name); len(runes) > maxDisplayNameRunes {
		name = string(runes[:maxDisplayNameRunes])
	}
	if name == "" {
		return anonymousName
	}
	return name
}

// Side is who controls one color of a match.
type Side struct {
	Party   string
	Profile Profile
}

func (s Side) frontendAI() bool {
	return s.Profile.AI != nil && s.Profile.AI.FrontendAI
}

// LockFor is the control lock observer sees for this side.
func (s Side) LockFor(observer string) reconcile.Lock {
	switch {
	case s.Party == "":
		return reconcile.Unlocked
	case s.Party != observer:
		return reconcile.LockedByRemoteParty
	case s.frontendAI():
		return reconcile.LockedByLocalFrontendAI
	}
	return reconcile.LockedByLocalPlayer
}
