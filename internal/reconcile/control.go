package reconcile

import (
	"fmt"

	"github.com/benbeisheim/unionchess-backend/internal/rules"
)

// Lock is who may submit actions for one color, seen from one observer.
type Lock string

const (
	Unlocked                Lock = "unlocked"
	LockedByLocalPlayer     Lock = "lockedByLocalPlayer"
	LockedByLocalFrontendAI Lock = "lockedByLocalFrontendAi"
	LockedByRemoteParty     Lock = "lockedByRemoteParty"
)

func ParseLock(s string) (Lock, error) {
	switch l := Lock(s); l {
	case Unlocked, LockedByLocalPlayer, LockedByLocalFrontendAI, LockedByRemoteParty:
		return l, nil
	}
	return Unlocked, fmt.Errorf("invalid control lock %q", s)
}

// MayAct is false only when another party controls the color.
func (l Lock) MayAct() bool { return l != LockedByRemoteParty }

type Locks struct {
	White Lock `json:"white"`
	Black Lock `json:"black"`
}

func NewLocks() Locks {
	return Locks{White: Unlocked, Black: Unlocked}
}

func (l Locks) Get(c rules.Color) Lock {
	if c == rules.White {
		return l.White
	}
	return l.Black
}

func (l *Locks) Set(c rules.Color, lock Lock) {
	if c == rules.White {
		l.White = lock
	} else {
		l.Black = lock
	}
}

func (l Locks) MayAct(c rules.Color) bool { return l.Get(c).MayAct() }
