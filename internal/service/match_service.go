package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/benbeisheim/unionchess-backend/internal/model"
	"github.com/benbeisheim/unionchess-backend/internal/rules"
)

// CreateMatchRequest is a request for a new match. Unset fields take the
// server defaults.
type CreateMatchRequest struct {
	Timer                *model.TimerConfig `json:"timer,omitempty"`
	ChainRule            *rules.ChainRule   `json:"chainRule,omitempty"`
	DrawAfterRepetitions *int               `json:"drawAfterRepetitions,omitempty"`
	NoProgressHalfMoves  *int               `json:"noProgressHalfMoves,omitempty"`
	TimeoutRule          *model.TimeoutRule `json:"timeoutRule,omitempty"`
}

// Analysis is the evaluation of a single position.
type Analysis struct {
	Notation string         `json:"notation"`
	Phase    string         `json:"phase"`
	Actions  []rules.Action `json:"actions"`
	Result   rules.Result   `json:"result"`
}

type MatchService struct {
	matchManager *MatchManager
	defaults     model.Settings
}

func NewMatchService(matchManager *MatchManager, defaults model.Settings) *MatchService {
	return &MatchService{
		matchManager: matchManager,
		defaults:     defaults,
	}
}

func (ms *MatchService) settings(req CreateMatchRequest) (model.Settings, error) {
	s := ms.defaults
	s.Timer = req.Timer
	if req.ChainRule != nil {
		s.Options.Chain = *req.ChainRule
	}
	if req.DrawAfterRepetitions != nil {
		s.Options.DrawAfterRepetitions = *req.DrawAfterRepetitions
	}
	if req.NoProgressHalfMoves != nil {
		s.Options.NoProgressHalfMoves = *req.NoProgressHalfMoves
	}
	if req.TimeoutRule != nil {
		switch *req.TimeoutRule {
		case model.TimeoutLoses, model.TimeoutDrawsOnInsufficient:
			s.TimeoutRule = *req.TimeoutRule
		default:
			return model.Settings{}, fmt.Errorf("%w: unknown timeout rule %q", ErrInvalidRequest, *req.TimeoutRule)
		}
	}
	if s.Options.DrawAfterRepetitions < 0 || s.Options.NoProgressHalfMoves < 0 {
		return model.Settings{}, fmt.Errorf("%w: draw limits must not be negative", ErrInvalidRequest)
	}
	return s, nil
}

func (ms *MatchService) CreateMatch(ctx context.Context, req CreateMatchRequest) (*model.Match, error) {
	settings, err := ms.settings(req)
	if err != nil {
		return nil, err
	}
	key := uuid.New().String()

	match, err := ms.matchManager.CreateMatch(ctx, key, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create match: %w", err)
	}
	return match, nil
}

func (ms *MatchService) GetState(ctx context.Context, key, party string) (model.Snapshot, error) {
	match, err := ms.matchManager.GetMatch(ctx, key)
	if err != nil {
		return model.Snapshot{}, err
	}
	return match.Snapshot(party), nil
}

func (ms *MatchService) SubmitAction(ctx context.Context, key, party string, base int, action rules.Action) (int, error) {
	return ms.matchManager.Submit(ctx, key, party, base, action)
}

func (ms *MatchService) Rollback(ctx context.Context, key, party string) (int, error) {
	return ms.matchManager.Rollback(ctx, key, party)
}

func (ms *MatchService) ClaimSide(ctx context.Context, key string, color rules.Color, party string, profile model.Profile) error {
	return ms.matchManager.ClaimSide(ctx, key, color, party, profile)
}

func (ms *MatchService) DelegateFrontendAI(ctx context.Context, key string, color rules.Color, party string, ai model.AIMeta) error {
	return ms.matchManager.DelegateFrontendAI(ctx, key, color, party, ai)
}

func (ms *MatchService) ReleaseSide(ctx context.Context, key string, color rules.Color, party string) error {
	return ms.matchManager.ReleaseSide(ctx, key, color, party)
}

func (ms *MatchService) Subscribe(ctx context.Context, key, party string, conn Conn, compact bool) (func(), error) {
	return ms.matchManager.Subscribe(ctx, key, party, conn, compact)
}

func (ms *MatchService) SendState(ctx context.Context, key, party string, conn Conn, compact, rollback bool) error {
	return ms.matchManager.SendState(ctx, key, party, conn, compact, rollback)
}

// Analyze decodes a position and lists what the side to move may do. A nil
// opts uses the server defaults.
func (ms *MatchService) Analyze(notation string, opts *rules.Options) (Analysis, error) {
	pos, err := rules.Decode(notation)
	if err != nil {
		return Analysis{}, err
	}
	o := ms.defaults.Options
	if opts != nil {
		o = *opts
	}
	actions := rules.LegalActions(pos, o)
	if actions == nil {
		actions = []rules.Action{}
	}
	return Analysis{
		Notation: rules.Encode(pos),
		Phase:    pos.Phase.String(),
		Actions:  actions,
		Result:   rules.Detect(pos, o),
	}, nil
}
