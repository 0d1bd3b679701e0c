package controller

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/benbeisheim/unionchess-backend/internal/middleware"
	"github.com/benbeisheim/unionchess-backend/internal/model"
	"github.com/benbeisheim/unionchess-backend/internal/rules"
	"github.com/benbeisheim/unionchess-backend/internal/service"
	"github.com/benbeisheim/unionchess-backend/internal/ws"
)

type MatchController struct {
	matchService *service.MatchService
	logger       *zap.Logger
}

func NewMatchController(matchService *service.MatchService, logger *zap.Logger) *MatchController {
	return &MatchController{matchService: matchService, logger: logger}
}

// parseBody decodes an optional JSON body into out.
func parseBody(c *fiber.Ctx, out interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(c.Body(), out); err != nil {
		return fmt.Errorf("%w: %v", errBadRequestBody, err)
	}
	return nil
}

func (mc *MatchController) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		mc.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(errorBody(err))
}

func colorParam(c *fiber.Ctx) (rules.Color, error) {
	color, err := rules.ParseColor(c.Params("color"))
	if err != nil {
		return color, fmt.Errorf("%w: %v", service.ErrInvalidRequest, err)
	}
	return color, nil
}

func (mc *MatchController) CreateMatch(c *fiber.Ctx) error {
	var req service.CreateMatchRequest
	if err := parseBody(c, &req); err != nil {
		return mc.fail(c, err)
	}

	match, err := mc.matchService.CreateMatch(c.UserContext(), req)
	if err != nil {
		return mc.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Match created",
		"key":     match.Key,
		"state":   ws.NewMatchState(match.Snapshot(middleware.PartyID(c)), false),
	})
}

func (mc *MatchController) GetMatch(c *fiber.Ctx) error {
	snap, err := mc.matchService.GetState(c.UserContext(), c.Params("key"), middleware.PartyID(c))
	if err != nil {
		return mc.fail(c, err)
	}
	return c.JSON(ws.NewMatchState(snap, false))
}

func (mc *MatchController) GetCompactMatch(c *fiber.Ctx) error {
	snap, err := mc.matchService.GetState(c.UserContext(), c.Params("key"), middleware.PartyID(c))
	if err != nil {
		return mc.fail(c, err)
	}
	return c.JSON(ws.NewCompactMatchState(snap, false))
}

// SubmitAction commits one action. A stale base is answered with 409 and the
// current state, which the client replaces its history with.
func (mc *MatchController) SubmitAction(c *fiber.Ctx) error {
	var req ws.DoActionPayload
	if len(c.Body()) == 0 {
		return mc.fail(c, fmt.Errorf("%w: empty body", errBadRequestBody))
	}
	if err := parseBody(c, &req); err != nil {
		return mc.fail(c, err)
	}
	if req.Action.Kind == "" {
		return mc.fail(c, fmt.Errorf("%w: action is required", errBadRequestBody))
	}
	key, party := c.Params("key"), middleware.PartyID(c)

	n, err := mc.matchService.SubmitAction(c.UserContext(), key, party, req.Base, req.Action)
	if errors.Is(err, model.ErrOutOfDate) {
		snap, serr := mc.matchService.GetState(c.UserContext(), key, party)
		if serr != nil {
			return mc.fail(c, serr)
		}
		body := errorBody(err)
		body["state"] = ws.NewMatchState(snap, true)
		return c.Status(fiber.StatusConflict).JSON(body)
	}
	if err != nil {
		return mc.fail(c, err)
	}
	return c.JSON(fiber.Map{"length": n})
}

func (mc *MatchController) Rollback(c *fiber.Ctx) error {
	n, err := mc.matchService.Rollback(c.UserContext(), c.Params("key"), middleware.PartyID(c))
	if err != nil {
		return mc.fail(c, err)
	}
	return c.JSON(fiber.Map{"length": n})
}

func (mc *MatchController) ClaimSide(c *fiber.Ctx) error {
	color, err := colorParam(c)
	if err != nil {
		return mc.fail(c, err)
	}
	var profile model.Profile
	if err := parseBody(c, &profile); err != nil {
		return mc.fail(c, err)
	}
	// Clients cannot present themselves as AI through a claim.
	profile.AI = nil

	if err := mc.matchService.ClaimSide(c.UserContext(), c.Params("key"), color, middleware.PartyID(c), profile); err != nil {
		return mc.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Side claimed", "color": color})
}

func (mc *MatchController) ReleaseSide(c *fiber.Ctx) error {
	color, err := colorParam(c)
	if err != nil {
		return mc.fail(c, err)
	}
	if err := mc.matchService.ReleaseSide(c.UserContext(), c.Params("key"), color, middleware.PartyID(c)); err != nil {
		return mc.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Side released", "color": color})
}

func (mc *MatchController) DelegateFrontendAI(c *fiber.Ctx) error {
	color, err := colorParam(c)
	if err != nil {
		return mc.fail(c, err)
	}
	var ai model.AIMeta
	if err := parseBody(c, &ai); err != nil {
		return mc.fail(c, err)
	}

	if err := mc.matchService.DelegateFrontendAI(c.UserContext(), c.Params("key"), color, middleware.PartyID(c), ai); err != nil {
		return mc.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Side delegated", "color": color})
}

type legalRequest struct {
	Notation string         `json:"notation"`
	Options  *rules.Options `json:"options,omitempty"`
}

func (mc *MatchController) LegalActions(c *fiber.Ctx) error {
	var req legalRequest
	if err := parseBody(c, &req); err != nil {
		return mc.fail(c, err)
	}
	analysis, err := mc.matchService.Analyze(req.Notation, req.Options)
	if err != nil {
		return mc.fail(c, err)
	}
	return c.JSON(analysis)
}
