package rest

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/passportlabs/scorer"
	"github.com/passportlabs/scorer/internal/domain"
	"github.com/passportlabs/scorer/internal/present/rest/presenter"
	"github.com/passportlabs/scorer/internal/service"
	"github.com/passportlabs/scorer/internal/usecase"
)

type Handler struct {
	auth        *service.AuthService
	credentials *service.CredentialService
	admin       *service.AdminService
	scoring     *usecase.ScoringUsecase
	events      *service.EventService

	adminKey string
}

func NewHandler(
	auth *service.AuthService,
	credentials *service.CredentialService,
	admin *service.AdminService,
	scoring *usecase.ScoringUsecase,
	events *service.EventService,
	adminKey string,
) *Handler {
	return &Handler{
		auth:        auth,
		credentials: credentials,
		admin:       admin,
		scoring:     scoring,
		events:      events,
		adminKey:    adminKey,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/account/nonce", h.handleNonce)
	e.POST("/account/authenticate", h.handleAuthenticate)
	e.POST("/registry/stamps", h.handleSubmitStamps)
	e.GET("/registry/stamps/:address", h.handleGetStamps)
	e.GET("/registry/stamps/:address/history", h.handleStampHistory)
	e.DELETE("/registry/stamps/:provider", h.handleDeleteStamp)
	e.GET("/registry/score/:communityID/:address", h.handleGetScore)
	e.POST("/registry/score/:communityID/:address", h.handleRescore)
	e.POST("/registry/revocations", h.handleRevoke)
	e.POST("/communities", h.handleCreateCommunity)
	e.POST("/weights", h.handleCreateWeights)
	e.PUT("/weights/activate", h.handleActivateWeights)
	e.GET("/registry/feed", h.handleFeed)
}

func requesterAddress(c echo.Context) string {
	address, _ := c.Request().Context().Value(domain.RequesterAddressCtxKey).(string)
	return address
}

func sessionNonce(c echo.Context) string {
	nonce, _ := c.Request().Context().Value(domain.SessionNonceCtxKey).(string)
	return nonce
}

func (h *Handler) isAdmin(c echo.Context) bool {
	if h.adminKey == "" {
		return false
	}
	provided := c.Request().Header.Get("x-admin-key")
	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.adminKey)) == 1
}

func (h *Handler) handleNonce(c echo.Context) error {
	ctx := c.Request().Context()

	nonce, err := h.auth.IssueNonce(ctx)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, nonce)
}

type authenticateRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

type authenticateResponse struct {
	Address string `json:"address"`
	Token   string `json:"token"`
	Nonce   string `json:"nonce"`
}

func (h *Handler) handleAuthenticate(c echo.Context) error {
	ctx := c.Request().Context()

	var req authenticateRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	result, err := h.auth.Authenticate(ctx, req.Message, req.Signature)
	if err != nil {
		return presenter.Error(c, err)
	}

	return presenter.OK(c, authenticateResponse{
		Address: result.Address,
		Token:   result.Token,
		Nonce:   result.Nonce,
	})
}

type submitStampsRequest struct {
	Stamps []scorer.DetachedJWS `json:"stamps"`
}

// handleSubmitStamps accepts detached-JWS credentials for the requester.
// The nonce the credentials must commit to is the one recorded with the
// session at authentication time, never one taken from the request.
func (h *Handler) handleSubmitStamps(c echo.Context) error {
	ctx := c.Request().Context()

	requester := requesterAddress(c)
	if requester == "" {
		return presenter.Unauthorized(c, "authentication required")
	}

	var req submitStampsRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	if len(req.Stamps) == 0 {
		return presenter.BadRequestMessage(c, "no stamps submitted")
	}

	saved, err := h.credentials.SubmitStamps(ctx, requester, sessionNonce(c), req.Stamps)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, saved)
}

func (h *Handler) handleGetStamps(c echo.Context) error {
	ctx := c.Request().Context()

	stamps, err := h.credentials.GetStamps(ctx, c.Param("address"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, stamps)
}

func (h *Handler) handleStampHistory(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 50
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return presenter.BadRequestMessage(c, "invalid limit parameter")
		}
		limit = parsed
	}
	if limit > 200 {
		limit = 200
	}

	offset := 0
	if offsetStr := c.QueryParam("offset"); offsetStr != "" {
		parsed, err := strconv.Atoi(offsetStr)
		if err != nil {
			return presenter.BadRequestMessage(c, "invalid offset parameter")
		}
		offset = parsed
	}

	stamps, err := h.credentials.StampHistory(ctx, c.Param("address"), limit, offset)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, stamps)
}

func (h *Handler) handleDeleteStamp(c echo.Context) error {
	ctx := c.Request().Context()

	requester := requesterAddress(c)
	if requester == "" {
		return presenter.Unauthorized(c, "authentication required")
	}

	err := h.credentials.DeleteStamp(ctx, requester, c.Param("provider"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleGetScore(c echo.Context) error {
	ctx := c.Request().Context()

	communityID, err := strconv.ParseInt(c.Param("communityID"), 10, 64)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid community id")
	}

	score, err := h.scoring.GetScore(ctx, communityID, c.Param("address"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, score)
}

func (h *Handler) handleRescore(c echo.Context) error {
	ctx := c.Request().Context()

	requester := requesterAddress(c)
	if requester == "" && !h.isAdmin(c) {
		return presenter.Unauthorized(c, "authentication required")
	}

	communityID, err := strconv.ParseInt(c.Param("communityID"), 10, 64)
	if err != nil {
		return presenter.BadRequestMessage(c, "invalid community id")
	}

	score, err := h.scoring.DedupAndScore(ctx, c.Param("address"), communityID)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, score)
}

type revokeRequest struct {
	Fingerprint string `json:"fingerprint"`
	Reason      string `json:"reason"`
}

func (h *Handler) handleRevoke(c echo.Context) error {
	ctx := c.Request().Context()

	if !h.isAdmin(c) {
		return presenter.Forbidden(c, "admin key required")
	}

	var req revokeRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	if err := h.admin.Revoke(ctx, req.Fingerprint, req.Reason); err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

type createCommunityRequest struct {
	Name           string `json:"name"`
	Rule           string `json:"rule"`
	Variant        string `json:"variant"`
	WeightConfigID *int64 `json:"weightConfigID"`
	HardDedup      bool   `json:"hardDedup"`
}

func (h *Handler) handleCreateCommunity(c echo.Context) error {
	ctx := c.Request().Context()

	requester := requesterAddress(c)
	if requester == "" {
		return presenter.Unauthorized(c, "authentication required")
	}

	var req createCommunityRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	community, err := h.admin.CreateCommunity(ctx, domain.Community{
		Account:        requester,
		Name:           req.Name,
		Rule:           domain.Rule(req.Rule),
		Variant:        domain.ScorerVariant(req.Variant),
		WeightConfigID: req.WeightConfigID,
		HardDedup:      req.HardDedup,
	})
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.Created(c, community)
}

func (h *Handler) handleCreateWeights(c echo.Context) error {
	ctx := c.Request().Context()

	if !h.isAdmin(c) {
		return presenter.Forbidden(c, "admin key required")
	}

	var req domain.WeightConfiguration
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	created, err := h.admin.CreateWeights(ctx, req)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.Created(c, created)
}

type activateWeightsRequest struct {
	ID int64 `json:"id"`
}

func (h *Handler) handleActivateWeights(c echo.Context) error {
	ctx := c.Request().Context()

	if !h.isAdmin(c) {
		return presenter.Forbidden(c, "admin key required")
	}

	var req activateWeightsRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	cfg, err := h.admin.ActivateWeights(ctx, req.ID)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, cfg)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type feedRequest struct {
	Type        string  `json:"type"`
	Communities []int64 `json:"communities"`
}

// handleFeed streams score.updated events over a websocket. Clients may send
// a listen request to narrow the feed to specific communities.
func (h *Handler) handleFeed(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"Failed to upgrade WebSocket",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return err
	}
	defer func() {
		ws.Close()
	}()

	ctx := c.Request().Context()

	pubsub := h.events.Subscribe(ctx)
	defer pubsub.Close()

	filter := make(chan []int64, 1)
	quit := make(chan struct{})

	go func() {
		for {
			var req feedRequest
			err := ws.ReadJSON(&req)
			if err != nil {

				wsErr, ok := err.(*websocket.CloseError)
				if ok {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						slog.DebugContext(
							ctx, "WebSocket closed",
							slog.String("error", wsErr.Error()),
							slog.String("module", "socket"),
						)
					}
				} else {
					slog.ErrorContext(
						ctx, "Error reading message",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
				}

				close(quit)
				break
			}

			switch req.Type {
			case "listen":
				filter <- req.Communities
			case "h": // heartbeat
				// do nothing
			default:
				slog.InfoContext(
					ctx, "Unknown request type",
					slog.String("type", req.Type),
					slog.String("module", "socket"),
				)
			}
		}
	}()

	watched := map[int64]bool{}

	for {
		select {
		case <-quit:
			return nil
		case communities := <-filter:
			watched = make(map[int64]bool, len(communities))
			for _, id := range communities {
				watched[id] = true
			}
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return nil
			}

			var event scorer.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.ErrorContext(
					ctx, "Error decoding event",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				continue
			}

			if len(watched) > 0 && !watched[event.CommunityID] {
				continue
			}

			err := ws.WriteJSON(event)
			if err != nil {
				slog.ErrorContext(
					ctx, "Error writing message",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				return nil
			}
		}
	}
}
