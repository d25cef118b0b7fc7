package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"

	"github.com/ticketforge/mint-engine/internal/middleware"
	"github.com/ticketforge/mint-engine/internal/model"
	"github.com/ticketforge/mint-engine/internal/queue"
	"github.com/ticketforge/mint-engine/internal/repository"
)

type ActionSetFinder interface {
	Search(ctx context.Context, id string) ([]model.ActionSet, error)
}

type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// CartHandler accepts cart operations and hands them to background jobs.
// All methods assume JWTAuth already ran.
type CartHandler struct {
	ActionSets ActionSetFinder
	Jobs       Enqueuer
}

func NewCartHandler(actionSets ActionSetFinder, jobs Enqueuer) *CartHandler {
	return &CartHandler{ActionSets: actionSets, Jobs: jobs}
}

type authorizationsBody struct {
	Tickets           []model.TicketMintingFormat `json:"tickets"`
	Prices            []model.Price               `json:"prices"`
	Fees              []string                    `json:"fees"`
	CommitType        string                      `json:"commit_type"`
	ExpirationMs      int64                       `json:"expiration_ms"`
	SignatureReadable bool                        `json:"signature_readable"`
}

// RequestAuthorizations handles POST /v1/carts/:id/authorizations.  It
// queues a reconciliation of the cart's authorizations with the requested
// tickets, for the caller's wallet, and answers 202 with the job id.
func (h *CartHandler) RequestAuthorizations(c echo.Context) error {
	cart, status, msg := h.ownedCart(c)
	if status != 0 {
		return c.JSON(status, echo.Map{"error": msg})
	}
	step := cart.Find(model.ActionCartAuthorizations)
	if step < 0 {
		return c.JSON(http.StatusConflict, echo.Map{"error": "cart has no authorizations step"})
	}

	var body authorizationsBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if len(body.Tickets) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tickets is required"})
	}
	if body.ExpirationMs <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "expiration_ms must be positive"})
	}
	for _, t := range body.Tickets {
		if t.CategoryID == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "category_id is required"})
		}
		if _, ok := t.Price.Amount(); !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket price"})
		}
	}

	task, err := queue.NewReconcileTask(queue.ReconcilePayload{
		ActionSetID:       cart.ID,
		Step:              step,
		Requested:         body.Tickets,
		Prices:            body.Prices,
		Fees:              body.Fees,
		CommitType:        body.CommitType,
		ExpirationMs:      body.ExpirationMs,
		SignatureReadable: body.SignatureReadable,
		Grantee:           middleware.Address(c),
	})
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	return h.enqueue(c, task)
}

type mintBody struct {
	CheckoutID string `json:"checkout_id"`
	GemOrderID string `json:"gem_order_id"`
}

// Mint handles POST /v1/carts/:id/mint.  It queues the construction of the
// minting transaction sequence of a paid cart.
func (h *CartHandler) Mint(c echo.Context) error {
	cart, status, msg := h.ownedCart(c)
	if status != 0 {
		return c.JSON(status, echo.Map{"error": msg})
	}
	var body mintBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.CheckoutID == "" || body.GemOrderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "checkout_id and gem_order_id are required"})
	}
	task, err := queue.NewBuildSequenceTask(queue.BuildSequencePayload{
		CartID:     cart.ID,
		CheckoutID: body.CheckoutID,
		GemOrderID: body.GemOrderID,
	})
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	return h.enqueue(c, task)
}

// ownedCart loads the cart named in the path and checks the caller owns it.
// A non zero status means the request must stop with msg.
func (h *CartHandler) ownedCart(c echo.Context) (model.ActionSet, int, string) {
	id := c.Param("id")
	if id == "" {
		return model.ActionSet{}, http.StatusBadRequest, "invalid cart id"
	}
	sets, err := h.ActionSets.Search(c.Request().Context(), id)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return model.ActionSet{}, http.StatusInternalServerError, "database error"
	}
	if len(sets) == 0 {
		return model.ActionSet{}, http.StatusNotFound, "cart not found"
	}
	if sets[0].Owner != middleware.UserID(c) {
		return model.ActionSet{}, http.StatusForbidden, "forbidden"
	}
	return sets[0], 0, ""
}

func (h *CartHandler) enqueue(c echo.Context, task *asynq.Task) error {
	info, err := h.Jobs.EnqueueContext(c.Request().Context(), task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "already queued"})
		}
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "queue unavailable"})
	}
	return c.JSON(http.StatusAccepted, echo.Map{"job_id": info.ID, "type": info.Type})
}
