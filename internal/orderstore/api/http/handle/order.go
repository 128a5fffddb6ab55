package handle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"orderboard/internal/orderstore/api/http/middleware"
	"orderboard/internal/orderstore/app/core"
	"orderboard/internal/orderstore/app/services"
	"orderboard/internal/session"
	apperr "orderboard/internal/xpkg/errors"
	"orderboard/pkg/logger"
	"orderboard/pkg/models"
)

// Statuses each role may move an order to. Admins may set any status.
var writableStatuses = map[session.Role][]models.Status{
	session.RoleKitchen: {models.StatusPreparing, models.StatusReady, models.StatusCancelled},
	session.RoleServer:  {models.StatusServed, models.StatusCompleted, models.StatusCancelled},
	session.RoleAdmin:   models.Statuses(),
}

type OrderHandler struct {
	orderService *services.OrderService
	mylog        logger.Logger
}

func NewOrderHandler(orderService *services.OrderService, mylog logger.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		mylog:        mylog,
	}
}

// List serves GET /v1/orders?status=READY,SERVED&customer_id=&limit=&offset=
func (oh *OrderHandler) List(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		writeError(c, apperr.ErrUnauthorized)
		return
	}

	f, err := parseListFilters(c)
	if err != nil {
		jsonError(c, http.StatusBadRequest, CodeInvalidRequest, err)
		return
	}

	if sess.Role() == session.RoleCustomer {
		// Applied before the page limit so a customer's pages hold only their orders.
		f.CustomerID = sess.CustomerID()
		if f.CustomerID == "" {
			jsonData(c, http.StatusOK, []models.Order{}, &Meta{Limit: f.Limit, Offset: f.Offset})
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), core.WaitTime*time.Second)
	defer cancel()

	orders, err := oh.orderService.ListOrders(ctx, sess.TenantID(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}

	jsonData(c, http.StatusOK, orders, &Meta{Limit: f.Limit, Offset: f.Offset, Count: len(orders)})
}

// Get serves GET /v1/orders/:id
func (oh *OrderHandler) Get(c *gin.Context) {
	order, ok := oh.visibleOrder(c)
	if !ok {
		return
	}
	jsonData(c, http.StatusOK, order, nil)
}

// History serves GET /v1/orders/:id/history
func (oh *OrderHandler) History(c *gin.Context) {
	if _, ok := oh.visibleOrder(c); !ok {
		return
	}
	sess, _ := middleware.GetSession(c)

	logs, err := oh.orderService.History(c.Request.Context(), sess.TenantID(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	jsonData(c, http.StatusOK, logs, nil)
}

// Create serves POST /v1/orders
func (oh *OrderHandler) Create(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		writeError(c, apperr.ErrUnauthorized)
		return
	}

	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		oh.mylog.Action("parse_failed").Warn("Failed to parse order", "error", err.Error())
		jsonError(c, http.StatusBadRequest, CodeInvalidRequest, errors.New("failed to parse JSON"))
		return
	}

	switch sess.Role() {
	case session.RoleKitchen:
		writeError(c, apperr.ErrForbidden)
		return
	case session.RoleCustomer:
		// Customers only order for themselves.
		req.CustomerID = sess.CustomerID()
		req.TableNumber = 0
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), core.WaitTime*time.Second)
	defer cancel()

	order, err := oh.orderService.CreateOrder(ctx, sess.TenantID(), sess.ChangedBy(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	jsonData(c, http.StatusCreated, order, nil)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note"`
}

// UpdateStatus serves PATCH /v1/orders/:id/status
func (oh *OrderHandler) UpdateStatus(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		writeError(c, apperr.ErrUnauthorized)
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, CodeInvalidRequest, errors.New("status is required"))
		return
	}
	target, err := models.ParseStatus(req.Status)
	if err != nil {
		jsonError(c, http.StatusBadRequest, CodeInvalidRequest, err)
		return
	}
	if !mayWrite(sess.Role(), target) {
		jsonError(c, http.StatusForbidden, CodeForbidden,
			fmt.Errorf("role %s cannot set status %s", sess.Role(), target))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), core.WaitTime*time.Second)
	defer cancel()

	order, err := oh.orderService.UpdateOrderStatus(ctx, models.StatusChange{
		TenantID:  sess.TenantID(),
		OrderID:   c.Param("id"),
		Target:    target,
		ChangedBy: sess.ChangedBy(),
		Note:      req.Note,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	jsonData(c, http.StatusOK, order, nil)
}

// visibleOrder loads :id for the session, hiding other customers' orders as not found.
func (oh *OrderHandler) visibleOrder(c *gin.Context) (models.Order, bool) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		writeError(c, apperr.ErrUnauthorized)
		return models.Order{}, false
	}

	order, err := oh.orderService.GetOrder(c.Request.Context(), sess.TenantID(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return models.Order{}, false
	}
	if sess.Role() == session.RoleCustomer && (sess.CustomerID() == "" || order.CustomerID != sess.CustomerID()) {
		writeError(c, apperr.ErrNotFound)
		return models.Order{}, false
	}
	return order, true
}

func parseListFilters(c *gin.Context) (models.ListFilters, error) {
	var f models.ListFilters

	statuses, err := models.ParseStatuses(c.Query("status"))
	if err != nil {
		return f, err
	}
	f.Statuses = statuses
	f.CustomerID = c.Query("customer_id")

	if raw := c.Query("limit"); raw != "" {
		if f.Limit, err = strconv.Atoi(raw); err != nil || f.Limit < 0 {
			return f, fmt.Errorf("limit must be a non-negative integer: %q", raw)
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if f.Offset, err = strconv.Atoi(raw); err != nil || f.Offset < 0 {
			return f, fmt.Errorf("offset must be a non-negative integer: %q", raw)
		}
	}
	return f, nil
}

func mayWrite(role session.Role, target models.Status) bool {
	for _, s := range writableStatuses[role] {
		if s == target {
			return true
		}
	}
	return false
}
