package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-realtime-floor/internal/auth"
	"github.com/ariefcatur/go-realtime-floor/internal/orders"
)

type OrdersHandler struct {
	Svc  *orders.Service
	errs errorWriter
}

type createOrderReq struct {
	TableID    string             `json:"table_id"`
	WaiterID   string             `json:"waiter_id"`
	CustomerID string             `json:"customer_id"`
	Note       string             `json:"note"`
	Items      []orders.ItemInput `json:"items"`
}

type statusReq struct {
	Status string `json:"status"`
}

type updateItemReq struct {
	Quantity int     `json:"quantity"`
	Note     *string `json:"note"`
}

type paymentReq struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"`
}

type discountReq struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/", h.listOrders)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getOrder)
			r.Patch("/status", h.updateStatus)
			r.Post("/items", h.addItem)
			r.Patch("/items/{itemId}", h.updateItem)
			r.Delete("/items/{itemId}", h.removeItem)
			r.Patch("/items/{itemId}/status", h.updateItemStatus)
			r.With(auth.RequireRole(auth.RoleCashier, auth.RoleAdmin, auth.RoleManager)).
				Post("/payments", h.addPayment)
			r.With(auth.RequireRole(auth.RoleCashier, auth.RoleAdmin, auth.RoleManager)).
				Patch("/discount", h.applyDiscount)
		})
	})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := decode(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	// default: pelayan = user yang login
	if req.WaiterID == "" {
		req.WaiterID = userID(r)
	}
	o, err := h.Svc.Create(r.Context(), orders.CreateInput{
		TableID:    req.TableID,
		WaiterID:   req.WaiterID,
		CustomerID: req.CustomerID,
		Note:       req.Note,
		Items:      req.Items,
	})
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.Svc.List(r.Context(), q.Get("status"), q.Get("table_id"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := decode(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	o, err := h.Svc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req orders.ItemInput
	if err := decode(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	o, err := h.Svc.AddItem(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemReq
	if err := decode(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	o, err := h.Svc.UpdateItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemId"), req.Quantity, req.Note)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	o, err := h.Svc.RemoveItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemId"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) updateItemStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := decode(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	o, err := h.Svc.UpdateItemStatus(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemId"), req.Status)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) addPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentReq
	if err := decode(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	o, err := h.Svc.AddPayment(r.Context(), chi.URLParam(r, "id"), req.Amount, req.Method, userID(r))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) applyDiscount(w http.ResponseWriter, r *http.Request) {
	var req discountReq
	if err := decode(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	o, err := h.Svc.ApplyDiscount(r.Context(), chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
