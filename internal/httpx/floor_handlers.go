package httpx

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-realtime-floor/internal/apperr"
	"github.com/ariefcatur/go-realtime-floor/internal/auth"
	"github.com/ariefcatur/go-realtime-floor/internal/domain"
	"github.com/ariefcatur/go-realtime-floor/internal/inventory"
	"github.com/ariefcatur/go-realtime-floor/internal/reservations"
	"github.com/ariefcatur/go-realtime-floor/internal/tables"
)

// ---- products ----

type ProductsHandler struct {
	Svc  *inventory.Service
	errs errorWriter
}

type stockReq struct {
	Quantity  int    `json:"quantity"`
	Operation string `json:"operation"`
}

func (h *ProductsHandler) Register(r chi.Router) {
	r.Get("/products", h.list)
	r.Get("/products/{id}", h.get)
	r.With(auth.RequireRole(auth.RoleAdmin, auth.RoleManager, auth.RoleKitchen)).
		Patch("/products/{id}/stock", h.adjustStock)
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Svc.List(r.Context())
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) adjustStock(w http.ResponseWriter, r *http.Request) {
	var req stockReq
	if err := decode(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	p, err := h.Svc.AdjustStock(r.Context(), chi.URLParam(r, "id"), req.Quantity, domain.StockOperation(req.Operation))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ---- tables ----

type TablesHandler struct {
	Svc  *tables.Service
	errs errorWriter
}

type tableStatusReq struct {
	Status   string `json:"status"`
	WaiterID string `json:"waiter_id"`
}

type waiterReq struct {
	WaiterID string `json:"waiter_id"`
}

func (h *TablesHandler) Register(r chi.Router) {
	r.Get("/tables", h.list)
	r.Get("/tables/{id}", h.get)
	r.Patch("/tables/{id}/status", h.updateStatus)
	r.Put("/tables/{id}/waiter", h.assignWaiter)
	r.Delete("/tables/{id}/waiter", h.removeWaiter)
}

func (h *TablesHandler) list(w http.ResponseWriter, r *http.Request) {
	ts, err := h.Svc.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (h *TablesHandler) get(w http.ResponseWriter, r *http.Request) {
	t, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TablesHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req tableStatusReq
	if err := decode(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	t, err := h.Svc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status, req.WaiterID)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TablesHandler) assignWaiter(w http.ResponseWriter, r *http.Request) {
	var req waiterReq
	if err := decode(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	if req.WaiterID == "" {
		req.WaiterID = userID(r)
	}
	t, err := h.Svc.AssignWaiter(r.Context(), chi.URLParam(r, "id"), req.WaiterID)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TablesHandler) removeWaiter(w http.ResponseWriter, r *http.Request) {
	t, err := h.Svc.RemoveWaiter(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ---- reservations ----

type ReservationsHandler struct {
	Svc  *reservations.Service
	errs errorWriter
}

func (h *ReservationsHandler) Register(r chi.Router) {
	r.Route("/reservations", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/available-tables", h.availableTables)
		r.Get("/{id}", h.get)
		r.Patch("/{id}", h.update)
		r.Patch("/{id}/status", h.updateStatus)
	})
}

func (h *ReservationsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req reservations.CreateInput
	if err := decode(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	req.CreatedBy = userID(r)
	res, err := h.Svc.Create(r.Context(), req)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *ReservationsHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.Svc.List(r.Context(), q.Get("date"), q.Get("table_id"), q.Get("status"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ReservationsHandler) get(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ReservationsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req reservations.UpdateInput
	if err := decode(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	res, err := h.Svc.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ReservationsHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := decode(r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	res, err := h.Svc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ReservationsHandler) availableTables(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fields := apperr.FieldErrors{}
	duration := queryInt(fields, q.Get("duration"), "duration")
	gc := q.Get("guest_count")
	if gc == "" {
		gc = q.Get("guestCount") // ejaan camelCase juga diterima
	}
	guests := queryInt(fields, gc, "guest_count")
	if err := fields.Err(); err != nil {
		h.errs.write(w, r, err)
		return
	}
	ts, err := h.Svc.FindAvailableTables(r.Context(), q.Get("date"), q.Get("time"), duration, guests)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

// queryInt parses an optional integer parameter; empty means zero.
func queryInt(fields apperr.FieldErrors, v, name string) int {
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fields.Add(name, "must be an integer")
	}
	return n
}
