package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"

	apierrors "github.com/pribylovaa/taskmaster-auth/internal/errors"
	"github.com/pribylovaa/taskmaster-auth/internal/models"
	"github.com/pribylovaa/taskmaster-auth/internal/storage"
)

func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	accounts, err := h.svc.ListAccounts(r.Context(), page)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	out := make([]accountResponse, 0, len(accounts))
	for i := range accounts {
		out = append(out, toAccountResponse(&accounts[i]))
	}

	apierrors.WriteJSON(w, r, http.StatusOK, "Users retrieved", out)
}

func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	acc, err := h.svc.AccountByID(r.Context(), id)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	apierrors.WriteJSON(w, r, http.StatusOK, "User retrieved", toAccountResponse(acc))
}

func (h *Handlers) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	var in roleRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	if err := in.Validate(); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	acc, err := h.svc.UpdateRole(r.Context(), id, models.RoleName(in.Role))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	apierrors.WriteJSON(w, r, http.StatusOK, "User role updated", toAccountResponse(acc))
}

func (h *Handlers) UpdateUserStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	var in statusRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	if err := in.Validate(); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	acc, err := h.svc.UpdateStatus(r.Context(), id, models.AccountStatus(in.Status))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	apierrors.WriteJSON(w, r, http.StatusOK, "User status updated", toAccountResponse(acc))
}

func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if err := h.svc.DeleteAccount(r.Context(), id); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	apierrors.WriteJSON(w, r, http.StatusOK, "User deleted", nil)
}

// pathID разбирает {id} как положительный int64.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, validation.Errors{"id": errors.New("must be a positive integer")}
	}

	return id, nil
}

// parsePage читает limit и offset из query; пустые значения дают нули.
func parsePage(r *http.Request) (storage.Page, error) {
	var page storage.Page
	verrs := validation.Errors{}

	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 500 {
			verrs["limit"] = errors.New("must be an integer between 0 and 500")
		}
		page.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			verrs["offset"] = errors.New("must be a non-negative integer")
		}
		page.Offset = n
	}

	if len(verrs) > 0 {
		return storage.Page{}, verrs
	}

	return page, nil
}
