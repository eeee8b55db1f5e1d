package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"strategyvault/src/access"
	"strategyvault/src/model"
	"strategyvault/src/repository"
)

// AddExecutorHandler authorizes an address for settlement. Owner only. The
// address must already hold an issued key; authorization activates it and
// registers the principal in the in-process gate.
func AddExecutorHandler(gate *access.AccessControl, keys *repository.ExecutorKeyRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalOr401(w, r)
		if !ok {
			return
		}

		var payload struct {
			Address string `json:"address"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Address == "" {
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		if _, err := keys.FindByAddress(r.Context(), payload.Address); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				http.Error(w, "no key issued for address", http.StatusBadRequest)
				return
			}
			writeError(w, err)
			return
		}

		if err := gate.AddExecutor(principal.Address, payload.Address); err != nil {
			writeError(w, err)
			return
		}

		if err := keys.SetActive(r.Context(), payload.Address, true); err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"address": payload.Address, "role": model.RoleExecutor})
	}
}

// RemoveExecutorHandler revokes an executor. Owner only.
func RemoveExecutorHandler(gate *access.AccessControl, keys *repository.ExecutorKeyRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalOr401(w, r)
		if !ok {
			return
		}

		address := chi.URLParam(r, "address")

		if err := gate.RemoveExecutor(principal.Address, address); err != nil {
			writeError(w, err)
			return
		}

		if err := keys.SetActive(r.Context(), address, false); err != nil && !errors.Is(err, model.ErrNotFound) {
			writeError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// ListExecutorsHandler lists the currently authorized executors.
func ListExecutorsHandler(gate *access.AccessControl) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"owner":     gate.Owner(),
			"executors": gate.Executors(),
		})
	}
}

// SetProtocolFeeHandler updates the protocol fee. Owner only, bounded.
func SetProtocolFeeHandler(gate *access.AccessControl) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalOr401(w, r)
		if !ok {
			return
		}

		var payload struct {
			Bps int64 `json:"bps"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		if err := gate.SetProtocolFee(principal.Address, payload.Bps); err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]int64{"bps": gate.FeeBps()})
	}
}

// SetOracleHandler points the system at a different price oracle. Owner only.
func SetOracleHandler(gate *access.AccessControl) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalOr401(w, r)
		if !ok {
			return
		}

		var payload struct {
			Ref string `json:"ref"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Ref == "" {
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		if err := gate.SetOracle(principal.Address, payload.Ref); err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"ref": gate.OracleRef()})
	}
}
