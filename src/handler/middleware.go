package handler

import (
	"errors"
	"net/http"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"strategyvault/src/auth"
	"strategyvault/src/model"
	"strategyvault/src/repository"
)

// APIKeyAuth authenticates a caller from the X-Caller-Address and X-API-Key
// headers against the issued key records and attaches the principal to the
// request context. Every authenticated route sits behind this.
func APIKeyAuth(keys *repository.ExecutorKeyRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			address := r.Header.Get("X-Caller-Address")
			apiKey := r.Header.Get("X-API-Key")

			if address == "" || apiKey == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			record, err := keys.FindByAddress(r.Context(), address)
			if err != nil {
				if !errors.Is(err, model.ErrNotFound) {
					logger.WithError(err).Error("failed to load executor key")
				}
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !record.Active {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if bcrypt.CompareHashAndPassword([]byte(record.APIKeyHash), []byte(apiKey)) != nil {
				logger.WithFields(map[string]interface{}{
					"address": address,
				}).Warn("API key mismatch")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			principal := &auth.Principal{Address: record.Address, Role: record.Role}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}
