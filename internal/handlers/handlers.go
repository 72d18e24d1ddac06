package handlers

import (
	"net/http"

	"linkhub/internal/logs"
	"linkhub/internal/middleware"
	"linkhub/internal/models"
)

// internalError — полный лог на сервере, наружу generic 500.
func internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	logs.Logger.Errorf("%s reqid=%s uri=%s: %v", op, middleware.GetRequestID(r), r.RequestURI, err)
	models.WriteError(w, http.StatusInternalServerError, "internal server error")
}
