package webhooks

import (
	"encoding/json"
	"net/http"

	"github.com/maquis-app/maquis-backend/api/responses"
	paymewebhook "github.com/maquis-app/maquis-backend/internal/webhooks/payme"
	pkgerrors "github.com/maquis-app/maquis-backend/pkg/errors"
	"github.com/maquis-app/maquis-backend/pkg/logger"
)

// PaymeCallback receives asynchronous payment confirmations from the gateway.
// Any non-2xx response makes the gateway retry, so validation failures are the
// only errors surfaced with a 4xx.
func PaymeCallback(svc *paymewebhook.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var callback paymewebhook.Callback
		if err := json.NewDecoder(r.Body).Decode(&callback); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid callback payload"))
			return
		}

		if err := svc.HandleCallback(r.Context(), callback); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "received"})
	}
}
