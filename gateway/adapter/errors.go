package adapter

import (
	"io"
	"net/http"
	"strings"

	"github.com/jeffersonwarrior/aimux-sub001/types"
)

// mapHTTPError classifies an upstream HTTP failure into the gateway's error
// taxonomy, the same status-code table the teacher's MiniMax/OpenAI-compatible
// providers use (mapError/MapHTTPError), adapted onto types.ErrorKind.
func mapHTTPError(status int, body, providerID string) *types.Error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return types.NewError(types.ErrProviderAuth, body).WithProvider(providerID).WithHTTPStatus(status)
	case http.StatusTooManyRequests:
		return types.NewError(types.ErrProviderRateLimited, body).WithProvider(providerID).WithHTTPStatus(status).WithRetryable(true)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return types.NewError(types.ErrMalformedRequest, body).WithProvider(providerID).WithHTTPStatus(status)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return types.NewError(types.ErrProviderTimeout, body).WithProvider(providerID).WithHTTPStatus(status).WithRetryable(true)
	case http.StatusServiceUnavailable, http.StatusBadGateway, 529: // 529 = model/provider overloaded
		return types.NewError(types.ErrProviderTransient, body).WithProvider(providerID).WithHTTPStatus(status).WithRetryable(true)
	default:
		if status >= 500 {
			return types.NewError(types.ErrProviderTransient, body).WithProvider(providerID).WithHTTPStatus(status).WithRetryable(true)
		}
		return types.NewError(types.ErrProviderPermanent, body).WithProvider(providerID).WithHTTPStatus(status)
	}
}

// readErrorBody reads a best-effort error message out of an HTTP error
// response body, capped to keep a misbehaving upstream from blowing up log
// lines or error messages.
func readErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 8192))
	return strings.TrimSpace(string(data))
}
