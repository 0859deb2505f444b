package http

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	legacyrouter "github.com/getkin/kin-openapi/routers/legacy"
)

//go:embed openapi.yaml
var rawSpec []byte

var (
	swaggerOnce sync.Once
	swagger     *openapi3.T
	swaggerErr  error
)

// GetSwagger returns the parsed and validated API description.
func GetSwagger() (*openapi3.T, error) {
	swaggerOnce.Do(func() {
		doc, err := openapi3.NewLoader().LoadFromData(rawSpec)
		if err != nil {
			swaggerErr = fmt.Errorf("error loading api spec: %w", err)
			return
		}
		if err := doc.Validate(context.Background()); err != nil {
			swaggerErr = fmt.Errorf("invalid api spec: %w", err)
			return
		}
		swagger = doc
	})
	return swagger, swaggerErr
}

// validateRequests rejects requests that do not match the API description.
// Paths it does not describe pass through untouched.
func (s *Server) validateRequests(next http.Handler) http.Handler {
	doc, err := GetSwagger()
	if err != nil {
		s.logger.Error("request validation disabled", "error", err)
		return next
	}
	router, err := legacyrouter.NewRouter(doc)
	if err != nil {
		s.logger.Error("request validation disabled", "error", err)
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, pathParams, err := router.FindRoute(r)
		if err != nil {
			if !errors.Is(err, routers.ErrPathNotFound) && !errors.Is(err, routers.ErrMethodNotAllowed) {
				s.logger.Debug("no api route", "path", r.URL.Path, "error", err)
			}
			next.ServeHTTP(w, r)
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
			},
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			s.logger.Warn("request rejected", "path", r.URL.Path, "error", err)
			writeError(w, http.StatusBadRequest, requestErrorMessage(err))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestErrorMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.Parameter != nil {
			return fmt.Sprintf("invalid parameter %s: %s", reqErr.Parameter.Name, reqErr.Reason)
		}
		if reqErr.RequestBody != nil {
			return "invalid request body: " + reqErr.Error()
		}
	}
	return err.Error()
}
