package httpadapter

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	legacyrouter "github.com/getkin/kin-openapi/routers/legacy"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
)

const maxJSONBodyBytes = 4 << 20

//go:embed openapi.yaml
var openAPISpec []byte

func loadOpenAPIDocument() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPISpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	return doc, nil
}

// openAPIValidator checks JSON request bodies against the embedded contract. Requests
// with other content types or routes outside the contract pass through untouched.
type openAPIValidator struct {
	router routers.Router
}

func newOpenAPIValidator(doc *openapi3.T) (*openAPIValidator, error) {
	router, err := legacyrouter.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}
	return &openAPIValidator{router: router}, nil
}

func (v *openAPIValidator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType != "application/json" {
			next.ServeHTTP(w, r)
			return
		}
		route, pathParams, err := v.router.FindRoute(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
		if err != nil {
			writeError(w, r, domain.NewValidationError("body", "请求体过大或无法读取"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: pathParams,
			Route:      route,
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			writeError(w, r, requestValidationError(err))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

func requestValidationError(err error) error {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		var schemaErr *openapi3.SchemaError
		if errors.As(reqErr.Err, &schemaErr) {
			field := "body"
			if pointer := schemaErr.JSONPointer(); len(pointer) > 0 {
				field = pointer[0]
			}
			return domain.NewValidationError(field, fmt.Sprintf("请求参数不合法: %s", schemaErr.Reason))
		}
		return domain.NewValidationError("body", fmt.Sprintf("请求参数不合法: %s", reqErr.Error()))
	}
	return domain.NewValidationError("body", "请求参数不合法")
}
