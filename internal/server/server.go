package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"launchline/internal/cycle"
	"launchline/internal/domain"
	"launchline/internal/engine"
	"launchline/internal/ledger"
	"launchline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"validation_failed"`
	Message string         `json:"message" example:"asset a1 is pending, not active"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Launchline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Launchline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerStores(group, cfg.Engine)
	registerStats(group, cfg.Engine)
	registerMembers(group, cfg.Engine)
	registerAssets(group, cfg.Engine)
	registerGoals(group, cfg.Engine)
	registerCredits(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), nil)
	}
	var pe engine.PermissionError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "unique") || strings.Contains(lowered, "already exists"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Launchline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerStats(api huma.API, e engine.Engine) {
	type storePath struct {
		StoreID string `path:"store_id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "store-stats",
		Method:      http.MethodGet,
		Path:        "/stores/{store_id}/stats",
		Summary:     "Store statistics",
	}, func(ctx context.Context, input *storePath) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		s, err := e.Repo.GetStore(ctx, input.StoreID)
		if err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Repo.CountAssetsByStatus(ctx, s.ID)
		if err != nil {
			return nil, handleError(err)
		}
		credits, err := e.Repo.MemberCreditStats(ctx, s.ID)
		if err != nil {
			return nil, handleError(err)
		}
		total, completed, err := e.Repo.GoalCompletionStats(ctx, s.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"store_id":     s.ID,
			"asset_counts": counts,
			"credit":       credits,
			"goals": map[string]int{
				"total":     total,
				"completed": completed,
			},
		}}, nil
	})
}

func registerStores(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-store",
		Method:        http.MethodPost,
		Path:          "/stores",
		Summary:       "Create store",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateStoreRequest `json:"body"`
	}) (*struct {
		Body StoreResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		desc := ""
		if input.Body.Description != nil {
			desc = *input.Body.Description
		}
		s, err := e.InitStore(ctx, input.Body.ID, input.Body.Kind, desc, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StoreResponse `json:"body"`
		}{Body: storeResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-stores",
		Method:      http.MethodGet,
		Path:        "/stores",
		Summary:     "List stores",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []StoreResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListStores(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []StoreResponse `json:"body"`
		}{Body: mapStores(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-store",
		Method:      http.MethodGet,
		Path:        "/stores/{store_id}",
		Summary:     "Get store",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		StoreID string `path:"store_id"`
	}) (*struct {
		Body StoreResponse `json:"body"`
	}, error) {
		s, err := e.Repo.GetStore(ctx, input.StoreID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StoreResponse `json:"body"`
		}{Body: storeResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-store-config",
		Method:      http.MethodGet,
		Path:        "/stores/{store_id}/config",
		Summary:     "Get store config",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		StoreID string `path:"store_id"`
	}) (*struct {
		Body StoreConfigResponse `json:"body"`
	}, error) {
		cfg, err := e.Repo.GetStoreConfig(ctx, input.StoreID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StoreConfigResponse `json:"body"`
		}{Body: configResponse(cfg)}, nil
	})
}

func registerMembers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-member",
		Method:        http.MethodPost,
		Path:          "/stores/{store_id}/members",
		Summary:       "Create member",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		StoreID string              `path:"store_id"`
		Body    CreateMemberRequest `json:"body"`
	}) (*struct {
		Body MemberResponse `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		if _, err := e.Repo.GetStore(ctx, input.StoreID); err != nil {
			return nil, handleError(err)
		}
		id := input.Body.ID
		if id == "" {
			id = uuid.New().String()
		}
		role := input.Body.Role
		if role == "" {
			role = "operator"
		}
		now := time.Now().UTC().Format(time.RFC3339)
		m := domain.Member{
			ID:          id,
			StoreID:     input.StoreID,
			Name:        input.Body.Name,
			Role:        role,
			AvatarURL:   input.Body.AvatarURL,
			Contact:     input.Body.Contact,
			CreditScore: 100,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := e.Repo.InsertMember(ctx, m); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MemberResponse `json:"body"`
		}{Body: memberResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/stores/{store_id}/members",
		Summary:     "List members ranked by credit",
	}, func(ctx context.Context, input *struct {
		StoreID string `path:"store_id"`
	}) (*struct {
		Body []MemberResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListMembers(ctx, input.StoreID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []MemberResponse `json:"body"`
		}{Body: mapMembers(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-member",
		Method:      http.MethodGet,
		Path:        "/members/{member_id}",
		Summary:     "Get member",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MemberID string `path:"member_id"`
	}) (*struct {
		Body MemberResponse `json:"body"`
	}, error) {
		m, err := e.Repo.GetMember(ctx, input.MemberID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MemberResponse `json:"body"`
		}{Body: memberResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-member",
		Method:      http.MethodPatch,
		Path:        "/members/{member_id}",
		Summary:     "Update member",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MemberID string              `path:"member_id"`
		Body     UpdateMemberRequest `json:"body"`
	}) (*struct {
		Body MemberResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		m, err := e.Repo.GetMember(ctx, input.MemberID)
		if err != nil {
			return nil, handleError(err)
		}
		if input.Body.Name != nil {
			m.Name = *input.Body.Name
		}
		if input.Body.Role != nil {
			m.Role = *input.Body.Role
		}
		if input.Body.AvatarURL != nil {
			m.AvatarURL = *input.Body.AvatarURL
		}
		if input.Body.Contact != nil {
			m.Contact = *input.Body.Contact
		}
		m.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
		if err := e.Repo.UpdateMember(ctx, m); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MemberResponse `json:"body"`
		}{Body: memberResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-member",
		Method:      http.MethodDelete,
		Path:        "/members/{member_id}",
		Summary:     "Delete member",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MemberID string `path:"member_id"`
	}) (*struct{}, error) {
		if err := e.Repo.DeleteMember(ctx, input.MemberID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerAssets(api huma.API, e engine.Engine) {
	type assetPath struct {
		AssetID string `path:"asset_id"`
	}
	huma.Register(api, huma.Operation{
		OperationID:   "create-asset",
		Method:        http.MethodPost,
		Path:          "/stores/{store_id}/assets",
		Summary:       "Create asset",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		StoreID string             `path:"store_id"`
		Body    CreateAssetRequest `json:"body"`
	}) (*struct {
		Body AssetResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CreateAsset(ctx, engine.AssetCreateOptions{
			ID:       input.Body.ID,
			StoreID:  input.StoreID,
			Title:    input.Body.Title,
			SKU:      input.Body.SKU,
			Strategy: input.Body.Strategy,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssetResponse `json:"body"`
		}{Body: assetResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-assets",
		Method:      http.MethodGet,
		Path:        "/stores/{store_id}/assets",
		Summary:     "List assets",
	}, func(ctx context.Context, input *struct {
		StoreID  string `path:"store_id"`
		Status   string `query:"status" enum:"pending,active,abandoned,maintenance,trashed,"`
		Operator string `query:"operator"`
		Strategy string `query:"strategy"`
		Limit    int    `query:"limit"`
		Cursor   string `query:"cursor"`
	}) (*struct {
		Body struct {
			Items      []AssetResponse `json:"items"`
			NextCursor string          `json:"next_cursor,omitempty"`
		} `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		filters := repo.AssetFilters{
			StoreID:    input.StoreID,
			Status:     input.Status,
			OperatorID: input.Operator,
			Strategy:   input.Strategy,
			Limit:      limit + 1,
		}
		if input.Cursor != "" {
			ts, id, err := parseCompositeCursor(input.Cursor)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", nil)
			}
			filters.CursorCreatedAt = ts
			filters.CursorID = id
		}
		items, err := e.Repo.ListAssets(ctx, filters)
		if err != nil {
			return nil, handleError(err)
		}
		next := ""
		if len(items) > limit {
			last := items[limit-1]
			next = composeCursor(last.CreatedAt, last.ID)
			items = items[:limit]
		}
		out := &struct {
			Body struct {
				Items      []AssetResponse `json:"items"`
				NextCursor string          `json:"next_cursor,omitempty"`
			} `json:"body"`
		}{}
		out.Body.Items = mapAssets(items)
		out.Body.NextCursor = next
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-asset",
		Method:      http.MethodGet,
		Path:        "/assets/{asset_id}",
		Summary:     "Get asset",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *assetPath) (*struct {
		Body AssetResponse `json:"body"`
	}, error) {
		a, err := e.Repo.GetAsset(ctx, input.AssetID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssetResponse `json:"body"`
		}{Body: assetResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-strategy",
		Method:      http.MethodPost,
		Path:        "/assets/{asset_id}/strategy",
		Summary:     "Bind asset to a playbook strategy",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		AssetID string             `path:"asset_id"`
		Body    SetStrategyRequest `json:"body"`
	}) (*struct {
		Body AssetResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.SetStrategy(ctx, input.AssetID, input.Body.Strategy, actorID, input.Body.Force)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssetResponse `json:"body"`
		}{Body: assetResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "claim-asset",
		Method:      http.MethodPost,
		Path:        "/assets/{asset_id}/claim",
		Summary:     "Claim asset from the public pool",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		AssetID string       `path:"asset_id"`
		Body    ClaimRequest `json:"body"`
	}) (*struct {
		Body AssetResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		memberID := input.Body.MemberID
		if memberID == "" {
			memberID = actorID
		}
		a, err := e.Claim(ctx, input.AssetID, memberID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssetResponse `json:"body"`
		}{Body: assetResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-day-board",
		Method:      http.MethodGet,
		Path:        "/assets/{asset_id}/day",
		Summary:     "Current day task board",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *assetPath) (*struct {
		Body engine.DayBoard `json:"body"`
	}, error) {
		board, err := e.CurrentDay(ctx, input.AssetID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.DayBoard `json:"body"`
		}{Body: board}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "attach-evidence",
		Method:      http.MethodPost,
		Path:        "/assets/{asset_id}/evidence",
		Summary:     "Attach evidence to a task slot",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		AssetID string                `path:"asset_id"`
		Body    AttachEvidenceRequest `json:"body"`
	}) (*struct {
		Body EvidenceResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		slot, err := e.AttachEvidence(ctx, engine.EvidenceOptions{
			AssetID:   input.AssetID,
			Day:       input.Body.Day,
			TaskIndex: input.Body.TaskIndex,
			Images:    input.Body.Images,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EvidenceResponse `json:"body"`
		}{Body: evidenceResponse(slot)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "detach-evidence",
		Method:      http.MethodDelete,
		Path:        "/assets/{asset_id}/evidence",
		Summary:     "Detach evidence from a task slot",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AssetID   string `path:"asset_id"`
		Day       int    `query:"day"`
		TaskIndex int    `query:"task_index"`
		Image     string `query:"image"`
	}) (*struct {
		Body EvidenceResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		slot, err := e.DetachEvidence(ctx, input.AssetID, input.Day, input.TaskIndex, input.Image, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EvidenceResponse `json:"body"`
		}{Body: evidenceResponse(slot)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advance-day",
		Method:      http.MethodPost,
		Path:        "/assets/{asset_id}/advance",
		Summary:     "Advance asset to the next playbook day",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		AssetID string `path:"asset_id"`
		Force   bool   `query:"force"`
	}) (*struct {
		Body AssetResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.AdvanceDay(ctx, input.AssetID, actorID, input.Force)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssetResponse `json:"body"`
		}{Body: assetResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "early-maintain",
		Method:      http.MethodPost,
		Path:        "/assets/{asset_id}/maintain",
		Summary:     "Move asset to maintenance early",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		AssetID string               `path:"asset_id"`
		Body    EarlyMaintainRequest `json:"body"`
	}) (*struct {
		Body AssetResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.EarlyMaintain(ctx, engine.EarlyMaintainOptions{
			AssetID:     input.AssetID,
			DailyOrders: input.Body.DailyOrders,
			DailyProfit: input.Body.DailyProfit,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssetResponse `json:"body"`
		}{Body: assetResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "abandon-asset",
		Method:      http.MethodPost,
		Path:        "/assets/{asset_id}/abandon",
		Summary:     "Abandon asset",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *assetPath) (*struct {
		Body AssetResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.Abandon(ctx, input.AssetID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssetResponse `json:"body"`
		}{Body: assetResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "trash-asset",
		Method:      http.MethodPost,
		Path:        "/assets/{asset_id}/trash",
		Summary:     "Move asset to trash",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *assetPath) (*struct {
		Body AssetResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.Trash(ctx, input.AssetID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssetResponse `json:"body"`
		}{Body: assetResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restore-asset",
		Method:      http.MethodPost,
		Path:        "/assets/{asset_id}/restore",
		Summary:     "Restore asset from trash",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *assetPath) (*struct {
		Body AssetResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.Restore(ctx, input.AssetID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssetResponse `json:"body"`
		}{Body: assetResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "purge-asset",
		Method:      http.MethodDelete,
		Path:        "/assets/{asset_id}",
		Summary:     "Permanently delete a trashed asset",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		AssetID string `path:"asset_id"`
		Force   bool   `query:"force"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Purge(ctx, input.AssetID, actorID, input.Force); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-asset-logs",
		Method:      http.MethodGet,
		Path:        "/assets/{asset_id}/logs",
		Summary:     "Asset history log",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *assetPath) (*struct {
		Body []AssetLogResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetAsset(ctx, input.AssetID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListAssetLogs(ctx, input.AssetID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []AssetLogResponse `json:"body"`
		}{Body: mapAssetLogs(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "append-asset-log",
		Method:        http.MethodPost,
		Path:          "/assets/{asset_id}/logs",
		Summary:       "Append an operator log entry",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		AssetID string           `path:"asset_id"`
		Body    AppendLogRequest `json:"body"`
	}) (*struct {
		Body AssetLogResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		l, err := e.AppendLog(ctx, input.AssetID, input.Body.Body, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssetLogResponse `json:"body"`
		}{Body: assetLogResponse(l)}, nil
	})
}

func registerGoals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-goal",
		Method:        http.MethodPost,
		Path:          "/stores/{store_id}/goals",
		Summary:       "Plan a goal",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		StoreID string            `path:"store_id"`
		Body    CreateGoalRequest `json:"body"`
	}) (*struct {
		Body GoalResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		g, err := e.CreateGoal(ctx, engine.GoalCreateOptions{
			ID:       input.Body.ID,
			StoreID:  input.StoreID,
			MemberID: input.Body.MemberID,
			Title:    input.Body.Title,
			Deadline: input.Body.Deadline,
			Priority: domain.GoalPriority(input.Body.Priority),
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GoalResponse `json:"body"`
		}{Body: goalResponse(g)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-goals",
		Method:      http.MethodGet,
		Path:        "/stores/{store_id}/goals",
		Summary:     "List goals",
	}, func(ctx context.Context, input *struct {
		StoreID string `path:"store_id"`
		Member  string `query:"member"`
		Open    bool   `query:"open"`
		Limit   int    `query:"limit"`
	}) (*struct {
		Body []GoalResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListGoals(ctx, repo.GoalFilters{
			StoreID:  input.StoreID,
			MemberID: input.Member,
			OpenOnly: input.Open,
			Limit:    normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []GoalResponse `json:"body"`
		}{Body: mapGoals(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-goal",
		Method:      http.MethodGet,
		Path:        "/goals/{goal_id}",
		Summary:     "Get goal",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GoalID string `path:"goal_id"`
	}) (*struct {
		Body GoalResponse `json:"body"`
	}, error) {
		g, err := e.Repo.GetGoal(ctx, input.GoalID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GoalResponse `json:"body"`
		}{Body: goalResponse(g)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-goal",
		Method:      http.MethodPost,
		Path:        "/goals/{goal_id}/complete",
		Summary:     "Complete a goal",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		GoalID string              `path:"goal_id"`
		Body   CompleteGoalRequest `json:"body"`
	}) (*struct {
		Body GoalResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		g, err := e.CompleteGoal(ctx, engine.GoalCompleteOptions{
			ID:       input.GoalID,
			Note:     input.Body.Note,
			Evidence: input.Body.Evidence,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GoalResponse `json:"body"`
		}{Body: goalResponse(g)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-goal",
		Method:      http.MethodDelete,
		Path:        "/goals/{goal_id}",
		Summary:     "Delete goal",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GoalID string `path:"goal_id"`
	}) (*struct{}, error) {
		if err := e.Repo.DeleteGoal(ctx, input.GoalID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "evaluate-goals",
		Method:      http.MethodPost,
		Path:        "/stores/{store_id}/goals/evaluate",
		Summary:     "Run the periodic goal evaluation",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		StoreID string               `path:"store_id"`
		Body    EvaluateGoalsRequest `json:"body"`
	}) (*struct {
		Body engine.EvaluationReport `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		report, err := e.EvaluateGoals(ctx, engine.EvaluateOptions{
			StoreID: input.StoreID,
			Grain:   cycle.Grain(input.Body.Grain),
			Offset:  input.Body.Offset,
			ActorID: actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.EvaluationReport `json:"body"`
		}{Body: report}, nil
	})
}

func registerCredits(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "member-credit-history",
		Method:      http.MethodGet,
		Path:        "/members/{member_id}/credits",
		Summary:     "Member credit history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MemberID string `path:"member_id"`
		Limit    int    `query:"limit"`
	}) (*struct {
		Body []CreditRecordResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetMember(ctx, input.MemberID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListCreditRecords(ctx, input.MemberID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []CreditRecordResponse `json:"body"`
		}{Body: mapCreditRecords(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "adjust-member-credit",
		Method:      http.MethodPost,
		Path:        "/members/{member_id}/credits/adjust",
		Summary:     "Manually adjust a member's credit",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MemberID string              `path:"member_id"`
		Body     AdjustCreditRequest `json:"body"`
	}) (*struct {
		Body CreditRecordResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if input.Body.Reason == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "reason is required", nil)
		}
		m, err := e.Repo.GetMember(ctx, input.MemberID)
		if err != nil {
			return nil, handleError(err)
		}
		record, err := ledger.New(e.DB).Adjust(ctx, m.StoreID, m.ID, input.Body.Change, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreditRecordResponse `json:"body"`
		}{Body: creditRecordResponse(record)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/stores/{store_id}/events",
		Summary:     "Latest store events",
	}, func(ctx context.Context, input *struct {
		StoreID    string `path:"store_id"`
		Limit      int    `query:"limit"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		items, err := e.Repo.LatestEvents(ctx, normalizeLimit(input.Limit), input.StoreID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if b, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return b
	}
	if req, ok := ctx.Value(requestKey{}).(*http.Request); ok && req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err == nil {
			return b
		}
	}
	return nil
}

func normalizeLimit(in int) int {
	const def = 50
	const max = 200
	if in <= 0 {
		return def
	}
	if in > max {
		return max
	}
	return in
}

func parseCompositeCursor(cursor string) (string, string, error) {
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	return ts + "|" + id
}
