package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/provisiq/internal/app"
	"github.com/neomorfeo/provisiq/internal/domain"
)

// TenantResponse is the API representation of a tenant.
type TenantResponse struct {
	ID               string `json:"id" doc:"Unique identifier"`
	Name             string `json:"name" doc:"Display name"`
	Key              string `json:"key" doc:"Short unique key resource names derive from"`
	Status           string `json:"status" doc:"Lifecycle state"`
	Tier             string `json:"tier" doc:"Infrastructure tier (pooled or silo)"`
	IdentityProvider string `json:"identity_provider" doc:"Identity backend"`
	AdminEmail       string `json:"admin_email" doc:"Administrative contact"`
	CreatedAt        string `json:"created_at" doc:"Creation timestamp (ISO 8601)"`
	UpdatedAt        string `json:"updated_at" doc:"Last update timestamp (ISO 8601)"`
}

func toTenantResponse(t domain.Tenant) TenantResponse {
	return TenantResponse{
		ID:               t.ID,
		Name:             t.Name,
		Key:              t.Key,
		Status:           string(t.Status),
		Tier:             string(t.Tier),
		IdentityProvider: string(t.IdentityProvider),
		AdminEmail:       t.AdminEmail,
		CreatedAt:        t.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:        t.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// ResourceResponse is the API representation of a ledger entry.
type ResourceResponse struct {
	Type           string            `json:"type" doc:"Resource type"`
	ExternalID     string            `json:"external_id" doc:"Identifier assigned by the external system"`
	Metadata       map[string]string `json:"metadata,omitempty" doc:"Opaque resource metadata"`
	NeedsAttention bool              `json:"needs_attention" doc:"Teardown failed; requires manual intervention"`
	CreatedAt      string            `json:"created_at" doc:"Creation timestamp (ISO 8601)"`
}

// WorkflowResponse reports a started workflow.
type WorkflowResponse struct {
	RunID    string `json:"run_id" doc:"Workflow run identifier"`
	TenantID string `json:"tenant_id" doc:"Tenant the workflow operates on"`
	Kind     string `json:"kind" doc:"provision or deprovision"`
}

// --- Create Tenant ---

type CreateTenantInput struct {
	Body struct {
		Name             string `json:"name" minLength:"1" maxLength:"255" doc:"Display name"`
		Key              string `json:"key" minLength:"2" maxLength:"32" pattern:"^[a-z][a-z0-9]+$" doc:"Short unique key (lowercase alphanumeric)"`
		Tier             string `json:"tier,omitempty" default:"pooled" enum:"pooled,silo" doc:"Infrastructure tier"`
		IdentityProvider string `json:"identity_provider,omitempty" default:"keycloak" enum:"keycloak,zitadel" doc:"Identity backend"`
		AdminEmail       string `json:"admin_email" format:"email" doc:"Administrative contact email"`
		AdminName        string `json:"admin_name" minLength:"1" maxLength:"255" doc:"Administrative contact name"`
	}
}

type CreateTenantOutput struct {
	Body struct {
		Tenant TenantResponse `json:"tenant"`
		RunID  string         `json:"run_id" doc:"Provisioning workflow run identifier"`
	}
}

// --- Get / List ---

type GetTenantInput struct {
	ID string `path:"id" doc:"Tenant ID"`
}

type GetTenantOutput struct {
	Body TenantResponse
}

type ListTenantsInput struct {
	Status string `query:"status" required:"false" doc:"Filter by status"`
	Limit  int    `query:"limit" required:"false" default:"50" doc:"Max results"`
	Offset int    `query:"offset" required:"false" default:"0" doc:"Pagination offset"`
}

type ListTenantsOutput struct {
	Body []TenantResponse
}

// --- Workflow status / resources ---

type GetStatusOutput struct {
	Body struct {
		State       string `json:"state" doc:"Tenant lifecycle state"`
		CurrentStep string `json:"current_step,omitempty" doc:"Step the latest workflow is on"`
		LastError   string `json:"last_error,omitempty" doc:"Most recent workflow error"`
	}
}

type ListResourcesOutput struct {
	Body []ResourceResponse
}

type WorkflowOutput struct {
	Body WorkflowResponse
}

type ActionOutput struct {
	Body TenantResponse
}

// Register adds all tenant API routes to the Huma API.
func Register(api huma.API, svc *app.TenantService, orch *app.Orchestrator) {
	huma.Register(api, huma.Operation{
		OperationID: "create-tenant",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants",
		Summary:     "Create a tenant and start provisioning",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *CreateTenantInput) (*CreateTenantOutput, error) {
		tenant, err := svc.Create(ctx,
			input.Body.Name, input.Body.Key,
			domain.Tier(input.Body.Tier), domain.IdentityProvider(input.Body.IdentityProvider),
			input.Body.AdminEmail, input.Body.AdminName,
		)
		if err != nil {
			return nil, toHumaError(err)
		}

		handle, err := orch.StartProvisioning(ctx, tenant.ID)
		if err != nil {
			return nil, toHumaError(err)
		}

		// Re-read: starting the workflow moved the tenant to provisioning.
		tenant, err = svc.GetByID(ctx, tenant.ID)
		if err != nil {
			return nil, toHumaError(err)
		}

		out := &CreateTenantOutput{}
		out.Body.Tenant = toTenantResponse(tenant)
		out.Body.RunID = handle.RunID
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-tenant",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{id}",
		Summary:     "Get a tenant by ID",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *GetTenantInput) (*GetTenantOutput, error) {
		tenant, err := svc.GetByID(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetTenantOutput{Body: toTenantResponse(tenant)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tenants",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants",
		Summary:     "List tenants",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *ListTenantsInput) (*ListTenantsOutput, error) {
		filter := domain.ListFilter{
			Limit:  input.Limit,
			Offset: input.Offset,
		}
		if input.Status != "" {
			s := domain.Status(input.Status)
			filter.Status = &s
		}

		tenants, err := svc.List(ctx, filter)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]TenantResponse, len(tenants))
		for i, t := range tenants {
			resp[i] = toTenantResponse(t)
		}
		return &ListTenantsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-tenant-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{id}/status",
		Summary:     "Get a tenant's workflow status",
		Tags:        []string{"Workflows"},
	}, func(ctx context.Context, input *GetTenantInput) (*GetStatusOutput, error) {
		status, err := orch.GetStatus(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &GetStatusOutput{}
		out.Body.State = string(status.State)
		out.Body.CurrentStep = status.CurrentStep
		out.Body.LastError = status.LastError
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tenant-resources",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{id}/resources",
		Summary:     "List a tenant's active external resources",
		Tags:        []string{"Workflows"},
	}, func(ctx context.Context, input *GetTenantInput) (*ListResourcesOutput, error) {
		resources, err := svc.Resources(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]ResourceResponse, len(resources))
		for i, r := range resources {
			resp[i] = ResourceResponse{
				Type:           string(r.Type),
				ExternalID:     r.ExternalID,
				Metadata:       r.Metadata,
				NeedsAttention: r.NeedsAttention,
				CreatedAt:      r.CreatedAt.Format("2006-01-02T15:04:05Z"),
			}
		}
		return &ListResourcesOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "provision-tenant",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{id}/provision",
		Summary:     "Start or resume provisioning",
		Tags:        []string{"Workflows"},
	}, func(ctx context.Context, input *GetTenantInput) (*WorkflowOutput, error) {
		handle, err := orch.StartProvisioning(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &WorkflowOutput{Body: WorkflowResponse{
			RunID:    handle.RunID,
			TenantID: handle.TenantID,
			Kind:     string(handle.Kind),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "deprovision-tenant",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{id}/deprovision",
		Summary:     "Tear down all tenant resources",
		Tags:        []string{"Workflows"},
	}, func(ctx context.Context, input *GetTenantInput) (*WorkflowOutput, error) {
		handle, err := orch.StartDeprovisioning(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &WorkflowOutput{Body: WorkflowResponse{
			RunID:    handle.RunID,
			TenantID: handle.TenantID,
			Kind:     string(handle.Kind),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-tenant-workflow",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{id}/cancel",
		Summary:     "Cancel the tenant's in-flight workflow",
		Tags:        []string{"Workflows"},
	}, func(ctx context.Context, input *GetTenantInput) (*struct{}, error) {
		if err := orch.Cancel(input.ID); err != nil {
			return nil, toHumaError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "suspend-tenant",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{id}/suspend",
		Summary:     "Administratively suspend a tenant",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *GetTenantInput) (*ActionOutput, error) {
		tenant, err := svc.Suspend(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ActionOutput{Body: toTenantResponse(tenant)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reactivate-tenant",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{id}/reactivate",
		Summary:     "Reactivate a suspended tenant",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *GetTenantInput) (*ActionOutput, error) {
		tenant, err := svc.Reactivate(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ActionOutput{Body: toTenantResponse(tenant)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-tenant",
		Method:        http.MethodDelete,
		Path:          "/api/v1/tenants/{id}",
		Summary:       "Delete a deprovisioned tenant record",
		Tags:          []string{"Tenants"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *GetTenantInput) (*struct{}, error) {
		if err := svc.Delete(ctx, input.ID); err != nil {
			return nil, toHumaError(err)
		}
		return nil, nil
	})
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	if errors.Is(err, domain.ErrTenantNotFound) {
		return huma.Error404NotFound("tenant not found")
	}
	if errors.Is(err, domain.ErrWorkflowNotFound) {
		return huma.Error404NotFound("no workflow for tenant")
	}
	if errors.Is(err, domain.ErrInvalidKey) {
		return huma.Error422UnprocessableEntity(err.Error())
	}
	if errors.Is(err, domain.ErrTenantHasResource) {
		return huma.Error409Conflict(err.Error())
	}

	var keyErr *domain.KeyConflictError
	if errors.As(err, &keyErr) {
		return huma.Error409Conflict(keyErr.Error())
	}

	var wfErr *domain.WorkflowConflictError
	if errors.As(err, &wfErr) {
		return huma.Error409Conflict(wfErr.Error())
	}

	var trErr *domain.TransitionError
	if errors.As(err, &trErr) {
		return huma.Error422UnprocessableEntity(trErr.Error())
	}

	return huma.Error500InternalServerError("internal server error")
}
