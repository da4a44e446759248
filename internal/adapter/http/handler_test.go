package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/neomorfeo/provisiq/internal/adapter/fsm"
	adapter "github.com/neomorfeo/provisiq/internal/adapter/http"
	"github.com/neomorfeo/provisiq/internal/adapter/sqlite"
	"github.com/neomorfeo/provisiq/internal/adapter/stub"
	"github.com/neomorfeo/provisiq/internal/app"
)

// noopNotifier is a no-op Notifier for tests; queue behavior is covered in
// the river package.
type noopNotifier struct{}

func (n *noopNotifier) Notify(_ context.Context, _, _ string, _ map[string]string) error {
	return nil
}

// newTestServer creates a full-stack httptest.Server with SQLite in-memory
// and the stub activity adapters.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	validator := fsm.New()
	svc := app.NewTenantService(store.Tenants(), store.Ledger(), validator)

	orch := app.NewOrchestrator(app.Deps{
		Tenants:   store.Tenants(),
		Ledger:    store.Ledger(),
		Runs:      store.Workflows(),
		Validator: validator,
		Notifier:  &noopNotifier{},
		Identity:  stub.NewIdentity(app.NewTokenCache(time.Minute, nil)),
		Schema:    stub.NewSchema(),
		Storage:   stub.NewStorage(),
		Infra:     stub.NewInfra(),
		DNS:       stub.NewDNS(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, app.RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})

	router := chi.NewMux()
	api := humachi.New(router, huma.DefaultConfig("provisiq", "0.1.0"))
	adapter.Register(api, svc, orch)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return srv
}

// doRequest performs an HTTP request with context (avoids noctx linter).
func doRequest(t *testing.T, method, url, body string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, reader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}

	return resp
}

// mustCreateTenant creates a tenant via the API and returns the response.
func mustCreateTenant(t *testing.T, srv *httptest.Server, name, key, tier string) adapter.TenantResponse {
	t.Helper()

	body := fmt.Sprintf(`{"name":%q,"key":%q,"tier":%q,"admin_email":"admin@%s.example","admin_name":"Ada Admin"}`,
		name, key, tier, key)
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tenants", body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("create tenant: status = %d, want %d (%s)", resp.StatusCode, http.StatusOK, raw)
	}

	var out struct {
		Tenant adapter.TenantResponse `json:"tenant"`
		RunID  string                 `json:"run_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode tenant: %v", err)
	}
	if out.RunID == "" {
		t.Fatal("create tenant: empty run_id")
	}

	return out.Tenant
}

// waitForState polls the status endpoint until the tenant reaches the given
// lifecycle state. Provisioning runs asynchronously, so API tests follow the
// workflow the same way a real caller would.
func waitForState(t *testing.T, srv *httptest.Server, id, state string) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/tenants/"+id+"/status", "")
		var status struct {
			State string `json:"state"`
		}
		err := json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()
		if err == nil && status.State == state {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("tenant %s never reached state %q", id, state)
}

// --- Create ---

func TestCreate(t *testing.T) {
	srv := newTestServer(t)

	tenant := mustCreateTenant(t, srv, "Acme Corp", "acme", "pooled")

	if tenant.Name != "Acme Corp" {
		t.Errorf("name = %q, want %q", tenant.Name, "Acme Corp")
	}
	if tenant.Key != "acme" {
		t.Errorf("key = %q, want %q", tenant.Key, "acme")
	}
	if tenant.Status != "provisioning" {
		t.Errorf("status = %q, want %q", tenant.Status, "provisioning")
	}

	waitForState(t, srv, tenant.ID, "active")
}

func TestCreate_InvalidKey(t *testing.T) {
	srv := newTestServer(t)

	body := `{"name":"Bad","key":"Not-Valid","admin_email":"a@b.example","admin_name":"A"}`
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tenants", body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestCreate_DuplicateKey(t *testing.T) {
	srv := newTestServer(t)

	tenant := mustCreateTenant(t, srv, "First", "dupkey", "pooled")
	waitForState(t, srv, tenant.ID, "active")

	body := `{"name":"Second","key":"dupkey","admin_email":"c@d.example","admin_name":"C"}`
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tenants", body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

// --- Get / List ---

func TestGet(t *testing.T) {
	srv := newTestServer(t)

	created := mustCreateTenant(t, srv, "Acme", "acme", "pooled")

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/tenants/"+created.ID, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got adapter.TenantResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("ID = %q, want %q", got.ID, created.ID)
	}
}

func TestGet_NotFound(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/tenants/nonexistent", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestList_FilterByStatus(t *testing.T) {
	srv := newTestServer(t)

	a := mustCreateTenant(t, srv, "Tenant A", "tenanta", "pooled")
	b := mustCreateTenant(t, srv, "Tenant B", "tenantb", "pooled")
	waitForState(t, srv, a.ID, "active")
	waitForState(t, srv, b.ID, "active")

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/tenants?status=active", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var tenants []adapter.TenantResponse
	if err := json.NewDecoder(resp.Body).Decode(&tenants); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tenants) != 2 {
		t.Errorf("got %d tenants, want 2", len(tenants))
	}
}

// --- Resources ---

func TestResources(t *testing.T) {
	srv := newTestServer(t)

	tenant := mustCreateTenant(t, srv, "Silo Co", "siloco", "silo")
	waitForState(t, srv, tenant.ID, "active")

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/tenants/"+tenant.ID+"/resources", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var resources []adapter.ResourceResponse
	if err := json.NewDecoder(resp.Body).Decode(&resources); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Silo tenants get realm, admin user, schema, bucket, stack and DNS.
	if len(resources) != 6 {
		t.Fatalf("got %d resources, want 6: %+v", len(resources), resources)
	}
	if resources[0].Type != "identity-realm" {
		t.Errorf("first resource type = %q, want %q", resources[0].Type, "identity-realm")
	}
}

// --- Lifecycle actions ---

func TestDeprovisionAndDelete(t *testing.T) {
	srv := newTestServer(t)

	tenant := mustCreateTenant(t, srv, "Leaving", "leaving", "pooled")
	waitForState(t, srv, tenant.ID, "active")

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tenants/"+tenant.ID+"/deprovision", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deprovision status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var wf adapter.WorkflowResponse
	if err := json.NewDecoder(resp.Body).Decode(&wf); err != nil {
		t.Fatalf("decode workflow: %v", err)
	}
	resp.Body.Close()
	if wf.Kind != "deprovision" {
		t.Errorf("workflow kind = %q, want %q", wf.Kind, "deprovision")
	}

	waitForState(t, srv, tenant.ID, "deprovisioned")

	// All resources are gone.
	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/tenants/"+tenant.ID+"/resources", "")
	var resources []adapter.ResourceResponse
	if err := json.NewDecoder(resp.Body).Decode(&resources); err != nil {
		t.Fatalf("decode resources: %v", err)
	}
	resp.Body.Close()
	if len(resources) != 0 {
		t.Errorf("got %d resources after deprovisioning, want 0", len(resources))
	}

	// Deprovisioned tenants can be deleted.
	resp = doRequest(t, http.MethodDelete, srv.URL+"/api/v1/tenants/"+tenant.ID, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/tenants/"+tenant.ID, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestDelete_RefusedWithResources(t *testing.T) {
	srv := newTestServer(t)

	tenant := mustCreateTenant(t, srv, "Sticky", "sticky", "pooled")
	waitForState(t, srv, tenant.ID, "active")

	resp := doRequest(t, http.MethodDelete, srv.URL+"/api/v1/tenants/"+tenant.ID, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

func TestSuspendAndReactivate(t *testing.T) {
	srv := newTestServer(t)

	tenant := mustCreateTenant(t, srv, "Toggle", "toggle", "pooled")
	waitForState(t, srv, tenant.ID, "active")

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tenants/"+tenant.ID+"/suspend", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("suspend status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var got adapter.TenantResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if got.Status != "inactive" {
		t.Errorf("status after suspend = %q, want %q", got.Status, "inactive")
	}

	resp = doRequest(t, http.MethodPost, srv.URL+"/api/v1/tenants/"+tenant.ID+"/reactivate", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reactivate status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if got.Status != "active" {
		t.Errorf("status after reactivate = %q, want %q", got.Status, "active")
	}
}

func TestSuspend_WrongState(t *testing.T) {
	srv := newTestServer(t)

	tenant := mustCreateTenant(t, srv, "Early", "early", "pooled")
	waitForState(t, srv, tenant.ID, "active")

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tenants/"+tenant.ID+"/suspend", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("suspend status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	// Suspending an already inactive tenant is an invalid transition.
	resp = doRequest(t, http.MethodPost, srv.URL+"/api/v1/tenants/"+tenant.ID+"/suspend", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestCancel_NoActiveWorkflow(t *testing.T) {
	srv := newTestServer(t)

	tenant := mustCreateTenant(t, srv, "Calm", "calm", "pooled")
	waitForState(t, srv, tenant.ID, "active")

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tenants/"+tenant.ID+"/cancel", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestStatus_ReportsLatestRun(t *testing.T) {
	srv := newTestServer(t)

	tenant := mustCreateTenant(t, srv, "Watch", "watch", "pooled")
	waitForState(t, srv, tenant.ID, "active")

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/tenants/"+tenant.ID+"/status", "")
	defer resp.Body.Close()

	var status struct {
		State     string `json:"state"`
		LastError string `json:"last_error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.State != "active" {
		t.Errorf("state = %q, want %q", status.State, "active")
	}
	if status.LastError != "" {
		t.Errorf("last_error = %q, want empty", status.LastError)
	}
}
