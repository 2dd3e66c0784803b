package handler

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vibrowatch/control-plane/internal/model"
)

func newOrgTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db := testDB(t)
	h := NewOrganizationHandler(db)

	r := newTestRouter()
	r.Use(withOperator("op-1", "ADMIN"))
	orgs := r.Group("/api/v1/organizations")
	{
		orgs.GET("", h.List)
		orgs.GET("/:id", h.Get)
		orgs.POST("", h.Create)
		orgs.PUT("/:id", h.Update)
		orgs.DELETE("/:id", h.Delete)
	}
	return r, db
}

func TestOrganizationCreateAndGet(t *testing.T) {
	r, _ := newOrgTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/organizations", CreateOrganizationRequest{
		Name: "Acme Vibrations",
		Slug: "acme-vibrations",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var created model.OrganizationResponse
	decodeBody(t, w, &created)
	if created.Slug != "acme-vibrations" {
		t.Fatalf("expected slug acme-vibrations, got %s", created.Slug)
	}

	w = doJSON(r, http.MethodGet, "/api/v1/organizations/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}
}

func TestOrganizationCreateDuplicateSlugConflicts(t *testing.T) {
	r, _ := newOrgTestRouter(t)

	req := CreateOrganizationRequest{Name: "Acme", Slug: "acme"}
	if w := doJSON(r, http.MethodPost, "/api/v1/organizations", req); w.Code != http.StatusCreated {
		t.Fatalf("first create: expected 201, got %d", w.Code)
	}

	w := doJSON(r, http.MethodPost, "/api/v1/organizations", CreateOrganizationRequest{Name: "Acme Two", Slug: "acme"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate slug, got %d: %s", w.Code, w.Body.String())
	}
}

func TestOrganizationGetMissingReturns404(t *testing.T) {
	r, _ := newOrgTestRouter(t)

	w := doJSON(r, http.MethodGet, "/api/v1/organizations/does-not-exist", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestOrganizationDeleteBlockedWhenFactoriesExist(t *testing.T) {
	r, db := newOrgTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/organizations", CreateOrganizationRequest{Name: "Acme", Slug: "acme"})
	var org model.OrganizationResponse
	decodeBody(t, w, &org)

	factory := model.Factory{BaseModel: newBaseModel(), OrganizationID: org.ID, Name: "Plant 1", TimeZone: "UTC"}
	if err := db.Create(&factory).Error; err != nil {
		t.Fatalf("seed factory: %v", err)
	}

	w = doJSON(r, http.MethodDelete, "/api/v1/organizations/"+org.ID, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when factories exist, got %d: %s", w.Code, w.Body.String())
	}

	if err := db.Delete(&factory).Error; err != nil {
		t.Fatalf("remove factory: %v", err)
	}
	w = doJSON(r, http.MethodDelete, "/api/v1/organizations/"+org.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 once factories are gone, got %d: %s", w.Code, w.Body.String())
	}
}

func TestOrganizationListPagination(t *testing.T) {
	r, _ := newOrgTestRouter(t)

	for i := 0; i < 3; i++ {
		name := "Org"
		slug := name
		switch i {
		case 0:
			slug = "org-a"
		case 1:
			slug = "org-b"
		case 2:
			slug = "org-c"
		}
		doJSON(r, http.MethodPost, "/api/v1/organizations", CreateOrganizationRequest{Name: name, Slug: slug})
	}

	w := doJSON(r, http.MethodGet, "/api/v1/organizations?limit=2&offset=0", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body struct {
		Data       []model.OrganizationResponse `json:"data"`
		Pagination struct {
			Limit  int   `json:"limit"`
			Offset int   `json:"offset"`
			Total  int64 `json:"total"`
		} `json:"pagination"`
	}
	decodeBody(t, w, &body)
	if len(body.Data) != 2 {
		t.Fatalf("expected 2 items, got %d", len(body.Data))
	}
	if body.Pagination.Total != 3 {
		t.Fatalf("expected total 3, got %d", body.Pagination.Total)
	}
}
