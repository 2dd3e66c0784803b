package handler

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vibrowatch/control-plane/internal/model"
)

func newFactoryTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db := testDB(t)
	h := NewFactoryHandler(db)

	r := newTestRouter()
	r.Use(withOperator("op-1", "ADMIN"))
	factories := r.Group("/api/v1/factories")
	{
		factories.GET("", h.List)
		factories.GET("/:id", h.Get)
		factories.POST("", h.Create)
		factories.PUT("/:id", h.Update)
		factories.DELETE("/:id", h.Delete)
	}
	return r, db
}

func seedOrg(t *testing.T, db *gorm.DB) model.Organization {
	t.Helper()
	org := model.Organization{BaseModel: newBaseModel(), Name: "Acme", Slug: "acme"}
	if err := db.Create(&org).Error; err != nil {
		t.Fatalf("seed organization: %v", err)
	}
	return org
}

func TestFactoryCreateRequiresExistingOrganization(t *testing.T) {
	r, _ := newFactoryTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/factories", CreateFactoryRequest{
		OrganizationID: "does-not-exist",
		Name:           "Plant 1",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestFactoryCreateDefaultsTimeZoneToUTC(t *testing.T) {
	r, db := newFactoryTestRouter(t)
	org := seedOrg(t, db)

	w := doJSON(r, http.MethodPost, "/api/v1/factories", CreateFactoryRequest{
		OrganizationID: org.ID,
		Name:           "Plant 1",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var created model.FactoryResponse
	decodeBody(t, w, &created)
	if created.TimeZone != "UTC" {
		t.Fatalf("expected default timezone UTC, got %s", created.TimeZone)
	}
	if created.OrganizationName != "Acme" {
		t.Fatalf("expected organization name Acme, got %s", created.OrganizationName)
	}
}

func TestFactoryListFiltersByOrganization(t *testing.T) {
	r, db := newFactoryTestRouter(t)
	orgA := seedOrg(t, db)
	orgB := model.Organization{BaseModel: newBaseModel(), Name: "Globex", Slug: "globex"}
	if err := db.Create(&orgB).Error; err != nil {
		t.Fatalf("seed second organization: %v", err)
	}

	doJSON(r, http.MethodPost, "/api/v1/factories", CreateFactoryRequest{OrganizationID: orgA.ID, Name: "A1"})
	doJSON(r, http.MethodPost, "/api/v1/factories", CreateFactoryRequest{OrganizationID: orgB.ID, Name: "B1"})

	w := doJSON(r, http.MethodGet, "/api/v1/factories?organization_id="+orgA.ID, nil)
	var body struct {
		Data []model.FactoryResponse `json:"data"`
	}
	decodeBody(t, w, &body)
	if len(body.Data) != 1 {
		t.Fatalf("expected 1 factory for org A, got %d", len(body.Data))
	}
	if body.Data[0].Name != "A1" {
		t.Fatalf("expected factory A1, got %s", body.Data[0].Name)
	}
}

func TestFactoryDeleteBlockedWhenGatewaysExist(t *testing.T) {
	r, db := newFactoryTestRouter(t)
	org := seedOrg(t, db)

	w := doJSON(r, http.MethodPost, "/api/v1/factories", CreateFactoryRequest{OrganizationID: org.ID, Name: "Plant 1"})
	var factory model.FactoryResponse
	decodeBody(t, w, &factory)

	gw := model.Gateway{
		BaseModel:           newBaseModel(),
		FactoryID:           factory.ID,
		Name:                "Line 1",
		URL:                 "wss://gw.example.com/ws",
		Email:               "svc@example.com",
		EncryptedCredential: "irrelevant-for-this-test",
		Enabled:             true,
		CreatedByID:         "op-1",
	}
	if err := db.Create(&gw).Error; err != nil {
		t.Fatalf("seed gateway: %v", err)
	}

	w = doJSON(r, http.MethodDelete, "/api/v1/factories/"+factory.ID, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when gateways exist, got %d: %s", w.Code, w.Body.String())
	}
}
