package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fleetgate/backend/database"
	"github.com/fleetgate/backend/models"
)

func setupStores(t *testing.T) sqlmock.Sqlmock {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}

	SetStores(database.NewGeofenceStore(gdb), database.NewAlertStore(gdb))
	t.Cleanup(func() { SetStores(nil, nil) })
	return mock
}

func geofenceTestRouter() *gin.Engine {
	router := gin.New()
	api := router.Group("/api")
	api.GET("/geofences", GetGeofences)
	api.POST("/geofences", CreateGeofence)
	api.GET("/geofences/:id", GetGeofence)
	api.DELETE("/geofences/:id", DeleteGeofence)
	api.GET("/alerts", GetAlerts)
	return router
}

func TestValidatePolygon(t *testing.T) {
	tests := []struct {
		name    string
		polygon models.GeoPolygon
		wantErr bool
	}{
		{
			"valid triangle",
			models.GeoPolygon{Type: "Polygon", Coordinates: [][][]float64{{{0, 0}, {1, 0}, {1, 1}}}},
			false,
		},
		{
			"wrong type",
			models.GeoPolygon{Type: "MultiPolygon", Coordinates: [][][]float64{{{0, 0}, {1, 0}, {1, 1}}}},
			true,
		},
		{
			"too few vertices",
			models.GeoPolygon{Type: "Polygon", Coordinates: [][][]float64{{{0, 0}, {1, 0}}}},
			true,
		},
		{
			"no rings",
			models.GeoPolygon{Type: "Polygon"},
			true,
		},
		{
			"short vertex",
			models.GeoPolygon{Type: "Polygon", Coordinates: [][][]float64{{{0, 0}, {1}, {1, 1}}}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePolygon(tt.polygon)
			if (err != nil) != tt.wantErr {
				t.Errorf("validatePolygon() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateGeofenceEndpoint(t *testing.T) {
	mock := setupStores(t)
	router := geofenceTestRouter()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "geofences"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectCommit()

	body := gin.H{
		"name": "Depot",
		"polygon": gin.H{
			"type":        "Polygon",
			"coordinates": [][][]float64{{{139.69, 35.65}, {139.71, 35.65}, {139.71, 35.66}, {139.69, 35.65}}},
		},
	}
	w := doRequest(router, http.MethodPost, "/api/geofences", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var created models.Geofence
	if err := unmarshalBody(w, &created); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if created.ID != 3 || !created.AlertOnEnter || !created.IsActive {
		t.Errorf("created = %+v", created)
	}
}

func TestCreateGeofenceRejectsBadPolygon(t *testing.T) {
	setupStores(t)
	router := geofenceTestRouter()

	body := gin.H{
		"name": "Broken",
		"polygon": gin.H{
			"type":        "Polygon",
			"coordinates": [][][]float64{{{0, 0}, {1, 1}}},
		},
	}
	w := doRequest(router, http.MethodPost, "/api/geofences", body)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestGetGeofenceEndpointNotFound(t *testing.T) {
	mock := setupStores(t)
	router := geofenceTestRouter()

	mock.ExpectQuery(`SELECT \* FROM "geofences"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	w := doRequest(router, http.MethodGet, "/api/geofences/99", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}

	w = doRequest(router, http.MethodGet, "/api/geofences/not-a-number", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetAlertsEndpoint(t *testing.T) {
	mock := setupStores(t)
	router := geofenceTestRouter()

	rows := sqlmock.NewRows([]string{"id", "alert_type", "vehicle_id", "is_read"}).
		AddRow(1, "geofence_enter", "bus-1", false)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "alerts" WHERE vehicle_id = $1 ORDER BY created_at DESC LIMIT $2`)).
		WithArgs("bus-1", 50).
		WillReturnRows(rows)

	w := doRequest(router, http.MethodGet, "/api/alerts?vehicleId=bus-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Alerts []models.Alert `json:"alerts"`
		Count  int            `json:"count"`
	}
	if err := unmarshalBody(w, &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.Count != 1 || resp.Alerts[0].VehicleID != "bus-1" {
		t.Errorf("response = %+v", resp)
	}
}

func TestGeofencesUnavailableWithoutStore(t *testing.T) {
	SetStores(nil, nil)
	router := geofenceTestRouter()

	w := doRequest(router, http.MethodGet, "/api/geofences", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func unmarshalBody(w *httptest.ResponseRecorder, v interface{}) error {
	return json.Unmarshal(w.Body.Bytes(), v)
}
