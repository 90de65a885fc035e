package services

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/fleetgate/backend/models"
)

func testEngine(policy PrivacyPolicy) *PrivacyEngine {
	e := NewPrivacyEngine(policy)
	e.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

func testRecord(vehicleID string) *models.TelemetryRecord {
	return &models.TelemetryRecord{
		VehicleID:      vehicleID,
		Timestamp:      time.Date(2026, 3, 1, 11, 59, 0, 0, time.UTC),
		OccupancyCount: 3,
		Location:       &models.GPSLocation{Latitude: 35.6812345, Longitude: 139.7671234},
		FrameHash:      "abc123",
		SessionID:      "sess-42",
		RouteID:        "route-tokyo-ginza",
		DriverID:       "drv-10482",
		DriverName:     "Alice Johnson",
		Email:          "driver@example.com",
		Phone:          "+81-90-1234-5678",
	}
}

func TestProcessTelemetryRejectsWithoutConsent(t *testing.T) {
	e := testEngine(DefaultPrivacyPolicy())

	// No consent registered: defaults to pending
	if got := e.ProcessTelemetry(testRecord("bus-1"), "bus-1"); got != nil {
		t.Fatalf("expected nil for pending consent, got %+v", got)
	}

	e.SetConsent("bus-2", models.ConsentWithdrawn)
	if got := e.ProcessTelemetry(testRecord("bus-2"), "bus-2"); got != nil {
		t.Fatalf("expected nil for withdrawn consent, got %+v", got)
	}

	// Rejections must be auditable
	entries := e.GetAuditLog("bus-1", "telemetry_rejected", 0)
	if len(entries) != 1 {
		t.Fatalf("expected 1 rejection audit entry for bus-1, got %d", len(entries))
	}
	if entries[0].DataRetained {
		t.Error("rejection audit entry must record data_retained=false")
	}
	if entries[0].ConsentStatus != string(models.ConsentPending) {
		t.Errorf("expected consent_status pending, got %s", entries[0].ConsentStatus)
	}
}

func TestProcessTelemetryGrantedPassthrough(t *testing.T) {
	policy := DefaultPrivacyPolicy()
	policy.AnonymizationLevel = models.AnonymizationNone
	e := testEngine(policy)
	e.SetConsent("bus-1", models.ConsentGranted)

	got := e.ProcessTelemetry(testRecord("bus-1"), "bus-1")
	if got == nil {
		t.Fatal("expected processed record, got nil")
	}
	if got.Email != "driver@example.com" || got.DriverName != "Alice Johnson" {
		t.Error("level none with granted consent must not touch PII")
	}
	if got.Location.Latitude != 35.6812345 {
		t.Error("level none must not coarsen GPS")
	}

	entries := e.GetAuditLog("bus-1", "telemetry_processed", 0)
	if len(entries) != 1 {
		t.Fatalf("expected 1 processed audit entry, got %d", len(entries))
	}
	if !entries[0].DataRetained {
		t.Error("processed entry must record data_retained=true")
	}
}

func TestProcessTelemetryDoesNotMutateInput(t *testing.T) {
	e := testEngine(DefaultPrivacyPolicy())
	e.SetConsent("bus-1", models.ConsentGranted)

	record := testRecord("bus-1")
	e.ProcessTelemetry(record, "bus-1")

	if record.Email != "driver@example.com" {
		t.Error("input record was mutated")
	}
	if record.Location.Latitude != 35.6812345 {
		t.Error("input record location was mutated")
	}
}

func TestAnonymizePartialRedactsPII(t *testing.T) {
	e := testEngine(DefaultPrivacyPolicy())
	e.SetConsent("bus-1", models.ConsentGranted)

	record := testRecord("bus-1")
	record.Notes = "call driver@example.com before pickup"
	got := e.ProcessTelemetry(record, "bus-1")
	if got == nil {
		t.Fatal("expected processed record, got nil")
	}

	if got.Level != models.AnonymizationPartial {
		t.Errorf("expected level partial, got %s", got.Level)
	}
	// Email and phone keep their first and last two characters
	if got.Email != "dr***om" {
		t.Errorf("email redaction = %q, want %q", got.Email, "dr***om")
	}
	if got.Phone != "+8***78" {
		t.Errorf("phone redaction = %q, want %q", got.Phone, "+8***78")
	}
	if got.DriverName != "[REDACTED]" {
		t.Errorf("driver_name redaction = %q, want [REDACTED]", got.DriverName)
	}
	// Free text is scanned for PII patterns
	if !strings.Contains(got.Notes, "[EMAIL_REDACTED]") || strings.Contains(got.Notes, "example.com") {
		t.Errorf("notes not pattern-redacted: %q", got.Notes)
	}
	// Partial keeps operational fields intact
	if got.FrameHash != "abc123" || got.Location.Latitude != 35.6812345 {
		t.Error("partial level must not touch frame hash or GPS precision")
	}
}

func TestRedactValueShortValues(t *testing.T) {
	if got := redactValue("ab12", "email"); got != "[REDACTED]" {
		t.Errorf("short value redaction = %q, want [REDACTED]", got)
	}
	if got := redactValue("x", "driver_name"); got != "[REDACTED]" {
		t.Errorf("short value redaction = %q, want [REDACTED]", got)
	}
}

func TestAnonymizeFull(t *testing.T) {
	policy := DefaultPrivacyPolicy()
	policy.AnonymizationLevel = models.AnonymizationFull
	e := testEngine(policy)
	e.SetConsent("bus-1", models.ConsentGranted)

	got := e.ProcessTelemetry(testRecord("bus-1"), "bus-1")
	if got == nil {
		t.Fatal("expected processed record, got nil")
	}
	if got.FrameHash != "" || got.SessionID != "" {
		t.Error("full level must remove frame hash and session id")
	}
	if got.Location.Latitude != 35.68 || got.Location.Longitude != 139.77 {
		t.Errorf("full level GPS = (%v, %v), want 2 decimal places", got.Location.Latitude, got.Location.Longitude)
	}
}

func TestAnonymizeAggregated(t *testing.T) {
	policy := DefaultPrivacyPolicy()
	policy.AnonymizationLevel = models.AnonymizationAggregated
	e := testEngine(policy)
	e.SetConsent("bus-1", models.ConsentGranted)

	got := e.ProcessTelemetry(testRecord("bus-1"), "bus-1")
	if got == nil {
		t.Fatal("expected processed record, got nil")
	}
	if got.VehicleID != "" || got.Email != "" || got.FrameHash != "" || got.Location != nil {
		t.Errorf("aggregated record leaked identifying fields: %+v", got)
	}
	if got.OccupancyCount != 3 || got.RouteID != "route-tokyo-ginza" {
		t.Error("aggregated record must keep occupancy and route")
	}
	if got.Region != "region_35.7_139.8" {
		t.Errorf("region = %q, want region_35.7_139.8", got.Region)
	}

	// Re-aggregating a record without a location keeps its region
	again := e.anonymize(got, models.ConsentGranted)
	if again.Region != got.Region {
		t.Errorf("re-aggregation changed region: %q -> %q", got.Region, again.Region)
	}
}

func TestConsentLifecycleAudited(t *testing.T) {
	e := testEngine(DefaultPrivacyPolicy())

	if got := e.GetConsent("bus-9"); got != models.ConsentPending {
		t.Errorf("unknown vehicle consent = %s, want pending", got)
	}

	e.SetConsent("bus-9", models.ConsentGranted)
	e.SetConsent("bus-9", models.ConsentWithdrawn)

	if got := e.GetConsent("bus-9"); got != models.ConsentWithdrawn {
		t.Errorf("consent = %s, want withdrawn", got)
	}

	entries := e.GetAuditLog("bus-9", "consent_update", 0)
	if len(entries) != 2 {
		t.Fatalf("expected 2 consent audit entries, got %d", len(entries))
	}
	if !strings.Contains(entries[0].Reason, "from unset to granted") {
		t.Errorf("first consent entry reason = %q", entries[0].Reason)
	}
	if !strings.Contains(entries[1].Reason, "from granted to withdrawn") {
		t.Errorf("second consent entry reason = %q", entries[1].Reason)
	}
}

func TestVerifyFrameHash(t *testing.T) {
	e := testEngine(DefaultPrivacyPolicy())

	frame := []byte("frame-bytes")
	sum := sha256.Sum256(frame)
	good := hex.EncodeToString(sum[:])

	if !e.VerifyFrameHash(frame, good, "bus-1") {
		t.Error("matching hash must verify")
	}
	if e.VerifyFrameHash(frame, strings.Repeat("0", 64), "bus-1") {
		t.Error("mismatched hash must fail")
	}

	entries := e.GetAuditLog("bus-1", "hash_verification_failed", 0)
	if len(entries) != 1 {
		t.Fatalf("expected 1 hash failure audit entry, got %d", len(entries))
	}
	if entries[0].DataRetained {
		t.Error("hash failure entry must record data_retained=false")
	}
}

func TestEnforceRetentionPolicy(t *testing.T) {
	e := testEngine(DefaultPrivacyPolicy())
	e.SetConsent("bus-old", models.ConsentGranted)
	e.SetConsent("bus-new", models.ConsentGranted)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	e.now = func() time.Time { return base.AddDate(0, 0, -40) }
	e.ProcessTelemetry(testRecord("bus-old"), "bus-old")

	e.now = func() time.Time { return base }
	e.ProcessTelemetry(testRecord("bus-new"), "bus-new")

	expired := e.EnforceRetentionPolicy()
	if len(expired) != 1 || expired[0] != "bus-old" {
		t.Fatalf("expired = %v, want [bus-old]", expired)
	}

	entries := e.GetAuditLog("bus-old", "retention_expiry", 0)
	if len(entries) != 1 {
		t.Errorf("expected retention_expiry audit entry, got %d", len(entries))
	}
}

func TestAuditLogBounded(t *testing.T) {
	e := testEngine(DefaultPrivacyPolicy())

	for i := 0; i < auditLogMaxSize+50; i++ {
		e.SetConsent("bus-1", models.ConsentGranted)
	}

	stats := e.GetPrivacyStats()
	if stats.AuditLogSize != auditLogMaxSize {
		t.Errorf("audit log size = %d, want %d", stats.AuditLogSize, auditLogMaxSize)
	}
}

func TestGetAuditLogFiltersAndLimit(t *testing.T) {
	e := testEngine(DefaultPrivacyPolicy())
	e.SetConsent("bus-1", models.ConsentGranted)
	e.SetConsent("bus-2", models.ConsentGranted)
	e.ProcessTelemetry(testRecord("bus-1"), "bus-1")
	e.ProcessTelemetry(testRecord("bus-1"), "bus-1")

	if got := e.GetAuditLog("bus-1", "", 0); len(got) != 3 {
		t.Errorf("bus-1 entries = %d, want 3", len(got))
	}
	if got := e.GetAuditLog("bus-1", "telemetry_processed", 0); len(got) != 2 {
		t.Errorf("bus-1 processed entries = %d, want 2", len(got))
	}
	if got := e.GetAuditLog("", "", 2); len(got) != 2 {
		t.Errorf("limited entries = %d, want 2", len(got))
	}
	// Limit keeps the most recent entries
	limited := e.GetAuditLog("bus-1", "", 1)
	if len(limited) != 1 || limited[0].Operation != "telemetry_processed" {
		t.Errorf("limited tail = %+v", limited)
	}
}

func TestGetPrivacyStats(t *testing.T) {
	e := testEngine(DefaultPrivacyPolicy())
	e.SetConsent("bus-1", models.ConsentGranted)
	e.SetConsent("bus-2", models.ConsentGranted)
	e.SetConsent("bus-3", models.ConsentWithdrawn)

	stats := e.GetPrivacyStats()
	if stats.TotalVehiclesTracked != 3 {
		t.Errorf("tracked = %d, want 3", stats.TotalVehiclesTracked)
	}
	if stats.ConsentBreakdown["granted"] != 2 || stats.ConsentBreakdown["withdrawn"] != 1 {
		t.Errorf("breakdown = %v", stats.ConsentBreakdown)
	}
	if stats.RetentionPolicyDays != 30 || stats.AnonymizationLevel != "partial" {
		t.Errorf("policy snapshot = %+v", stats)
	}
}

func TestGenerateDataSubjectReport(t *testing.T) {
	e := testEngine(DefaultPrivacyPolicy())
	e.SetConsent("bus-1", models.ConsentGranted)
	e.ProcessTelemetry(testRecord("bus-1"), "bus-1")
	e.ProcessTelemetry(testRecord("bus-2"), "bus-2")

	report := e.GenerateDataSubjectReport("bus-1")
	if report.VehicleID != "bus-1" {
		t.Errorf("vehicle id = %s", report.VehicleID)
	}
	if report.ConsentStatus != models.ConsentGranted {
		t.Errorf("consent = %s, want granted", report.ConsentStatus)
	}
	if report.LastDataUpdate == nil {
		t.Fatal("expected last data update to be set")
	}
	if len(report.ProcessingActivities) != 2 {
		t.Errorf("activities = %d, want 2", len(report.ProcessingActivities))
	}
	for _, entry := range report.ProcessingActivities {
		if entry.VehicleID != "bus-1" {
			t.Errorf("foreign vehicle entry leaked into report: %+v", entry)
		}
	}

	// Never-seen vehicle still gets a well-formed report
	empty := e.GenerateDataSubjectReport("ghost")
	if empty.ConsentStatus != models.ConsentPending || empty.LastDataUpdate != nil {
		t.Errorf("ghost report = %+v", empty)
	}
	if len(empty.ProcessingActivities) != 0 {
		t.Errorf("ghost activities = %d, want 0", len(empty.ProcessingActivities))
	}
}
