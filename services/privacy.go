// Package services provides the in-memory core of the fleet gateway:
// the telemetry hub, geofence monitor, privacy engine and their
// supporting types.
package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fleetgate/backend/models"
)

const auditLogMaxSize = 10000

// PrivacyPolicy configures the privacy engine.
type PrivacyPolicy struct {
	RetentionDays                 int                       `json:"retention_days"`
	AnonymizationLevel            models.AnonymizationLevel `json:"anonymization_level"`
	RequireConsentForStorage      bool                      `json:"require_consent_for_storage"`
	RequireConsentForAnalytics    bool                      `json:"require_consent_for_analytics"`
	AllowAggregatedWithoutConsent bool                      `json:"allow_aggregated_without_consent"`
	PIIFields                     map[string]bool           `json:"pii_fields"`
}

// DefaultPrivacyPolicy returns the default policy: 30 day retention,
// partial anonymization, consent required for storage.
func DefaultPrivacyPolicy() PrivacyPolicy {
	return PrivacyPolicy{
		RetentionDays:                 30,
		AnonymizationLevel:            models.AnonymizationPartial,
		RequireConsentForStorage:      true,
		RequireConsentForAnalytics:    false,
		AllowAggregatedWithoutConsent: true,
		PIIFields: map[string]bool{
			"driver_id":     true,
			"driver_name":   true,
			"phone":         true,
			"email":         true,
			"license_plate": true,
			"vin":           true,
		},
	}
}

type piiPattern struct {
	name string
	re   *regexp.Regexp
}

// Patterns scanned against every string field during anonymization.
var piiPatterns = []piiPattern{
	{"email", regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)},
	{"phone", regexp.MustCompile(`\+?[\d\s\-()]{10,}`)},
	{"license_plate", regexp.MustCompile(`[A-Z0-9]{2,3}[-\s]?[A-Z0-9]{2,4}[-\s]?[A-Z0-9]{2,4}`)},
	{"vin", regexp.MustCompile(`[A-HJ-NPR-Z0-9]{17}`)},
	{"ip_address", regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)},
}

// PrivacyStats is a snapshot of privacy engine state for monitoring.
type PrivacyStats struct {
	TotalVehiclesTracked int            `json:"total_vehicles_tracked"`
	ConsentBreakdown     map[string]int `json:"consent_breakdown"`
	AuditLogSize         int            `json:"audit_log_size"`
	RetentionPolicyDays  int            `json:"retention_policy_days"`
	AnonymizationLevel   string         `json:"anonymization_level"`
}

// PrivacyEngine gates and transforms telemetry according to consent
// and anonymization policy, and keeps an audit trail of every
// privacy-relevant decision.
type PrivacyEngine struct {
	policy PrivacyPolicy

	mu        sync.Mutex
	consent   map[string]models.ConsentStatus
	retention map[string]time.Time
	audit     []models.PrivacyAuditEntry

	now func() time.Time
}

// NewPrivacyEngine creates a privacy engine with the given policy.
func NewPrivacyEngine(policy PrivacyPolicy) *PrivacyEngine {
	if policy.PIIFields == nil {
		policy.PIIFields = DefaultPrivacyPolicy().PIIFields
	}
	return &PrivacyEngine{
		policy:    policy,
		consent:   make(map[string]models.ConsentStatus),
		retention: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Policy returns the engine's policy configuration.
func (e *PrivacyEngine) Policy() PrivacyPolicy {
	return e.policy
}

// SetConsent updates the consent status for a vehicle. The change is
// always recorded in the audit log.
func (e *PrivacyEngine) SetConsent(vehicleID string, status models.ConsentStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()

	old, ok := e.consent[vehicleID]
	oldStr := "unset"
	if ok {
		oldStr = string(old)
	}
	e.consent[vehicleID] = status

	e.logAuditLocked(
		"consent_update",
		vehicleID,
		string(status),
		"none",
		true,
		fmt.Sprintf("Consent changed from %s to %s", oldStr, status),
	)
}

// GetConsent returns the consent status for a vehicle, defaulting to
// pending if the vehicle was never registered.
func (e *PrivacyEngine) GetConsent(vehicleID string) models.ConsentStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	if status, ok := e.consent[vehicleID]; ok {
		return status
	}
	return models.ConsentPending
}

// ProcessTelemetry applies the privacy policy to a telemetry record.
// vehicleID overrides the record's own id when non-empty. Returns nil
// when the record must be discarded (consent not granted while the
// policy requires it for storage); the rejection is a defined policy
// outcome, not an error.
func (e *PrivacyEngine) ProcessTelemetry(record *models.TelemetryRecord, vehicleID string) *models.TelemetryRecord {
	vid := vehicleID
	if vid == "" {
		vid = record.VehicleID
	}
	if vid == "" {
		vid = "unknown"
	}

	consent := e.GetConsent(vid)

	if e.policy.RequireConsentForStorage && consent != models.ConsentGranted {
		e.mu.Lock()
		e.logAuditLocked(
			"telemetry_rejected",
			vid,
			string(consent),
			"none",
			false,
			"Consent not granted for storage",
		)
		e.mu.Unlock()
		return nil
	}

	processed := e.anonymize(record, consent)

	e.mu.Lock()
	e.retention[vid] = e.now()
	e.logAuditLocked(
		"telemetry_processed",
		vid,
		string(consent),
		string(e.policy.AnonymizationLevel),
		true,
		"Data processed and stored",
	)
	e.mu.Unlock()

	return processed
}

// anonymize transforms a copy of the record according to the policy's
// anonymization level. The input record is never mutated.
func (e *PrivacyEngine) anonymize(record *models.TelemetryRecord, consent models.ConsentStatus) *models.TelemetryRecord {
	result := *record
	if record.Location != nil {
		loc := *record.Location
		result.Location = &loc
	}
	level := e.policy.AnonymizationLevel
	result.Level = level

	// Raw passthrough requires both granted consent and level none;
	// without consent the PII floor below still applies.
	if consent == models.ConsentGranted && level == models.AnonymizationNone {
		return &result
	}

	e.applyPIIFloor(&result)

	switch level {
	case models.AnonymizationFull:
		result.FrameHash = ""
		result.SessionID = ""
		if result.Location != nil {
			result.Location.Latitude = roundTo(result.Location.Latitude, 2)
			result.Location.Longitude = roundTo(result.Location.Longitude, 2)
		}

	case models.AnonymizationAggregated:
		region := result.Region
		if result.Location != nil {
			region = deriveRegion(*result.Location)
		}
		result = models.TelemetryRecord{
			Level:          level,
			Timestamp:      result.Timestamp,
			OccupancyCount: result.OccupancyCount,
			RouteID:        result.RouteID,
			Region:         region,
		}
	}

	return &result
}

// applyPIIFloor sanitizes every string field of the record exactly
// once: fields named in the policy's PII set are redacted by value,
// every other string field is scanned for PII patterns.
func (e *PrivacyEngine) applyPIIFloor(record *models.TelemetryRecord) {
	for name, ref := range stringFieldRefs(record) {
		if *ref == "" {
			continue
		}
		if e.policy.PIIFields[name] {
			*ref = redactValue(*ref, name)
			continue
		}
		*ref = redactPatterns(*ref)
	}
}

// stringFieldRefs maps policy field names to the record fields they
// govern.
func stringFieldRefs(r *models.TelemetryRecord) map[string]*string {
	return map[string]*string{
		"vehicle_id":    &r.VehicleID,
		"frame_hash":    &r.FrameHash,
		"session_id":    &r.SessionID,
		"route_id":      &r.RouteID,
		"region":        &r.Region,
		"driver_id":     &r.DriverID,
		"driver_name":   &r.DriverName,
		"email":         &r.Email,
		"phone":         &r.Phone,
		"license_plate": &r.LicensePlate,
		"vin":           &r.VIN,
		"notes":         &r.Notes,
	}
}

// redactValue redacts a single PII value. Short values become a fixed
// marker; email and phone keep their first and last two characters.
func redactValue(value, fieldName string) string {
	if len(value) <= 4 {
		return "[REDACTED]"
	}
	if fieldName == "email" || fieldName == "phone" {
		return value[:2] + "***" + value[len(value)-2:]
	}
	return "[REDACTED]"
}

// redactPatterns replaces PII pattern matches with a
// [<KIND>_REDACTED] marker. Matches are located against the original
// text so one pattern never re-matches inside another's marker; on
// overlap the earlier pattern wins.
func redactPatterns(text string) string {
	type span struct {
		start, end int
		name       string
	}

	var spans []span
	for _, p := range piiPatterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			spans = append(spans, span{loc[0], loc[1], p.name})
		}
	}
	if len(spans) == 0 {
		return text
	}

	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var b strings.Builder
	last := 0
	for _, s := range spans {
		if s.start < last {
			continue
		}
		b.WriteString(text[last:s.start])
		b.WriteString("[" + strings.ToUpper(s.name) + "_REDACTED]")
		last = s.end
	}
	b.WriteString(text[last:])
	return b.String()
}

// deriveRegion builds a coarse region string by rounding coordinates
// to 1 decimal place (~11km precision).
func deriveRegion(loc models.GPSLocation) string {
	return fmt.Sprintf("region_%.1f_%.1f", roundTo(loc.Latitude, 1), roundTo(loc.Longitude, 1))
}

func roundTo(v float64, places int) float64 {
	f := math.Pow(10, float64(places))
	return math.Round(v*f) / f
}

// VerifyFrameHash recomputes the SHA-256 hash of frame data and
// compares it with the expected value. A mismatch is recorded in the
// audit log with both hash prefixes.
func (e *PrivacyEngine) VerifyFrameHash(frameData []byte, expectedHash, vehicleID string) bool {
	sum := sha256.Sum256(frameData)
	computed := hex.EncodeToString(sum[:])
	if computed == expectedHash {
		return true
	}

	e.mu.Lock()
	e.logAuditLocked(
		"hash_verification_failed",
		vehicleID,
		"n/a",
		"none",
		false,
		fmt.Sprintf("Hash mismatch: expected %s..., got %s...", prefix16(expectedHash), prefix16(computed)),
	)
	e.mu.Unlock()
	return false
}

func prefix16(s string) string {
	if len(s) > 16 {
		return s[:16]
	}
	return s
}

// EnforceRetentionPolicy identifies vehicles whose last data update
// predates the retention window. The purge itself belongs to the
// persistence layer; this only reports candidates.
func (e *PrivacyEngine) EnforceRetentionPolicy() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-time.Duration(e.policy.RetentionDays) * 24 * time.Hour)
	var expired []string
	for vehicleID, lastUpdate := range e.retention {
		if lastUpdate.Before(cutoff) {
			expired = append(expired, vehicleID)
			e.logAuditLocked(
				"retention_expiry",
				vehicleID,
				"n/a",
				"none",
				false,
				fmt.Sprintf("Data exceeded %d day retention", e.policy.RetentionDays),
			)
		}
	}
	return expired
}

// GetAuditLog returns up to limit audit entries, most recent last.
// Empty vehicleID or operation disables that filter.
func (e *PrivacyEngine) GetAuditLog(vehicleID, operation string, limit int) []models.PrivacyAuditEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	var entries []models.PrivacyAuditEntry
	for _, entry := range e.audit {
		if vehicleID != "" && entry.VehicleID != vehicleID {
			continue
		}
		if operation != "" && entry.Operation != operation {
			continue
		}
		entries = append(entries, entry)
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries
}

// GetPrivacyStats returns a snapshot of engine state.
func (e *PrivacyEngine) GetPrivacyStats() PrivacyStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	breakdown := map[string]int{
		string(models.ConsentGranted):   0,
		string(models.ConsentPending):   0,
		string(models.ConsentWithdrawn): 0,
		string(models.ConsentExpired):   0,
	}
	for _, status := range e.consent {
		breakdown[string(status)]++
	}

	return PrivacyStats{
		TotalVehiclesTracked: len(e.consent),
		ConsentBreakdown:     breakdown,
		AuditLogSize:         len(e.audit),
		RetentionPolicyDays:  e.policy.RetentionDays,
		AnonymizationLevel:   string(e.policy.AnonymizationLevel),
	}
}

// GenerateDataSubjectReport implements the GDPR right of access: all
// privacy-relevant processing performed for one vehicle.
func (e *PrivacyEngine) GenerateDataSubjectReport(vehicleID string) models.DataSubjectReport {
	activities := e.GetAuditLog(vehicleID, "", 1000)

	e.mu.Lock()
	consent, ok := e.consent[vehicleID]
	if !ok {
		consent = models.ConsentPending
	}
	var lastUpdate *time.Time
	if t, ok := e.retention[vehicleID]; ok {
		lastUpdate = &t
	}
	now := e.now()
	e.mu.Unlock()

	return models.DataSubjectReport{
		VehicleID:            vehicleID,
		ConsentStatus:        consent,
		LastDataUpdate:       lastUpdate,
		ProcessingActivities: activities,
		ReportGeneratedAt:    now,
	}
}

// logAuditLocked appends an audit entry and trims the log to its
// bound. Caller must hold e.mu so the append and trim stay atomic.
func (e *PrivacyEngine) logAuditLocked(operation, vehicleID, consentStatus, anonymization string, retained bool, reason string) {
	e.audit = append(e.audit, models.PrivacyAuditEntry{
		Timestamp:            e.now(),
		Operation:            operation,
		VehicleID:            vehicleID,
		ConsentStatus:        consentStatus,
		AnonymizationApplied: anonymization,
		DataRetained:         retained,
		Reason:               reason,
	})
	if len(e.audit) > auditLogMaxSize {
		e.audit = e.audit[len(e.audit)-auditLogMaxSize:]
	}
}
