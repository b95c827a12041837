// Package domain defines the core entities, enums, and validation for the
// HaulGuard fraud-detection engine. It acts as the validation gate at the
// boundaries of the graph store and the enrichment pipeline.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for day-precision dates.
const DateLayout = "2006-01-02"

// Date is a day-precision date. It marshals to/from "YYYY-MM-DD" and is the
// zero value when unknown.
type Date struct {
	t time.Time
}

// NewDate builds a Date from year, month, day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a time.Time to day precision.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// Today returns the current date in UTC.
func Today() Date {
	return DateOf(time.Now().UTC())
}

// ParseDate parses a "YYYY-MM-DD" string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

// MustDate parses a "YYYY-MM-DD" string, panicking on failure. Test helper.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) IsZero() bool       { return d.t.IsZero() }
func (d Date) Time() time.Time    { return d.t }
func (d Date) String() string     { return d.t.Format(DateLayout) }
func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool  { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool  { return d.t.Equal(o.t) }

// DaysUntil returns the whole days from d to o (negative if o precedes d).
func (d Date) DaysUntil(o Date) int {
	return int(o.t.Sub(d.t).Hours() / 24)
}

// AddDays returns the date n days after d.
func (d Date) AddDays(n int) Date {
	return DateOf(d.t.AddDate(0, 0, n))
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == nil || *s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(*s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// FilingStatus is the lifecycle state of an insurance policy filing.
type FilingStatus string

const (
	StatusActive    FilingStatus = "ACTIVE"
	StatusExpired   FilingStatus = "EXPIRED"
	StatusCancelled FilingStatus = "CANCELLED"
	StatusLapsed    FilingStatus = "LAPSED"
	StatusPending   FilingStatus = "PENDING"
)

// ValidFilingStatuses is the set of accepted filing statuses.
var ValidFilingStatuses = map[FilingStatus]bool{
	StatusActive:    true,
	StatusExpired:   true,
	StatusCancelled: true,
	StatusLapsed:    true,
	StatusPending:   true,
}

// EventType classifies an insurance state transition.
type EventType string

const (
	EventNewPolicy        EventType = "NEW_POLICY"
	EventRenewal          EventType = "RENEWAL"
	EventProviderChange   EventType = "PROVIDER_CHANGE"
	EventCancellation     EventType = "CANCELLATION"
	EventLapse            EventType = "LAPSE"
	EventCoverageIncrease EventType = "COVERAGE_INCREASE"
	EventCoverageDecrease EventType = "COVERAGE_DECREASE"
)

// ValidEventTypes is the set of accepted event types.
var ValidEventTypes = map[EventType]bool{
	EventNewPolicy:        true,
	EventRenewal:          true,
	EventProviderChange:   true,
	EventCancellation:     true,
	EventLapse:            true,
	EventCoverageIncrease: true,
	EventCoverageDecrease: true,
}

// CargoType classifies the freight a carrier hauls, for federal minimums.
type CargoType string

const (
	CargoGeneralFreight    CargoType = "GENERAL_FREIGHT"
	CargoHouseholdGoods    CargoType = "HOUSEHOLD_GOODS"
	CargoHazmat            CargoType = "HAZMAT"
	CargoPassengers15Plus  CargoType = "PASSENGERS_15_PLUS"
	CargoPassengersUnder15 CargoType = "PASSENGERS_UNDER_15"
	CargoOil               CargoType = "OIL"
)

// Carrier is a motor carrier keyed by USDOT number. The insurance provider
// and amount here are a display cache; the authoritative insurance state
// lives in the temporal policy graph.
type Carrier struct {
	USDOT             int64     `json:"usdot"`
	Name              string    `json:"carrier_name"`
	PrimaryOfficer    string    `json:"primary_officer,omitempty"`
	JBCarrier         bool      `json:"jb_carrier"`
	InsuranceProvider string    `json:"insurance_provider,omitempty"`
	InsuranceAmount   float64   `json:"insurance_amount,omitempty"`
	Trucks            int       `json:"trucks"`
	Inspections       int       `json:"inspections"`
	Violations        int       `json:"violations"`
	OOSViolations     int       `json:"oos_violations"`
	Crashes           int       `json:"crashes"`
	DriverOOSRate     float64   `json:"driver_oos_rate"`
	VehicleOOSRate    float64   `json:"vehicle_oos_rate"`
	MCS150Date        Date      `json:"mcs150_date,omitempty"`
	CreatedDate       Date      `json:"created_date,omitempty"`
	LastUpdated       time.Time `json:"last_updated,omitempty"`
	DataSource        string    `json:"data_source,omitempty"`
}

// CarrierPatch is a partial update for a Carrier. Nil fields are untouched.
// The set of updatable fields is fixed here rather than assembled from
// caller-supplied property names.
type CarrierPatch struct {
	Name              *string  `json:"carrier_name,omitempty"`
	PrimaryOfficer    *string  `json:"primary_officer,omitempty"`
	InsuranceProvider *string  `json:"insurance_provider,omitempty"`
	InsuranceAmount   *float64 `json:"insurance_amount,omitempty"`
	Trucks            *int     `json:"trucks,omitempty"`
	Inspections       *int     `json:"inspections,omitempty"`
	Violations        *int     `json:"violations,omitempty"`
	OOSViolations     *int     `json:"oos_violations,omitempty"`
	Crashes           *int     `json:"crashes,omitempty"`
	DriverOOSRate     *float64 `json:"driver_oos_rate,omitempty"`
	VehicleOOSRate    *float64 `json:"vehicle_oos_rate,omitempty"`
	MCS150Date        *Date    `json:"mcs150_date,omitempty"`
}

// InsurancePolicy is one issued policy. Records are immutable once created;
// only the derived coverage-period edge properties change afterwards.
type InsurancePolicy struct {
	PolicyID           string       `json:"policy_id"`
	CarrierUSDOT       int64        `json:"carrier_usdot"`
	ProviderName       string       `json:"provider_name"`
	ProviderID         string       `json:"provider_id,omitempty"`
	PolicyType         string       `json:"policy_type"`
	PolicyNumber       string       `json:"policy_number,omitempty"`
	CoverageAmount     float64      `json:"coverage_amount"`
	CargoCoverage      *float64     `json:"cargo_coverage,omitempty"`
	EffectiveDate      Date         `json:"effective_date"`
	ExpirationDate     *Date        `json:"expiration_date,omitempty"`
	CancellationDate   *Date        `json:"cancellation_date,omitempty"`
	CancellationReason string       `json:"cancellation_reason,omitempty"`
	FilingStatus       FilingStatus `json:"filing_status"`
	IsCompliant        bool         `json:"is_compliant"`
	MeetsFederalMin    bool         `json:"meets_federal_minimum"`
	RequiredMinimum    float64      `json:"required_minimum,omitempty"`
	DataSource         string       `json:"data_source,omitempty"`
	SourceRecordID     string       `json:"source_record_id,omitempty"`
	CreatedAt          time.Time    `json:"created_at,omitempty"`
	UpdatedAt          time.Time    `json:"updated_at,omitempty"`
}

// InsuranceEvent is a discrete state transition in a carrier's insurance
// history. Events are derived from the time-sorted policy sequence at
// enrichment time and are immutable afterwards.
type InsuranceEvent struct {
	EventID             string    `json:"event_id"`
	CarrierUSDOT        int64     `json:"carrier_usdot"`
	EventType           EventType `json:"event_type"`
	EventDate           Date      `json:"event_date"`
	PreviousProvider    string    `json:"previous_provider,omitempty"`
	NewProvider         string    `json:"new_provider,omitempty"`
	PreviousCoverage    *float64  `json:"previous_coverage,omitempty"`
	NewCoverage         *float64  `json:"new_coverage,omitempty"`
	CoverageChange      *float64  `json:"coverage_change,omitempty"`
	DaysWithoutCoverage *int      `json:"days_without_coverage,omitempty"`
	PreviousPolicyID    string    `json:"previous_policy_id,omitempty"`
	NewPolicyID         string    `json:"new_policy_id,omitempty"`
	ComplianceViolation bool      `json:"compliance_violation"`
	ViolationReason     string    `json:"violation_reason,omitempty"`
	IsSuspicious        bool      `json:"is_suspicious"`
	FraudIndicators     []string  `json:"fraud_indicators,omitempty"`
	Reason              string    `json:"reason,omitempty"`
	Notes               string    `json:"notes,omitempty"`
	DataSource          string    `json:"data_source,omitempty"`
	CreatedAt           time.Time `json:"created_at,omitempty"`
}

// InsuranceProvider is a named insurer, unique by name, get-or-create.
type InsuranceProvider struct {
	ProviderID           string    `json:"provider_id"`
	Name                 string    `json:"name"`
	ContactPhone         string    `json:"contact_phone,omitempty"`
	ContactEmail         string    `json:"contact_email,omitempty"`
	Website              string    `json:"website,omitempty"`
	TotalCarriersInsured int64     `json:"total_carriers_insured,omitempty"`
	DataSource           string    `json:"data_source,omitempty"`
	CreatedDate          Date      `json:"created_date,omitempty"`
	LastUpdated          time.Time `json:"last_updated,omitempty"`
}

// Person is a managing officer linked to carriers via MANAGED_BY.
type Person struct {
	PersonID  string `json:"person_id"`
	FullName  string `json:"full_name"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// ProviderIDFor derives a deterministic provider id from a provider name.
func ProviderIDFor(name string) string {
	squashed := strings.ToUpper(strings.NewReplacer(" ", "", ",", "", ".", "").Replace(name))
	if len(squashed) > 10 {
		squashed = squashed[:10]
	}
	return "PROV-" + squashed
}
