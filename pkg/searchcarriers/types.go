package searchcarriers

// InsuranceRecord mirrors one row of the provider's insurance-history
// payload. Coverage amounts come back as strings in thousands of dollars;
// dates as "2006-01-02 15:04:05" strings, sometimes ISO.
type InsuranceRecord struct {
	ID                 string `json:"id"`
	NameCompany        string `json:"name_company"`
	MaxCovAmount       string `json:"max_cov_amount"`
	PolicyNo           string `json:"policy_no"`
	InsFormCode        string `json:"ins_form_code"`
	EffectiveDate      string `json:"effective_date"`
	ExpirationDate     string `json:"expiration_date"`
	CancellationDate   string `json:"cancellation_date"`
	CancellationReason string `json:"cancellation_reason"`
}

type historyPage struct {
	Data  []InsuranceRecord `json:"data"`
	Total int               `json:"total"`
}

// ComplianceViolation is one issue found when checking a carrier's current
// insurance standing.
type ComplianceViolation struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// ComplianceResult is the outcome of a client-side compliance check over a
// carrier's insurance history.
type ComplianceResult struct {
	CarrierUSDOT int64                 `json:"carrier_usdot"`
	Compliant    bool                  `json:"compliant"`
	Violations   []ComplianceViolation `json:"violations"`
}

// Violation codes.
const (
	ViolationNoInsurance       = "NO_INSURANCE"
	ViolationNoActiveInsurance = "NO_ACTIVE_INSURANCE"
	ViolationUnderinsured      = "UNDERINSURED"
)
