package domain

import "fmt"

// federalMinimums holds the required liability coverage per cargo type,
// per 49 CFR § 387.9.
var federalMinimums = map[CargoType]float64{
	CargoGeneralFreight:    750_000,
	CargoHouseholdGoods:    750_000,
	CargoHazmat:            5_000_000,
	CargoPassengers15Plus:  5_000_000,
	CargoPassengersUnder15: 1_500_000,
	CargoOil:               1_000_000,
}

// DefaultFederalMinimum applies to unknown cargo types.
const DefaultFederalMinimum = 750_000.0

// FederalMinimum returns the required coverage floor for a cargo type.
func FederalMinimum(cargo CargoType) float64 {
	if min, ok := federalMinimums[cargo]; ok {
		return min
	}
	return DefaultFederalMinimum
}

// CheckFederalCompliance reports whether a policy's coverage meets the
// federal minimum for the given cargo type, with a human-readable reason
// on failure.
func CheckFederalCompliance(p InsurancePolicy, cargo CargoType) (bool, string) {
	required := FederalMinimum(cargo)
	if p.CoverageAmount < required {
		return false, fmt.Sprintf("coverage $%.0f below required $%.0f for %s",
			p.CoverageAmount, required, cargo)
	}
	return true, "meets federal requirements"
}
