package model

import "math"

// PaymentTotals is the singleton revenue counter row.
type PaymentTotals struct {
	TotalCard    int64 `json:"total_card" db:"total_card"`
	CountCard    int64 `json:"count_card" db:"count_card"`
	TotalCredits int64 `json:"total_credits" db:"total_credits"`
	CountCredits int64 `json:"count_credits" db:"count_credits"`
}

// SaturatingAdd adds b to a without wrapping past MaxInt64.
func SaturatingAdd(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// RegionStats is one row of the operator inventory report.
type RegionStats struct {
	Region   string `json:"region"`
	Free     int    `json:"free"`
	Assigned int    `json:"assigned"`
	Reserved int    `json:"reserved"`
	Expired  int    `json:"expired"`
}
