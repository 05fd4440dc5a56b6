package scorecard

import "github.com/samber/lo"

type Stats struct {
	Total       int        `json:"total"`
	Success     int        `json:"success"`
	ManualCheck int        `json:"manual_check"`
	Error       int        `json:"error"`
	SemiAnnual  *SemiStats `json:"semi_annual,omitempty"`
}

type SemiStats struct {
	Success     int `json:"success"`
	ManualCheck int `json:"manual_check"`
	NoData      int `json:"no_data"`
	Error       int `json:"error"`
}

// ComputeStats counts row statuses of a processed table.
func ComputeStats(t *Table) Stats {
	statuses := t.ColumnValues(ColStatus)
	stats := Stats{
		Total:       len(t.Rows),
		Success:     lo.Count(statuses, StatusSuccess),
		ManualCheck: lo.Count(statuses, StatusManualCheck),
		Error:       lo.CountBy(statuses, IsErrorStatus),
	}
	if semi := t.ColumnValues(SemiPrefix + ColStatus); semi != nil {
		stats.SemiAnnual = &SemiStats{
			Success:     lo.Count(semi, StatusSuccess),
			ManualCheck: lo.Count(semi, StatusManualCheck),
			NoData:      lo.Count(semi, StatusNoSemiData),
			Error:       lo.CountBy(semi, IsErrorStatus),
		}
	}
	return stats
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Total += other.Total
	s.Success += other.Success
	s.ManualCheck += other.ManualCheck
	s.Error += other.Error
	if other.SemiAnnual != nil {
		if s.SemiAnnual == nil {
			s.SemiAnnual = &SemiStats{}
		}
		s.SemiAnnual.Success += other.SemiAnnual.Success
		s.SemiAnnual.ManualCheck += other.SemiAnnual.ManualCheck
		s.SemiAnnual.NoData += other.SemiAnnual.NoData
		s.SemiAnnual.Error += other.SemiAnnual.Error
	}
}
