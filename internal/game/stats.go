package game

import "time"

// Stats summarises a run.
type Stats struct {
	Total    int
	Found    int
	NotFound int
	Elapsed  time.Duration

	searchMatchSum  int
	completenessSum int
}

// AddFound counts a scraped record.
func (s *Stats) AddFound(r *Record) {
	s.Found++
	s.searchMatchSum += r.SearchMatch
	s.completenessSum += r.Completeness()
}

// AddNotFound counts a file with no result.
func (s *Stats) AddNotFound() {
	s.NotFound++
}

// AvgSearchMatch is the mean search match score of found records.
func (s *Stats) AvgSearchMatch() int {
	if s.Found == 0 {
		return 0
	}
	return s.searchMatchSum / s.Found
}

// AvgCompleteness is the mean completeness of found records.
func (s *Stats) AvgCompleteness() int {
	if s.Found == 0 {
		return 0
	}
	return s.completenessSum / s.Found
}
