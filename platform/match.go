package platform

import "strconv"

// A cloud run paired with its on-prem counterpart.  Either side may be absent.
type Pair struct {
	Aac     *JobSummary `json:"aac"`
	Onprem  *JobSummary `json:"onprem"`
	Matched bool        `json:"matched"`
}

// MatchJobs pairs cloud and on-prem runs by createdAt proximity: for each cloud run, greedily
// take the closest unused on-prem run within the window.  Unmatched rows on either side are
// retained as half-pairs, never dropped.
func MatchJobs(aacJobs, onpremJobs []JobSummary, windowMinutes int) []Pair {
	usedOnprem := make(map[int]bool)
	pairs := make([]Pair, 0, len(aacJobs)+len(onpremJobs))
	windowSeconds := float64(windowMinutes) * 60

	for i := range aacJobs {
		aac := &aacJobs[i]
		bestMatch := -1
		var bestDelta float64

		if aacTime, ok := parseISO(aac.CreatedAt); ok {
			for j := range onpremJobs {
				if usedOnprem[j] {
					continue
				}
				opTime, ok := parseISO(onpremJobs[j].CreatedAt)
				if !ok {
					continue
				}
				delta := aacTime.Sub(opTime).Abs().Seconds()
				if delta <= windowSeconds && (bestMatch < 0 || delta < bestDelta) {
					bestMatch = j
					bestDelta = delta
				}
			}
		}

		if bestMatch >= 0 {
			usedOnprem[bestMatch] = true
			pairs = append(pairs, Pair{Aac: aac, Onprem: &onpremJobs[bestMatch], Matched: true})
		} else {
			pairs = append(pairs, Pair{Aac: aac})
		}
	}

	for j := range onpremJobs {
		if !usedOnprem[j] {
			pairs = append(pairs, Pair{Onprem: &onpremJobs[j]})
		}
	}
	return pairs
}

// Key identifying a pair across refreshes; empty if neither side has a run id.
func PairKey(p *Pair) string {
	if p.Aac != nil && p.Aac.JobRunID != 0 {
		return "aac_" + strconv.FormatInt(p.Aac.JobRunID, 10)
	}
	if p.Onprem != nil && p.Onprem.JobRunID != 0 {
		return "op_" + strconv.FormatInt(p.Onprem.JobRunID, 10)
	}
	return ""
}
