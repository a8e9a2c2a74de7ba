package matcher

import "github.com/questlogapp/questlog-server/internal/domain"

// Policy holds the decision thresholds. These are operational tuning values
// and must come from configuration, never from inline constants.
type Policy struct {
	// AcceptThreshold is the minimum score of the top candidate.
	AcceptThreshold float64
	// Margin is the minimum lead the top candidate needs over the runner-up.
	Margin float64
	// Floor is the minimal score below which candidates are discarded
	// entirely; if nothing clears it the attempt fails.
	Floor float64
}

// Outcome is the verdict of a decision.
type Outcome int

// Decision outcomes.
const (
	OutcomeAccept Outcome = iota
	OutcomeAmbiguous
	OutcomeFail
)

// Decision is the result of applying the policy to ranked candidates.
type Decision struct {
	Outcome Outcome
	// Winner is set for OutcomeAccept.
	Winner domain.MatchCandidate
	// Shortlist holds the contending candidates for OutcomeAmbiguous so they
	// can be reviewed rather than silently dropped.
	Shortlist []domain.MatchCandidate
}

// maxShortlist bounds how many ambiguous candidates are retained per entry.
const maxShortlist = 5

// Decide applies the accept/ambiguous/fail policy to candidates ranked by
// descending score.
//
// Accept requires the top candidate to clear AcceptThreshold AND lead the
// runner-up by at least Margin. Candidates below Floor never resolve; if no
// candidate clears the floor the attempt fails outright.
func Decide(ranked []domain.MatchCandidate, policy Policy) Decision {
	viable := ranked[:0:0]
	for _, cand := range ranked {
		if cand.Score >= policy.Floor {
			viable = append(viable, cand)
		}
	}

	if len(viable) == 0 {
		return Decision{Outcome: OutcomeFail}
	}

	top := viable[0]
	if top.Score >= policy.AcceptThreshold {
		if len(viable) == 1 || top.Score-viable[1].Score >= policy.Margin {
			return Decision{Outcome: OutcomeAccept, Winner: top}
		}
	}

	shortlist := viable
	if len(shortlist) > maxShortlist {
		shortlist = shortlist[:maxShortlist]
	}
	return Decision{Outcome: OutcomeAmbiguous, Shortlist: shortlist}
}
