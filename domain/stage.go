package domain

import "slices"

type Stage string

const (
	StageSourced   Stage = "sourced"
	StageScreening Stage = "screening"
	StageQualified Stage = "qualified"
	StageSubmitted Stage = "submitted"
	StageInterview Stage = "interview"
	StageOffer     Stage = "offer"
	StagePlaced    Stage = "placed"
	StageRejected  Stage = "rejected"
	StageWithdrawn Stage = "withdrawn"
)

// Stages lists every funnel stage in funnel order.
var Stages = []Stage{
	StageSourced,
	StageScreening,
	StageQualified,
	StageSubmitted,
	StageInterview,
	StageOffer,
	StagePlaced,
	StageRejected,
	StageWithdrawn,
}

func (s Stage) Valid() bool {
	return slices.Contains(Stages, s)
}

// ActivityAction is the action recorded when an entry moves into s.
func (s Stage) ActivityAction() Action {
	switch s {
	case StageRejected:
		return ActionRejected
	case StageWithdrawn:
		return ActionWithdrawn
	default:
		return ActionStageChange
	}
}

// FunnelSuccessors is the allowed-successors table used in strict mode.
// Any open stage may drop out to rejected or withdrawn; closed stages may be reopened
// back into screening.
var FunnelSuccessors = map[Stage][]Stage{
	StageSourced:   {StageScreening, StageQualified, StageRejected, StageWithdrawn},
	StageScreening: {StageQualified, StageRejected, StageWithdrawn},
	StageQualified: {StageSubmitted, StageRejected, StageWithdrawn},
	StageSubmitted: {StageInterview, StageRejected, StageWithdrawn},
	StageInterview: {StageInterview, StageOffer, StageRejected, StageWithdrawn},
	StageOffer:     {StagePlaced, StageRejected, StageWithdrawn},
	StagePlaced:    {StageWithdrawn},
	StageRejected:  {StageScreening},
	StageWithdrawn: {StageScreening},
}

// CanTransition reports whether from -> to is allowed. With strict unset every
// pair of valid stages is allowed.
func CanTransition(from, to Stage, strict bool) bool {
	if !to.Valid() {
		return false
	}
	if !strict {
		return true
	}
	return slices.Contains(FunnelSuccessors[from], to)
}
