package core

// Decision is the router's verdict after a node settles.
type Decision struct {
	// Next is the node to execute next. Empty when Terminal is set.
	Next Node
	// Terminal, when non-empty, ends the run with this status.
	Terminal Status
	// Interrupt suspends the run before executing Next so a human can
	// inspect the state and resume.
	Interrupt bool
}

// Route decides the next transition after node `last` has settled. It does
// not touch the iteration counter: the engine charges an iteration when a
// drafting pass begins, so a suspended revise edge that a human answers with
// a re-plan is never charged. Route only consults the counter for the
// completion bound.
func Route(s *ResearchState, last Node) Decision {
	switch last {
	case NodeSupervisor:
		if s.HumanInLoop && !s.PlanConfirmed {
			return Decision{Next: NodeResearcher, Interrupt: true}
		}
		return Decision{Next: NodeResearcher}

	case NodeResearcher:
		return Decision{Next: NodeWriter}

	case NodeWriter:
		return Decision{Next: NodeReviewer}

	case NodeReviewer:
		// Approval and the iteration bound both finish the run. At the
		// bound the latest draft is accepted as-is.
		if s.Approved || s.Iteration >= s.MaxIterations {
			return Decision{Terminal: StatusCompleted}
		}
		target := s.ReviseTarget
		if target != NodeSupervisor {
			target = NodeWriter
		}
		d := Decision{Next: target}
		if s.HumanInLoop && !s.ReviewConfirmed {
			d.Interrupt = true
		}
		return d
	}
	return Decision{Terminal: StatusFailed}
}
