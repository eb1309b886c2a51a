package hierarchy

import (
	"github.com/taskindex/taskindex/internal/core"
	"github.com/taskindex/taskindex/internal/skeleton"
	"github.com/taskindex/taskindex/pkg/logger"
)

// candidate is one surviving parent option for a child, carrying the
// length of the matched prefix for the longest-match tie-break.
type candidate struct {
	taskID       core.TaskId
	prefixLength int
}

// resolveOne finds the unique winning parent for child, or reports no
// resolution. Self-matches and matches that would introduce a cycle are
// discarded before the tie-break rule runs.
func (e *Engine) resolveOne(child *skeleton.Skeleton, byID map[core.TaskId]*skeleton.Skeleton, log logger.Logger) (core.TaskId, bool) {
	if child.OpeningText == "" {
		return "", false
	}
	emitters := e.index.ExactLookup(child.OpeningText, e.prefixLength)
	if len(emitters) == 0 {
		return "", false
	}

	var candidates []candidate
	for _, emitter := range emitters {
		if emitter == child.TaskID {
			continue
		}
		parentSk, ok := byID[emitter]
		if !ok {
			continue
		}
		if introducesCycle(emitter, child.TaskID, byID) {
			log.Warn("cycle rejected", "child", child.TaskID.String(), "candidate", emitter.String())
			continue
		}
		candidates = append(candidates, candidate{
			taskID:       emitter,
			prefixLength: longestMatchedPrefix(parentSk.ChildTaskInstructionPrefixes, child.OpeningText),
		})
	}
	if len(candidates) == 0 {
		return "", false
	}
	if len(candidates) == 1 {
		return candidates[0].taskID, true
	}

	winner, ok := breakTie(candidates, byID, child)
	if !ok {
		log.Info("reconstruction ambiguous, leaving unresolved", "child", child.TaskID.String())
		return "", false
	}
	log.Info("reconstruction resolved", "child", child.TaskID.String(), "parent", winner.String())
	return winner, true
}

// introducesCycle walks the proposed parent chain starting at candidate,
// rejecting the match if child is reachable -- i.e. candidate is already
// a descendant of child.
func introducesCycle(candidateID, childID core.TaskId, byID map[core.TaskId]*skeleton.Skeleton) bool {
	visited := make(map[core.TaskId]struct{})
	cur := candidateID
	for {
		if cur == childID {
			return true
		}
		if _, seen := visited[cur]; seen {
			return false
		}
		visited[cur] = struct{}{}
		parentSk, ok := byID[cur]
		if !ok || parentSk.ParentTaskID.IsZero() {
			return false
		}
		cur = parentSk.ParentTaskID
	}
}

// longestMatchedPrefix returns the length of the longest entry in
// prefixes that is an exact prefix of openingText.
func longestMatchedPrefix(prefixes []string, openingText string) int {
	best := 0
	for _, p := range prefixes {
		if len(p) > len(openingText) {
			continue
		}
		if openingText[:len(p)] == p && len(p) > best {
			best = len(p)
		}
	}
	return best
}

// breakTie implements the disambiguation order: (a) longest matched
// prefix wins; (b) among ties, prefer the candidate whose last_activity
// precedes the child's created_at and is the most recent such candidate;
// (c) if still tied, the child is left unresolved.
func breakTie(candidates []candidate, byID map[core.TaskId]*skeleton.Skeleton, child *skeleton.Skeleton) (core.TaskId, bool) {
	maxLen := 0
	for _, c := range candidates {
		if c.prefixLength > maxLen {
			maxLen = c.prefixLength
		}
	}
	var longest []candidate
	for _, c := range candidates {
		if c.prefixLength == maxLen {
			longest = append(longest, c)
		}
	}
	if len(longest) == 1 {
		return longest[0].taskID, true
	}

	var best core.TaskId
	found := false
	for _, c := range longest {
		parentSk := byID[c.taskID]
		if !parentSk.Timestamps.LastActivity.Before(child.Timestamps.CreatedAt) {
			continue
		}
		if !found || parentSk.Timestamps.LastActivity.After(byID[best].Timestamps.LastActivity) {
			best = c.taskID
			found = true
		}
	}
	if !found {
		return "", false
	}
	// Reject if a second candidate shares the exact same last_activity
	// instant -- that is a genuine tie, not a winner.
	for _, c := range longest {
		if c.taskID == best {
			continue
		}
		parentSk := byID[c.taskID]
		if parentSk.Timestamps.LastActivity.Equal(byID[best].Timestamps.LastActivity) &&
			!parentSk.Timestamps.LastActivity.Before(child.Timestamps.CreatedAt) {
			return "", false
		}
	}
	return best, true
}
