package hierarchy

// Summary renders a Report as a flat map suitable for structured logging
// or a status endpoint.
func (r Report) Summary() map[string]any {
	return map[string]any{
		"run_id":            r.RunID,
		"phase1_processed":  r.Phase1Processed,
		"phase1_extracted":  r.Phase1Extracted,
		"phase2_resolved":   r.Phase2Resolved,
		"phase2_unresolved": r.Phase2Unresolved,
		"resolved_task_ids": r.ResolvedTaskIDs,
		"timeout_reached":   r.TimeoutReached,
	}
}
