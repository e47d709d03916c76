package chat

// SanitizeToolTurns normalizes tool-use/tool-result pairing in a history so
// it can be replayed to a provider. Orphan tool results are dropped, tool
// uses without a matching result in the following user message are stripped,
// and surviving results are reordered to match tool-use order. The returned
// bool reports whether anything was rewritten.
//
// Histories produced by a completed generation round are already well formed;
// this guards against truncated or hand-edited session files.
func SanitizeToolTurns(messages []Message) ([]Message, bool) {
	if len(messages) == 0 {
		return []Message{}, false
	}

	out := make([]Message, 0, len(messages))
	changed := false

	for i := 0; i < len(messages); i++ {
		msg := messages[i]

		if msg.Role != RoleAssistant || !msg.HasToolUse() {
			// Tool results only reach here when no assistant tool turn
			// claimed them, so they are orphans.
			kept, dropped := dropToolResults(msg)
			if dropped {
				changed = true
			}
			if len(kept.Blocks) == 0 {
				changed = true
				continue
			}
			if kept.Role == RoleTool {
				kept.Role = RoleUser
				changed = true
			}
			out = append(out, kept)
			continue
		}

		// Collect candidate results from the immediately following message,
		// first occurrence per ID. Older session files stored results under
		// the user role, so both roles are accepted here.
		resultsByID := make(map[string]ToolResult)
		inputOrder := make([]string, 0, 4)
		haveResultMsg := false
		if i+1 < len(messages) && (messages[i+1].Role == RoleTool || messages[i+1].Role == RoleUser) {
			for _, b := range messages[i+1].Blocks {
				res, ok := b.(ToolResult)
				if !ok || res.ToolUseID == "" {
					continue
				}
				if _, dup := resultsByID[res.ToolUseID]; dup {
					changed = true
					continue
				}
				resultsByID[res.ToolUseID] = res
				inputOrder = append(inputOrder, res.ToolUseID)
			}
			haveResultMsg = len(resultsByID) > 0
			if haveResultMsg && messages[i+1].Role != RoleTool {
				changed = true
			}
		}

		assistant := Message{Role: RoleAssistant}
		orderedResults := make([]ToolResult, 0, len(resultsByID))
		for _, b := range msg.Blocks {
			use, ok := b.(ToolUse)
			if !ok {
				assistant.Blocks = append(assistant.Blocks, b)
				continue
			}
			res, found := resultsByID[use.ID]
			if !found {
				changed = true
				continue
			}
			assistant.Blocks = append(assistant.Blocks, use)
			orderedResults = append(orderedResults, res)
			delete(resultsByID, use.ID)
		}

		if len(assistant.Blocks) > 0 {
			out = append(out, assistant)
		} else {
			changed = true
		}
		if len(orderedResults) > 0 {
			out = append(out, ToolResults(orderedResults...))
			for k, res := range orderedResults {
				if inputOrder[k] != res.ToolUseID {
					changed = true
					break
				}
			}
		}
		// Results whose IDs matched no tool use vanish with the turn.
		if len(resultsByID) > 0 {
			changed = true
		}

		if haveResultMsg {
			// Carry forward any non-result content from the consumed message.
			// It re-enters the history as user content; a tool-role message
			// may only hold results.
			leftover, _ := dropToolResults(messages[i+1])
			if len(leftover.Blocks) > 0 {
				leftover.Role = RoleUser
				out = append(out, leftover)
			}
			i++
		}
	}

	return out, changed
}

// dropToolResults strips tool_result blocks from a message, reporting
// whether any were removed.
func dropToolResults(msg Message) (Message, bool) {
	kept := Message{Role: msg.Role}
	dropped := false
	for _, b := range msg.Blocks {
		if _, ok := b.(ToolResult); ok {
			dropped = true
			continue
		}
		kept.Blocks = append(kept.Blocks, b)
	}
	return kept, dropped
}
