package stream

// MergeContent returns the deduplicated union of existing and incoming
// content blocks. Existing blocks are never reordered or dropped; genuinely
// new blocks are appended in incoming order. The function is pure, so the
// runtime's at-least-once event delivery cannot duplicate visible content:
// merging the same batch twice is a no-op.
func MergeContent(existing, incoming []ContentBlock) []ContentBlock {
	merged := make([]ContentBlock, len(existing), len(existing)+len(incoming))
	copy(merged, existing)

	for _, block := range incoming {
		if containsBlock(merged, block) {
			continue
		}
		merged = append(merged, block)
	}

	return merged
}

// containsBlock reports whether list already holds a duplicate of block
func containsBlock(list []ContentBlock, block ContentBlock) bool {
	for _, existing := range list {
		if isDuplicateBlock(existing, block) {
			return true
		}
	}
	return false
}

// isDuplicateBlock implements the type-specific duplicate rules: Text
// blocks match by text, ToolUse by id, ToolResult by toolUseId.
// AskUserQuestion blocks (and anything unrecognized) are never duplicates.
func isDuplicateBlock(existing, incoming ContentBlock) bool {
	switch in := incoming.(type) {
	case TextBlock:
		ex, ok := existing.(TextBlock)
		return ok && ex.Text == in.Text

	case ToolUseBlock:
		ex, ok := existing.(ToolUseBlock)
		return ok && ex.ID == in.ID

	case ToolResultBlock:
		ex, ok := existing.(ToolResultBlock)
		return ok && ex.ToolUseID == in.ToolUseID

	default:
		return false
	}
}
