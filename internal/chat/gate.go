package chat

// ShouldGate reports whether this turn must ask for contact details instead
// of answering. Once a lead is linked the gate never fires again.
func ShouldGate(conv *Conversation, assistantCount int64, enabled bool) bool {
	if conv == nil {
		return false
	}
	return enabled && assistantCount >= 1 && conv.LeadID == nil
}
