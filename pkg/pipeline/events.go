package pipeline

// Event names routed through the step engine.
const (
	// EventNewEmail carries a *mail.Message freshly loaded from the raw
	// store.
	EventNewEmail = "NewEmail"
	// EventRequestSummary carries a []*mail.Message chain prefix ready
	// for summarization.
	EventRequestSummary = "RequestSummary"
	// EventMessageSummarized carries a *mail.Message whose summary was
	// just produced.
	EventMessageSummarized = "MessageSummarized"
)

// Step names registered on the engine.
const (
	stepNewEmail      = "orchestrator_new_email"
	stepNewSummary    = "orchestrator_new_summary"
	stepSummarize     = "summarize_message"
	stepSaveProcessed = "save_processed"
)
