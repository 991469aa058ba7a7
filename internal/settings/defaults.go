package settings

type ValueType string

const (
	TypeString  ValueType = "string"
	TypeNumber  ValueType = "number"
	TypeBoolean ValueType = "boolean"
	TypeJSON    ValueType = "json"
)

func (t ValueType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeJSON:
		return true
	}
	return false
}

type Default struct {
	Key         string
	Value       any
	Type        ValueType
	Description string
}

const (
	KeyOpenAIAPIKey        = "openai_api_key"
	KeyOpenAIModel         = "openai_model"
	KeyTemperature         = "temperature"
	KeyMaxTokens           = "max_tokens"
	KeyOpenAIPromptID      = "openai_prompt_id"
	KeyOpenAIPromptVersion = "openai_prompt_version"
	KeyEnableRAG           = "enable_rag"
	KeyRAGChunkLimit       = "rag_chunk_limit"
	KeyEnableCitations     = "enable_citations"
	KeySystemPrompt        = "system_prompt"
	KeyEnableLeadGate      = "enable_lead_gate"
	KeyLeadGateMessage     = "lead_gate_message"
	KeyChatTitle           = "chat_title"
	KeyChatSubtitle        = "chat_subtitle"
	KeyWelcomeMessage      = "welcome_message"
	KeyScheduleButtonText  = "schedule_button_text"
)

const DefaultSystemPrompt = `You are a retirement planning assistant for Fiat Wealth Management. Your goal is to provide clear, concise, educational information.

RESPONSE STYLE:
- Keep answers SHORT and direct (2-3 sentences for simple concepts)
- Answer the specific question asked without extra fluff
- End with a simple follow-up question offering to go deeper (e.g., "Want me to explain X in more detail?" or "Would you like to discuss Y?")
- NO lengthy frameworks, NO structured sections, NO checklists unless specifically requested
- Write conversationally, like you're chatting with someone

GUARDRAILS:
- Provide educational information only, not personalized advice
- Never recommend specific buy/sell/hold actions or exact dollar amounts
- If they ask "what should I do," explain general factors to consider and suggest they discuss specifics with an advisor
- Keep it brief - users can always ask for more detail

TONE:
- Friendly and conversational, like a knowledgeable friend
- Plain language, no jargon
- Helpful without being overwhelming`

const DefaultLeadGateMessage = "Before we keep going, where should we send your summary and how can we reach you?"

var Defaults = []Default{
	{KeyOpenAIAPIKey, "", TypeString, "OpenAI API key for ChatGPT integration"},
	{KeyOpenAIModel, "gpt-4-turbo-preview", TypeString, "OpenAI model to use (gpt-4-turbo-preview, gpt-3.5-turbo, etc.)"},
	{KeyTemperature, 0.7, TypeNumber, "Response creativity (0.0-2.0). Lower = more focused, Higher = more creative"},
	{KeyMaxTokens, 1000.0, TypeNumber, "Maximum response length in tokens"},
	{KeyOpenAIPromptID, "", TypeString, "OpenAI Prompt ID for using custom prompts"},
	{KeyOpenAIPromptVersion, "2", TypeString, "OpenAI Prompt version"},
	{KeyEnableRAG, true, TypeBoolean, "Enable RAG (Retrieval-Augmented Generation) for document search"},
	{KeyRAGChunkLimit, 3.0, TypeNumber, "Number of document chunks to retrieve for context"},
	{KeyEnableCitations, true, TypeBoolean, "Show citations in responses"},
	{KeySystemPrompt, DefaultSystemPrompt, TypeString, "System prompt that guides the AI's behavior"},
	{KeyEnableLeadGate, false, TypeBoolean, "Require contact info after first message"},
	{KeyLeadGateMessage, DefaultLeadGateMessage, TypeString, "Message shown when requesting contact info"},
	{KeyChatTitle, "Fiat Clarity Chat", TypeString, "Title shown in chat header"},
	{KeyChatSubtitle, "Retirement planning guidance", TypeString, "Subtitle shown in chat header"},
	{KeyWelcomeMessage, "Hello! I'm here to help you navigate retirement planning with clarity and confidence. Whether you're curious about Roth conversions, Social Security timing, tax strategies, or building sustainable retirement income, I'm here to guide you.\n\nWhat questions do you have about your retirement journey?", TypeString, "Initial greeting message"},
	{KeyScheduleButtonText, "Schedule a Clarity Call", TypeString, "Text for the scheduling button"},
}

// PublicKeys are safe to expose to the chat widget.
var PublicKeys = []string{
	KeyChatTitle, KeyChatSubtitle, KeyWelcomeMessage, KeyScheduleButtonText, KeyEnableLeadGate, KeyLeadGateMessage,
}

func lookupDefault(key string) (Default, bool) {
	for _, d := range Defaults {
		if d.Key == key {
			return d, true
		}
	}
	return Default{}, false
}
