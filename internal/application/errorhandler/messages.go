package errorhandler

// Customer-facing copy by category. Specific types (agent names, API names,
// validation fields) override the category default.

const genericApology = "I apologize, but I'm experiencing a technical issue. Let me try to help you in a different way."

var customerMessages = map[Category]map[string]string{
	CategoryAgentFailure: {
		"default":      "I apologize, but I'm experiencing a temporary issue. Let me try to help you in a different way.",
		"sales":        "I'm having trouble with the loan calculation. Let me get you connected with our loan specialist.",
		"verification": "There's a temporary issue with verification. Let me try an alternative approach.",
		"underwriting": "I'm experiencing difficulty with the approval process. Please give me a moment to resolve this.",
		"sanction":     "There's a temporary issue generating your documents. I'll have this resolved shortly.",
	},
	CategoryAPIFailure: {
		"default":       "I'm having trouble accessing some information right now. Let me try again in a moment.",
		"crm":           "I'm unable to access your customer information at the moment. Could you please provide your details manually?",
		"credit_bureau": "I'm having difficulty checking your credit score. We can proceed with alternative verification methods.",
		"offer_mart":    "I'm unable to access your pre-approved offers right now. Let me calculate options based on standard criteria.",
	},
	CategoryValidation: {
		"default":   "There seems to be an issue with the information provided. Could you please check and try again?",
		"amount":    "The loan amount you've entered seems unusual. Could you please confirm the amount?",
		"tenure":    "The tenure you've selected isn't available. Let me show you the available options.",
		"documents": "There's an issue with the document you've uploaded. Please check the format and try again.",
	},
	CategoryProcessing: {
		"default":             "I'm having trouble processing your request. Let me try a different approach.",
		"calculation":         "There's an issue with the loan calculations. Let me recalculate this for you.",
		"document_generation": "I'm having trouble generating your documents. I'll resolve this shortly.",
	},
	CategoryNetwork: {
		"default": "I'm experiencing connectivity issues. Please bear with me while I resolve this.",
		"timeout": "The request is taking longer than expected. Let me try again with a different approach.",
	},
	CategoryTimeout: {
		"default":     "The operation is taking longer than expected. Let me try again.",
		"api_timeout": "I'm having trouble getting a response from our systems. Let me try an alternative method.",
	},
	CategoryBusinessRule: {
		"default":     "There's an issue with the loan criteria. Let me explain the available options.",
		"eligibility": "Based on our current criteria, there are some eligibility concerns. Let me explain the alternatives.",
		"limits":      "The requested amount exceeds our current limits. Let me show you what's available.",
	},
	CategoryData: {
		"default":      "There seems to be an issue with the data. Could you please verify the information?",
		"missing_data": "Some required information is missing. Could you please provide the additional details?",
		"invalid_data": "Some of the information doesn't seem correct. Could you please check and update it?",
	},
	CategorySystem: {
		"default":             "I'm experiencing a technical issue. Let me try to resolve this for you.",
		"database":            "There's a temporary issue with our systems. I'm working to resolve this.",
		"service_unavailable": "Some of our services are temporarily unavailable. Let me try alternative methods.",
	},
}

func customerMessage(category Category, specificType string) string {
	messages, ok := customerMessages[category]
	if !ok {
		return genericApology
	}
	if specificType != "" {
		if msg, ok := messages[specificType]; ok {
			return msg
		}
	}
	if msg, ok := messages["default"]; ok {
		return msg
	}
	return genericApology
}
