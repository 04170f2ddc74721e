package errs

var userMessages = map[Kind]string{
	KindNetwork:      "Unable to reach the server. Please check your connection and try again.",
	KindAuth:         "You are not authorized to perform this action. Please sign in again.",
	KindClient:       "The request could not be completed. Please review and try again.",
	KindServer:       "The server ran into a problem. Please try again later.",
	KindRateLimit:    "Too many requests. Please wait a moment and try again.",
	KindValidation:   "Some of the information provided is invalid. Please correct it and try again.",
	KindBatchCleared: "The request was cancelled.",
	KindUnknown:      "Something went wrong. Please try again.",
}

// UserMessage maps a Kind to a stable, user-presentable string.
func UserMessage(k Kind) string {
	if msg, ok := userMessages[k]; ok {
		return msg
	}
	return userMessages[KindUnknown]
}

// UserMessageFor normalizes err and returns its user-facing message.
func UserMessageFor(err error) string {
	if err == nil {
		return ""
	}
	return Normalize(err).UserMessage()
}
