package services

import "strings"

const inputSeparator = "*"

// DecodeInput splits the gateway's accumulated text into step tokens.
// Empty text yields a single empty token, the root menu.
func DecodeInput(text string) []string {
	return strings.Split(text, inputSeparator)
}

// tokenAt returns the token at index i or "" when the input is shorter.
func tokenAt(tokens []string, i int) string {
	if i < len(tokens) {
		return strings.TrimSpace(tokens[i])
	}
	return ""
}
