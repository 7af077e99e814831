// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package bubble

import "github.com/jeranaias/threadline/internal/model"

// =============================================================================
// ERROR CODES
// =============================================================================

// Message-level error codes reported in Message.Errors.
const (
	CodeGenerationFailed = 1
	CodeTimeout          = 2
	CodeRateLimited      = 3
	CodeContextTooLong   = 4
	CodeContentFiltered  = 5
	CodeFileUnreadable   = 6
	CodeModelUnavailable = 7
	CodeQuotaExceeded    = 8
	CodeToolFailed       = 9
	CodeFormRejected     = 10
	CodeBlockFailed      = 42
)

// FallbackErrorText is shown for codes missing from the table.
const FallbackErrorText = "Something went wrong while processing this message."

var errorTexts = map[int]string{
	CodeGenerationFailed: "The assistant could not generate a response.",
	CodeTimeout:          "The response took too long and was stopped.",
	CodeRateLimited:      "Too many requests. Please wait a moment and try again.",
	CodeContextTooLong:   "This conversation is too long to continue. Start a new thread.",
	CodeContentFiltered:  "This response was withheld by the content policy.",
	CodeFileUnreadable:   "An attached file could not be read.",
	CodeModelUnavailable: "The model is currently unavailable.",
	CodeQuotaExceeded:    "Your usage quota has been used up.",
	CodeToolFailed:       "A tool used to answer this message failed.",
	CodeFormRejected:     "The submitted form was rejected.",
	CodeBlockFailed:      "A step in this workflow failed to run.",
}

// ErrorText returns the user-facing text for an error code.
func ErrorText(code int) string {
	if text, ok := errorTexts[code]; ok {
		return text
	}
	return FallbackErrorText
}

// InjectErrors appends one Output bubble per entry of msg.Errors, in order,
// after the given bubbles.
func InjectErrors(bubbles []model.Bubble, msg model.Message) []model.Bubble {
	for _, rec := range msg.Errors {
		b := model.NewBubble(model.TypeOutput, msg.CreatedBy, msg.CreatedAt)
		b.Content = append(b.Content, model.ContentItem{Text: ErrorText(rec.Code)})
		bubbles = append(bubbles, b)
	}
	return bubbles
}
