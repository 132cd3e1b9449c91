package booking

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/converse/model"
)

var bookingKeywords = []string{
	"book", "schedule", "appointment", "interview", "meeting",
	"reservation", "slot", "time", "available", "booking",
}

// DetectIntent reports whether a query asks for an interview booking. A
// single keyword like "time" appears in ordinary questions too, so at least
// two keywords are required.
func DetectIntent(query string) bool {
	queryLower := strings.ToLower(query)
	matches := 0
	for _, keyword := range bookingKeywords {
		if strings.Contains(queryLower, keyword) {
			matches++
		}
	}
	return matches >= 2
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d{1,2}[-/]\d{1,2}[-/]\d{2,4}`),
		regexp.MustCompile(`\d{4}[-/]\d{1,2}[-/]\d{1,2}`),
		regexp.MustCompile(`[A-Za-z]+\s+\d{1,2},?\s+\d{4}`),
		regexp.MustCompile(`\d{1,2}\s+[A-Za-z]+\s+\d{4}`),
	}

	timePattern = regexp.MustCompile(`(\d{1,2}:\d{2})\s*(am|pm|AM|PM)?`)

	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)my\s+name\s+is\s+([A-Za-z]+(?:\s+[A-Za-z]+)?)`),
		regexp.MustCompile(`(?i)I\s+am\s+([A-Za-z]+(?:\s+[A-Za-z]+)?)`),
	}
)

// ExtractRequest pulls name, email, date and time out of a free-form query.
// Fields it cannot find stay empty; MissingFields on the result names them.
func ExtractRequest(query string, conversationID uuid.UUID) *model.BookingRequest {
	request := &model.BookingRequest{ConversationID: conversationID}

	if match := emailPattern.FindString(query); match != "" {
		request.Email = match
	}

	for _, pattern := range datePatterns {
		if match := pattern.FindString(query); match != "" {
			request.Date = match
			break
		}
	}

	if match := timePattern.FindStringSubmatch(query); match != nil {
		request.Time = strings.TrimSpace(match[1] + " " + strings.ToLower(match[2]))
	}

	for _, pattern := range namePatterns {
		if match := pattern.FindStringSubmatch(query); match != nil {
			request.Name = match[1]
			break
		}
	}

	return request
}

// Respond turns an extracted booking request into the assistant's answer. A
// complete request is confirmed; an incomplete one prompts for the missing
// details.
func Respond(request *model.BookingRequest) (response string, complete bool) {
	missing := request.MissingFields()
	if len(missing) > 0 {
		return fmt.Sprintf(
			"I'd like to help you book an interview. Could you please provide the following details: %s?",
			strings.Join(missing, ", "),
		), false
	}

	return fmt.Sprintf(
		"I've scheduled your interview for %s at %s. A confirmation email will be sent to %s. Thank you, %s!",
		request.Date, request.Time, request.Email, request.Name,
	), true
}
