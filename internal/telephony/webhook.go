package telephony

import (
	"net/http"
	"strconv"
	"strings"
)

// InboundForm captures the subset of voice webhook fields we care about.
// Providers send application/x-www-form-urlencoded by default.
//
// Keep it minimal and provider-adapter-only. Business logic (menu decisions,
// engagement tracking) is not made here.

type InboundForm struct {
	CallSid    string
	AccountSid string
	From       string
	To         string
	Direction  string
	CallStatus string

	// Digits is the DTMF input collected by a Gather verb.
	Digits string

	// RecordingUrl and RecordingDuration arrive on record-complete
	// callbacks.
	RecordingURL      string
	RecordingDuration float64

	CallerCountry string
}

func ParseInboundForm(r *http.Request) (InboundForm, error) {
	if err := r.ParseForm(); err != nil {
		return InboundForm{}, err
	}
	f := InboundForm{
		CallSid:       r.PostFormValue("CallSid"),
		AccountSid:    r.PostFormValue("AccountSid"),
		From:          normalizePhone(r.PostFormValue("From")),
		To:            normalizePhone(r.PostFormValue("To")),
		Direction:     r.PostFormValue("Direction"),
		CallStatus:    r.PostFormValue("CallStatus"),
		Digits:        strings.TrimSpace(r.PostFormValue("Digits")),
		RecordingURL:  strings.TrimSpace(r.PostFormValue("RecordingUrl")),
		CallerCountry: r.PostFormValue("FromCountry"),
	}
	if v := strings.TrimSpace(r.PostFormValue("RecordingDuration")); v != "" {
		if d, err := strconv.ParseFloat(v, 64); err == nil {
			f.RecordingDuration = d
		}
	}
	return f, nil
}

func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	// Providers sometimes send "anonymous" or empty; keep as-is.
	return s
}

// IsTerminalStatus reports whether a status callback closes the call.
func (f InboundForm) IsTerminalStatus() bool {
	switch f.CallStatus {
	case "completed", "busy", "failed", "no-answer", "canceled":
		return true
	default:
		return false
	}
}
