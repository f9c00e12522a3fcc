package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// VoiceResponse is a minimal response-XML builder for the voice webhook.
// It intentionally avoids any provider SDK dependency.
//
// Only include verbs the IVR flows actually render.

type VoiceResponse struct {
	verbs []any
}

type verbSay struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

type verbPlay struct {
	XMLName xml.Name `xml:"Play"`
	URL     string   `xml:",chardata"`
}

type verbGather struct {
	XMLName   xml.Name `xml:"Gather"`
	Action    string   `xml:"action,attr"`
	Method    string   `xml:"method,attr"`
	NumDigits int      `xml:"numDigits,attr"`
	Timeout   int      `xml:"timeout,attr"`
	Nested    []any    `xml:",any"`
}

type verbRecord struct {
	XMLName   xml.Name `xml:"Record"`
	Action    string   `xml:"action,attr"`
	Method    string   `xml:"method,attr"`
	MaxLength int      `xml:"maxLength,attr"`
	PlayBeep  bool     `xml:"playBeep,attr"`
	Timeout   int      `xml:"timeout,attr"`
}

type verbDial struct {
	XMLName xml.Name `xml:"Dial"`
	Number  string   `xml:"Number,omitempty"`
	Sip     *dialSip `xml:"Sip,omitempty"`
}

type dialSip struct {
	URI string `xml:",chardata"`
}

type verbRedirect struct {
	XMLName xml.Name `xml:"Redirect"`
	URL     string   `xml:",chardata"`
}

type verbHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type responseDoc struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

func (v *VoiceResponse) Say(text, language string) *VoiceResponse {
	v.verbs = append(v.verbs, verbSay{Voice: "alice", Language: language, Text: text})
	return v
}

func (v *VoiceResponse) Play(url string) *VoiceResponse {
	v.verbs = append(v.verbs, verbPlay{URL: url})
	return v
}

// Gather collects numDigits DTMF digits, posting them to action. The prompt
// verbs nest inside so the caller can barge in.
func (v *VoiceResponse) Gather(action string, numDigits int, prompt *VoiceResponse) *VoiceResponse {
	g := verbGather{Action: action, Method: "POST", NumDigits: numDigits, Timeout: 10}
	if prompt != nil {
		g.Nested = prompt.verbs
	}
	v.verbs = append(v.verbs, g)
	return v
}

func (v *VoiceResponse) Record(action string, maxSeconds int) *VoiceResponse {
	v.verbs = append(v.verbs, verbRecord{Action: action, Method: "POST", MaxLength: maxSeconds, PlayBeep: true, Timeout: 5})
	return v
}

// Dial connects the caller to a PSTN number or, when the target looks like
// sip:..., a SIP URI.
func (v *VoiceResponse) Dial(target string) *VoiceResponse {
	d := verbDial{}
	if strings.HasPrefix(strings.ToLower(target), "sip:") {
		d.Sip = &dialSip{URI: target}
	} else {
		d.Number = target
	}
	v.verbs = append(v.verbs, d)
	return v
}

func (v *VoiceResponse) Redirect(url string) *VoiceResponse {
	v.verbs = append(v.verbs, verbRedirect{URL: url})
	return v
}

func (v *VoiceResponse) Hangup() *VoiceResponse {
	v.verbs = append(v.verbs, verbHangup{})
	return v
}

// Render serializes the response document.
func (v *VoiceResponse) Render() (string, error) {
	if len(v.verbs) == 0 {
		return "", errors.New("telephony: empty voice response")
	}
	doc := responseDoc{Verbs: v.verbs}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
