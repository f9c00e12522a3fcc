package telephony

import "errors"

var (
	errNoRenderer       = errors.New("telephony: no prompt renderer configured")
	errNoAgentDirectory = errors.New("telephony: no agent directory configured")
)
