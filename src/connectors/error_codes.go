package connectors

import "fmt"

const codeSlippage = 20005

// VenueErrorCodes maps swap-venue error codes to human-readable messages.
var VenueErrorCodes = map[int]string{
	20001: "VE_UNKNOWN_ERROR",        // Unknown error
	20002: "VE_INVALID_ARGUMENT",     // Invalid argument (e.g. missing or wrong param)
	20003: "VE_PAIR_NOT_SUPPORTED",   // Asset pair not routable
	20004: "VE_AMOUNT_TOO_SMALL",     // Amount below venue minimum
	20005: "VE_SLIPPAGE_EXCEEDED",    // Output below requested minimum
	20006: "VE_INSUFFICIENT_LIQ",     // Not enough liquidity on route
	20007: "VE_ROUTING_INVALID",      // Routing payload rejected
	20010: "VE_MAINTENANCE_MODE",     // Venue maintenance window
	20011: "VE_RATE_LIMITED",         // Too many requests
	20020: "VE_SIGNATURE_INVALID",    // Request signature rejected
	20021: "VE_KEY_EXPIRED",          // API key expired or revoked
}

// GetErrorMsg returns a human-readable message for a given venue error code.
// If the code is unknown, returns a generic message including the code.
func GetErrorMsg(code int) string {
	if msg, ok := VenueErrorCodes[code]; ok {
		return msg
	}
	return fmt.Sprintf("UNKNOWN_VENUE_ERROR_%d", code)
}
