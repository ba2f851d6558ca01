// Package atxp puts a per-call micropayment in front of tool-call handlers.
//
// Clients pay a facilitator out of band and present the signed receipt in the
// X-PAYMENT header. The Paywall middleware checks the receipt against the
// tool named in the request body: signature and expiry, destination wallet,
// tool name and amount. A receipt is redeemed once per replay window. When a
// Settler is configured the receipt is settled before the call runs, and a
// receipt whose settlement fails may be presented again.
//
// Rejected requests get HTTP 402 with a PaymentRequired body listing the
// accepted terms for that tool.
package atxp
