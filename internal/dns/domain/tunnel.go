package domain

// TunnelPayload is the decoded data token of a query addressed to a carrier domain.
type TunnelPayload struct {
	Data    []byte
	Domain  string
	Carrier string
}
