package domain

// RequestMethod is the HTTP verb an adapter request carries.
type RequestMethod string

const (
	RequestMethodGet    RequestMethod = "get"
	RequestMethodPost   RequestMethod = "post"
	RequestMethodDelete RequestMethod = "delete"
	RequestMethodPut    RequestMethod = "put"
)

// Request is what adapters emit and the host consumes for both polled
// subscriptions and on-demand sends.
type Request struct {
	URL     string
	Method  RequestMethod
	Body    string
	Headers map[string]string

	// Sign names the adapter-specific signing scheme to apply (e.g.
	// "polymarket-eip712", "kalshi-rsa-pss"), or is empty for unsigned
	// requests.
	Sign string

	EnvSuffix string

	// PrimaryOnly restricts delivery to the primary credential environment
	// only, skipping any secondary/shadow accounts the host may also drive
	// requests against.
	PrimaryOnly bool
}

// ResponsePayload is what the host hands back for both fetcher responses
// and send responses. Signals are carried inline via Restart/Terminate
// rather than as a separate type.
type ResponsePayload struct {
	URL       string
	EnvSuffix string
	Status    uint16
	Content   string
	Error     bool
	Restart   bool
	Terminate bool
}
