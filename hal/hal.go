package hal

// Transport performs one chip-select-framed, full-duplex SPI exchange.
//
// The chip select is asserted for the duration of the call and released
// before it returns, so every call is exactly one command frame on the
// wire. w and r must be the same length; r may be nil when the response
// is don't-care.
type Transport interface {
	Tx(w, r []byte) error
}

// Pin is a single digital output line, typically a chip select.
type Pin interface {
	High()
	Low()
}
