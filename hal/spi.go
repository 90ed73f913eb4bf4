package hal

import (
	"tinygo.org/x/drivers"
)

// SPI frames a shared SPI bus with a dedicated chip-select pin.
//
// The bus itself (pins, clock, mode) must already be configured by the
// platform; SPI only adds the select/deselect bracket around each
// transfer.
type SPI struct {
	bus drivers.SPI
	cs  Pin
}

// NewSPI returns a Transport over bus gated by cs. The pin is driven
// high (deselected) immediately.
func NewSPI(bus drivers.SPI, cs Pin) *SPI {
	cs.High()
	return &SPI{bus: bus, cs: cs}
}

func (s *SPI) Tx(w, r []byte) error {
	s.cs.Low()
	defer s.cs.High()
	return s.bus.Tx(w, r)
}
