package tagsvc

import "github.com/atharvakhole/modgate/catalog"

// translate converts a register's configured address into a 0-based
// PDU address, per the PLC's addressing scheme. The second return
// value reports whether the address fell outside every recognized
// Modicon zone and was passed through unchanged.
func translate(scheme catalog.AddressingScheme, original int) (pdu int, outOfRange bool) {
	if scheme == catalog.Relative {
		return original - 1, false
	}

	switch {
	case original >= 40001 && original <= 49999:
		return original - 40001, false
	case original >= 30001 && original <= 39999:
		return original - 30001, false
	case original >= 10001 && original <= 19999:
		return original - 10001, false
	case original >= 1 && original <= 9999:
		return original - 1, false
	default:
		return original, true
	}
}
