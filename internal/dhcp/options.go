package dhcp

import (
	"fmt"

	"github.com/athena-dhcpd/athena-dhclient/pkg/dhcpv4"
)

// Option is a single TLV-encoded DHCP option (RFC 2132 §2).
type Option struct {
	Code  dhcpv4.OptionCode
	Value []byte
}

// String renders the option for debug logs.
func (o Option) String() string {
	return fmt.Sprintf("%s(%d)=% x", OptionName(o.Code), o.Code, o.Value)
}

// Options is the ordered option list of a packet. PAD and END are wire-level
// markers and never appear in it.
type Options []Option

// DecodeOptions parses the options section of a DHCP packet.
// Options are TLV (type-length-value) encoded (RFC 2132).
func DecodeOptions(data []byte) (Options, error) {
	var opts Options
	i := 0
	for i < len(data) {
		code := dhcpv4.OptionCode(data[i])
		i++

		// Pad option (RFC 2132 §3.1)
		if code == dhcpv4.OptionPad {
			continue
		}

		// End option (RFC 2132 §3.2); anything after it is alignment padding.
		if code == dhcpv4.OptionEnd {
			break
		}

		// TLV: need at least 1 byte for length
		if i >= len(data) {
			return nil, fmt.Errorf("%w: option %d has no length byte", ErrTruncatedOption, code)
		}

		length := int(data[i])
		i++

		if i+length > len(data) {
			return nil, fmt.Errorf("%w: option %d needs %d bytes, have %d", ErrTruncatedOption, code, length, len(data)-i)
		}

		value := make([]byte, length)
		copy(value, data[i:i+length])
		opts = append(opts, Option{Code: code, Value: value})
		i += length
	}

	return opts, nil
}

// Encode serializes options in order followed by the END marker.
func (opts Options) Encode() ([]byte, error) {
	size := 1 // End option
	for _, o := range opts {
		size += 2 + len(o.Value) // code + length + value
	}

	buf := make([]byte, 0, size)
	for _, o := range opts {
		if o.Code == dhcpv4.OptionPad || o.Code == dhcpv4.OptionEnd {
			return nil, fmt.Errorf("%w: %d", ErrReservedOption, o.Code)
		}
		if len(o.Value) > dhcpv4.MaxOptionLength {
			return nil, fmt.Errorf("%w: option %d is %d bytes (max %d)", ErrOptionTooLong, o.Code, len(o.Value), dhcpv4.MaxOptionLength)
		}
		buf = append(buf, byte(o.Code), byte(len(o.Value)))
		buf = append(buf, o.Value...)
	}

	buf = append(buf, byte(dhcpv4.OptionEnd))
	return buf, nil
}

// Get returns the value of the first option with the given code.
func (opts Options) Get(code dhcpv4.OptionCode) ([]byte, bool) {
	for _, o := range opts {
		if o.Code == code {
			return o.Value, true
		}
	}
	return nil, false
}

// Has returns true if the option is present.
func (opts Options) Has(code dhcpv4.OptionCode) bool {
	_, ok := opts.Get(code)
	return ok
}

// Clone returns a deep copy of the options.
func (opts Options) Clone() Options {
	if opts == nil {
		return nil
	}
	clone := make(Options, len(opts))
	for i, o := range opts {
		vc := make([]byte, len(o.Value))
		copy(vc, o.Value)
		clone[i] = Option{Code: o.Code, Value: vc}
	}
	return clone
}
