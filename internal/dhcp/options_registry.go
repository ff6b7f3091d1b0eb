package dhcp

import (
	"fmt"

	"github.com/athena-dhcpd/athena-dhclient/pkg/dhcpv4"
)

// OptionDef defines a DHCP option's metadata for the registry.
type OptionDef struct {
	Code   dhcpv4.OptionCode
	Name   string
	MinLen int
	MaxLen int
}

// optionRegistry covers the options this client sends or reads. Codes outside
// it are still carried opaquely.
var optionRegistry = map[dhcpv4.OptionCode]OptionDef{
	dhcpv4.OptionSubnetMask:           {Code: 1, Name: "Subnet Mask", MinLen: 4, MaxLen: 4},
	dhcpv4.OptionTimeOffset:           {Code: 2, Name: "Time Offset", MinLen: 4, MaxLen: 4},
	dhcpv4.OptionRouter:               {Code: 3, Name: "Router", MinLen: 4, MaxLen: 252},
	dhcpv4.OptionTimeServer:           {Code: 4, Name: "Time Server", MinLen: 4, MaxLen: 252},
	dhcpv4.OptionNameServer:           {Code: 5, Name: "Name Server", MinLen: 4, MaxLen: 252},
	dhcpv4.OptionDomainNameServer:     {Code: 6, Name: "Domain Name Server", MinLen: 4, MaxLen: 252},
	dhcpv4.OptionLogServer:            {Code: 7, Name: "Log Server", MinLen: 4, MaxLen: 252},
	dhcpv4.OptionHostname:             {Code: 12, Name: "Host Name", MinLen: 1, MaxLen: 255},
	dhcpv4.OptionDomainName:           {Code: 15, Name: "Domain Name", MinLen: 1, MaxLen: 255},
	dhcpv4.OptionInterfaceMTU:         {Code: 26, Name: "Interface MTU", MinLen: 2, MaxLen: 2},
	dhcpv4.OptionBroadcastAddress:     {Code: 28, Name: "Broadcast Address", MinLen: 4, MaxLen: 4},
	dhcpv4.OptionStaticRoute:          {Code: 33, Name: "Static Route", MinLen: 8, MaxLen: 248},
	dhcpv4.OptionNTPServers:           {Code: 42, Name: "NTP Servers", MinLen: 4, MaxLen: 252},
	dhcpv4.OptionVendorSpecific:       {Code: 43, Name: "Vendor Specific", MinLen: 1, MaxLen: 255},
	dhcpv4.OptionRequestedIP:          {Code: 50, Name: "Requested IP Address", MinLen: 4, MaxLen: 4},
	dhcpv4.OptionIPLeaseTime:          {Code: 51, Name: "IP Address Lease Time", MinLen: 4, MaxLen: 4},
	dhcpv4.OptionOverload:             {Code: 52, Name: "Option Overload", MinLen: 1, MaxLen: 1},
	dhcpv4.OptionDHCPMessageType:      {Code: 53, Name: "DHCP Message Type", MinLen: 1, MaxLen: 1},
	dhcpv4.OptionServerIdentifier:     {Code: 54, Name: "Server Identifier", MinLen: 4, MaxLen: 4},
	dhcpv4.OptionParameterRequestList: {Code: 55, Name: "Parameter Request List", MinLen: 1, MaxLen: 255},
	dhcpv4.OptionMessage:              {Code: 56, Name: "Message", MinLen: 1, MaxLen: 255},
	dhcpv4.OptionMaxDHCPMessageSize:   {Code: 57, Name: "Maximum DHCP Message Size", MinLen: 2, MaxLen: 2},
	dhcpv4.OptionRenewalTime:          {Code: 58, Name: "Renewal (T1) Time", MinLen: 4, MaxLen: 4},
	dhcpv4.OptionRebindingTime:        {Code: 59, Name: "Rebinding (T2) Time", MinLen: 4, MaxLen: 4},
	dhcpv4.OptionVendorClassID:        {Code: 60, Name: "Vendor Class Identifier", MinLen: 1, MaxLen: 255},
	dhcpv4.OptionClientIdentifier:     {Code: 61, Name: "Client Identifier", MinLen: 2, MaxLen: 255},
	dhcpv4.OptionClientFQDN:           {Code: 81, Name: "Client FQDN", MinLen: 3, MaxLen: 255},
	dhcpv4.OptionClasslessStaticRoute: {Code: 121, Name: "Classless Static Route", MinLen: 5, MaxLen: 255},
}

// GetOptionDef returns the definition for an option code, or nil if unknown.
func GetOptionDef(code dhcpv4.OptionCode) *OptionDef {
	if def, ok := optionRegistry[code]; ok {
		return &def
	}
	return nil
}

// OptionName returns a readable name for code, falling back to "Option N".
func OptionName(code dhcpv4.OptionCode) string {
	switch code {
	case dhcpv4.OptionPad:
		return "Pad"
	case dhcpv4.OptionEnd:
		return "End"
	}
	if def := GetOptionDef(code); def != nil {
		return def.Name
	}
	return fmt.Sprintf("Option %d", code)
}

// ValidateOption checks a caller-supplied option before it is placed on the wire.
// Unknown codes only need to fit in one option.
func ValidateOption(code dhcpv4.OptionCode, data []byte) error {
	if code == dhcpv4.OptionPad || code == dhcpv4.OptionEnd {
		return fmt.Errorf("%w: %d", ErrReservedOption, code)
	}
	if len(data) > dhcpv4.MaxOptionLength {
		return fmt.Errorf("%w: option %d is %d bytes (max %d)", ErrOptionTooLong, code, len(data), dhcpv4.MaxOptionLength)
	}

	def := GetOptionDef(code)
	if def == nil {
		return nil
	}
	if len(data) < def.MinLen {
		return fmt.Errorf("option %d (%s): data too short (%d < %d)", code, def.Name, len(data), def.MinLen)
	}
	if len(data) > def.MaxLen {
		return fmt.Errorf("option %d (%s): data too long (%d > %d)", code, def.Name, len(data), def.MaxLen)
	}
	return nil
}
