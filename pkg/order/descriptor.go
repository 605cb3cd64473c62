package order

import (
	"errors"
	"fmt"
)

// AdminOrderType is the administrative order type of a request.
type AdminOrderType string

const (
	AdminINI AdminOrderType = "INI"
	AdminHIA AdminOrderType = "HIA"
	AdminHPB AdminOrderType = "HPB"
	AdminSPR AdminOrderType = "SPR"
	// AdminUPL and AdminDNL carry a business order type such as CCT or STA.
	AdminUPL AdminOrderType = "UPL"
	AdminDNL AdminOrderType = "DNL"
	// AdminFUL and AdminFDL carry a file format.
	AdminFUL AdminOrderType = "FUL"
	AdminFDL AdminOrderType = "FDL"
	// AdminBTU and AdminBTD carry a Structured service descriptor.
	AdminBTU AdminOrderType = "BTU"
	AdminBTD AdminOrderType = "BTD"
	AdminHAA AdminOrderType = "HAA"
	AdminHTD AdminOrderType = "HTD"
	AdminHKD AdminOrderType = "HKD"
	AdminPTK AdminOrderType = "PTK"
	AdminHAC AdminOrderType = "HAC"
)

// ErrInvalidDescriptor is returned for descriptors that cannot be sent.
var ErrInvalidDescriptor = errors.New("invalid order descriptor")

// Descriptor is Legacy or Structured.
type Descriptor interface {
	// Validate reports whether the descriptor is complete.
	Validate() error
	String() string
	descriptor()
}

// Legacy identifies an order by type, optionally with a business order type
// or file format.
type Legacy struct {
	AdminType    AdminOrderType
	BusinessType string
}

func (Legacy) descriptor() {}

// Validate checks that business-carrying admin types have a business type.
func (l Legacy) Validate() error {
	if l.AdminType == "" {
		return fmt.Errorf("%w: admin order type missing", ErrInvalidDescriptor)
	}
	if l.AdminType == AdminBTU || l.AdminType == AdminBTD {
		return fmt.Errorf("%w: %s requires a service descriptor", ErrInvalidDescriptor, l.AdminType)
	}
	if l.carriesBusinessType() && l.BusinessType == "" {
		return fmt.Errorf("%w: %s requires a business order type", ErrInvalidDescriptor, l.AdminType)
	}
	return nil
}

func (l Legacy) carriesBusinessType() bool {
	switch l.AdminType {
	case AdminUPL, AdminDNL, AdminFUL, AdminFDL:
		return true
	}
	return false
}

// OrderType returns the H004 OrderType element value.
func (l Legacy) OrderType() string {
	if l.AdminType == AdminUPL || l.AdminType == AdminDNL {
		return l.BusinessType
	}
	return string(l.AdminType)
}

// FileFormat returns the file format of FUL and FDL orders.
func (l Legacy) FileFormat() (string, bool) {
	if l.AdminType == AdminFUL || l.AdminType == AdminFDL {
		return l.BusinessType, true
	}
	return "", false
}

func (l Legacy) String() string {
	if l.BusinessType == "" {
		return string(l.AdminType)
	}
	return fmt.Sprintf("%s:%s", l.AdminType, l.BusinessType)
}

// Structured is a BTF service descriptor.
type Structured struct {
	Service     string
	Option      string
	Scope       string
	Container   string
	MessageName string
	Variant     string
	Version     string
	Format      string
}

func (Structured) descriptor() {}

// Validate checks the mandatory service name and message name.
func (s Structured) Validate() error {
	if s.Service == "" {
		return fmt.Errorf("%w: service name missing", ErrInvalidDescriptor)
	}
	if s.MessageName == "" {
		return fmt.Errorf("%w: message name missing", ErrInvalidDescriptor)
	}
	return nil
}

func (s Structured) String() string {
	out := s.Service
	for _, part := range []string{s.Scope, s.Option, s.Container} {
		if part != "" {
			out += ":" + part
		}
	}
	out += "/" + s.MessageName
	if s.Version != "" {
		out += "." + s.Version
	}
	return out
}
