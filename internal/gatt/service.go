package gatt

import "strings"

// Property is a bitmask of characteristic capabilities advertised to centrals.
type Property uint8

const (
	PropertyBroadcast Property = 1 << iota
	PropertyRead
	PropertyWriteWithoutResponse
	PropertyWrite
	PropertyNotify
	PropertyIndicate
)

// Has reports whether all bits of p2 are set in p.
func (p Property) Has(p2 Property) bool {
	return p&p2 == p2
}

func (p Property) String() string {
	names := []struct {
		bit  Property
		name string
	}{
		{PropertyBroadcast, "broadcast"},
		{PropertyRead, "read"},
		{PropertyWriteWithoutResponse, "write-without-response"},
		{PropertyWrite, "write"},
		{PropertyNotify, "notify"},
		{PropertyIndicate, "indicate"},
	}
	var set []string
	for _, n := range names {
		if p.Has(n.bit) {
			set = append(set, n.name)
		}
	}
	if len(set) == 0 {
		return "none"
	}
	return strings.Join(set, "|")
}

// Permission is a bitmask of attribute access permissions.
type Permission uint8

const (
	PermissionRead Permission = 1 << iota
	PermissionWrite
)

// Has reports whether all bits of p2 are set in p.
func (p Permission) Has(p2 Permission) bool {
	return p&p2 == p2
}

// Descriptor is a static attribute attached to a characteristic.
type Descriptor struct {
	UUID  string
	Value []byte
}

// Characteristic describes one attribute of a service. A characteristic with
// zero Properties and Permissions is registered with the transport's default
// (empty) configuration.
type Characteristic struct {
	UUID        string
	Properties  Property
	Permissions Permission
	Value       []byte
	Descriptors []Descriptor
}

// Service is the schema handed to a Peripheral at registration time.
// It is built once during bootstrap and must not be mutated afterwards.
type Service struct {
	UUID            string
	Primary         bool
	Characteristics []Characteristic
}

// Characteristic returns the characteristic with the given UUID, or nil.
// Lookup uses normalized UUID comparison.
func (s *Service) Characteristic(uuid string) *Characteristic {
	want := NormalizeUUID(uuid)
	for i := range s.Characteristics {
		if NormalizeUUID(s.Characteristics[i].UUID) == want {
			return &s.Characteristics[i]
		}
	}
	return nil
}
