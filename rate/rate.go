// Package rate contains the table of physical rate modes that a benchmark
// sweeps through, and the lookups between their names and transport codes.
package rate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxNameLength is the longest rate name that fits in a packet's rate tag.
const MaxNameLength = 10

// Pad is the byte used to left-pad rate tags. No rate name may contain it.
const Pad = '.'

var (
	// ErrUnknownRate is returned when a name or code is not in the table.
	ErrUnknownRate = errors.New("unknown rate")

	// ErrEmptyTable is returned when a table has no entries.
	ErrEmptyTable = errors.New("rate table is empty")

	// ErrDuplicate is returned when a name or a code appears twice.
	ErrDuplicate = errors.New("duplicate rate")

	// ErrInvalidName is returned for names that cannot be carried in a tag.
	ErrInvalidName = errors.New("invalid rate name")
)

// Code is the transport-level identifier of a rate mode.
type Code uint8

// Rate is a named physical-layer modulation/coding configuration.
type Rate struct {
	Name string
	Code Code
}

func (r Rate) String() string {
	return fmt.Sprintf("%s(0x%02X)", r.Name, uint8(r.Code))
}

// Table is an immutable bijection between rate names and codes. The order
// in which entries were given is the sweep order.
type Table struct {
	rates  []Rate
	byName map[string]Code
	byCode map[Code]string
}

// NewTable builds a table from entries in sweep order.
func NewTable(entries ...Rate) (*Table, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyTable
	}
	t := &Table{
		rates:  make([]Rate, 0, len(entries)),
		byName: make(map[string]Code, len(entries)),
		byCode: make(map[Code]string, len(entries)),
	}
	for _, r := range entries {
		if r.Name == "" || len(r.Name) > MaxNameLength || strings.ContainsRune(r.Name, Pad) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidName, r.Name)
		}
		if _, found := t.byName[r.Name]; found {
			return nil, fmt.Errorf("%w: name %q", ErrDuplicate, r.Name)
		}
		if _, found := t.byCode[r.Code]; found {
			return nil, fmt.Errorf("%w: code 0x%02X", ErrDuplicate, uint8(r.Code))
		}
		t.byName[r.Name] = r.Code
		t.byCode[r.Code] = r.Name
		t.rates = append(t.rates, r)
	}
	return t, nil
}

// Code returns the code of the named rate.
func (t *Table) Code(name string) (Code, error) {
	c, found := t.byName[name]
	if !found {
		return 0, fmt.Errorf("%w: name %q", ErrUnknownRate, name)
	}
	return c, nil
}

// Name returns the canonical name of the rate with the given code.
func (t *Table) Name(c Code) (string, error) {
	n, found := t.byCode[c]
	if !found {
		return "", fmt.Errorf("%w: code 0x%02X", ErrUnknownRate, uint8(c))
	}
	return n, nil
}

// Lookup returns the entry with the given name.
func (t *Table) Lookup(name string) (Rate, error) {
	c, err := t.Code(name)
	if err != nil {
		return Rate{}, err
	}
	return Rate{Name: name, Code: c}, nil
}

// Rates returns a copy of the entries in sweep order.
func (t *Table) Rates() []Rate {
	out := make([]Rate, len(t.rates))
	copy(out, t.rates)
	return out
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.rates)
}

// Sweep returns a one-shot iterator over the table in sweep order.
func (t *Table) Sweep() *Sweep {
	return &Sweep{rates: t.rates}
}

// Sweep walks a table once. It never wraps around.
type Sweep struct {
	rates []Rate
	next  int
}

// Next returns the next rate. The boolean is false once every rate has been
// returned, which means the sweep is complete.
func (s *Sweep) Next() (Rate, bool) {
	if s.next >= len(s.rates) {
		return Rate{}, false
	}
	r := s.rates[s.next]
	s.next++
	return r, true
}

// Remaining returns how many rates Next has yet to return.
func (s *Sweep) Remaining() int {
	return len(s.rates) - s.next
}

// Parse builds a table from NAME=CODE definitions. Codes are parsed with
// base prefix detection, so both "31" and "0x1F" are accepted. A definition
// may itself hold several comma separated entries.
func Parse(defs []string) (*Table, error) {
	var entries []Rate
	for _, def := range defs {
		for _, item := range strings.Split(def, ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			name, value, found := strings.Cut(item, "=")
			if !found {
				return nil, fmt.Errorf("%w: %q is not NAME=CODE", ErrInvalidName, item)
			}
			code, err := strconv.ParseUint(strings.TrimSpace(value), 0, 8)
			if err != nil {
				return nil, fmt.Errorf("rate %q: bad code: %w", name, err)
			}
			entries = append(entries, Rate{Name: strings.TrimSpace(name), Code: Code(code)})
		}
	}
	return NewTable(entries...)
}

// Default returns the ESP-NOW wifi_phy_rate table in its customary sweep
// order, from the slowest long-preamble mode to MCS7 with short guard interval.
func Default() *Table {
	t, err := NewTable(
		Rate{"1M_L", 0x00},
		Rate{"11M_L", 0x03},
		Rate{"2M_S", 0x05},
		Rate{"11M_S", 0x07},
		Rate{"6M", 0x0B},
		Rate{"54M", 0x0C},
		Rate{"MCS0_LGI", 0x10},
		Rate{"MCS7_LGI", 0x17},
		Rate{"MCS0_SGI", 0x18},
		Rate{"MCS7_SGI", 0x1F},
	)
	if err != nil {
		panic(err)
	}
	return t
}
