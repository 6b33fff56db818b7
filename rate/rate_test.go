package rate

import (
	"errors"
	"testing"
)

func TestDefaultIsBijection(t *testing.T) {
	tbl := Default()
	if tbl.Len() != 10 {
		t.Fatalf("Default().Len() = %d, want 10", tbl.Len())
	}
	for _, r := range tbl.Rates() {
		code, err := tbl.Code(r.Name)
		if err != nil {
			t.Fatalf("Code(%q) error = %v", r.Name, err)
		}
		name, err := tbl.Name(code)
		if err != nil {
			t.Fatalf("Name(0x%02X) error = %v", uint8(code), err)
		}
		if name != r.Name {
			t.Errorf("Name(Code(%q)) = %q", r.Name, name)
		}
		back, err := tbl.Code(name)
		if err != nil || back != code {
			t.Errorf("Code(Name(0x%02X)) = 0x%02X, %v", uint8(code), uint8(back), err)
		}
	}
}

func TestTableLookupMisses(t *testing.T) {
	tbl := Default()
	if _, err := tbl.Code("300M"); !errors.Is(err, ErrUnknownRate) {
		t.Errorf("Code(300M) error = %v, want ErrUnknownRate", err)
	}
	if _, err := tbl.Name(0xFE); !errors.Is(err, ErrUnknownRate) {
		t.Errorf("Name(0xFE) error = %v, want ErrUnknownRate", err)
	}
	if _, err := tbl.Lookup(""); !errors.Is(err, ErrUnknownRate) {
		t.Errorf("Lookup(\"\") error = %v, want ErrUnknownRate", err)
	}
}

func TestNewTable(t *testing.T) {
	tests := []struct {
		name    string
		entries []Rate
		wantErr error
	}{
		{
			name:    "empty",
			wantErr: ErrEmptyTable,
		},
		{
			name:    "duplicate-name",
			entries: []Rate{{"A", 1}, {"A", 2}},
			wantErr: ErrDuplicate,
		},
		{
			name:    "duplicate-code",
			entries: []Rate{{"A", 1}, {"B", 1}},
			wantErr: ErrDuplicate,
		},
		{
			name:    "name-too-long",
			entries: []Rate{{"MCS7_SGI_40M", 1}},
			wantErr: ErrInvalidName,
		},
		{
			name:    "name-with-pad",
			entries: []Rate{{"6.5M", 1}},
			wantErr: ErrInvalidName,
		},
		{
			name:    "empty-name",
			entries: []Rate{{"", 1}},
			wantErr: ErrInvalidName,
		},
		{
			name:    "valid",
			entries: []Rate{{"A", 1}, {"B", 2}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.entries...)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewTable() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSweepIsOneShot(t *testing.T) {
	tbl, err := NewTable(Rate{"A", 0x01}, Rate{"B", 0x02})
	if err != nil {
		t.Fatal(err)
	}
	s := tbl.Sweep()
	for _, want := range []string{"A", "B"} {
		r, ok := s.Next()
		if !ok || r.Name != want {
			t.Fatalf("Next() = %v, %v; want %s, true", r, ok, want)
		}
	}
	if s.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", s.Remaining())
	}
	for i := 0; i < 2; i++ {
		if r, ok := s.Next(); ok {
			t.Errorf("Next() after completion = %v, true", r)
		}
	}
}

func TestRatesReturnsCopy(t *testing.T) {
	tbl := Default()
	rates := tbl.Rates()
	rates[0].Name = "changed"
	if tbl.Rates()[0].Name != "1M_L" {
		t.Error("Rates() exposed the internal slice")
	}
}

func TestParse(t *testing.T) {
	tbl, err := Parse([]string{"A=0x01,B=2", " C = 0x1F "})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := []Rate{{"A", 1}, {"B", 2}, {"C", 0x1F}}
	got := tbl.Rates()
	if len(got) != len(want) {
		t.Fatalf("Parse() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Parse()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	for _, bad := range [][]string{nil, {"A"}, {"A=zz"}, {"A=0x100"}, {""}} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("Parse(%q) succeeded", bad)
		}
	}
}
