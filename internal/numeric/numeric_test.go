package numeric

import "testing"

func TestParseFloat(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		// Both separators: the last one is decimal.
		{"1,234.56", 1234.56},
		{"1.234,56", 1234.56},
		{"1,234,567.89", 1234567.89},
		{"1.234.567,89", 1234567.89},

		// Single separator, short trailing fragment = decimal.
		{"3,5", 3.5},
		{"1234.56", 1234.56},
		{"0.5", 0.5},

		// Single separator, three-digit fragment = thousands grouping.
		{"10.000", 10000},
		{"10,000", 10000},
		{"1.234.567", 1234567},

		// Currency and filler tokens.
		{"Rp 10.000", 10000},
		{"Rp. 15.500", 15500},
		{"IDR 25000", 25000},
		{"$1,234.56", 1234.56},
		{"Total: 12.000", 12000},

		// Magnitude suffixes.
		{"10k", 10000},
		{"10K", 10000},
		{"1.5k", 1500},
		{"2m", 2000000},
		{"1.2M", 1200000},

		// Alternative grouping.
		{"10 000", 10000},
		{"1'234'567", 1234567},

		// Plain numbers.
		{"42", 42},
		{"0", 0},
	}
	for _, tt := range tests {
		if got := ParseFloat(tt.in, -1); got != tt.want {
			t.Errorf("ParseFloat(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseFloatDefault(t *testing.T) {
	tests := []string{"", "   ", "abc", "-", "...", "Rp"}
	for _, in := range tests {
		if got := ParseFloat(in, 99); got != 99 {
			t.Errorf("ParseFloat(%q) = %v, want default 99", in, got)
		}
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		in   string
		def  int
		want int
	}{
		{"12", 0, 12},
		{"12.7", 0, 12},
		{"3,5", 0, 3},
		{"10.000", 0, 10000},
		{"garbage", 7, 7},
		{"", 7, 7},
	}
	for _, tt := range tests {
		if got := ParseInt(tt.in, tt.def); got != tt.want {
			t.Errorf("ParseInt(%q, %d) = %d, want %d", tt.in, tt.def, got, tt.want)
		}
	}
}
