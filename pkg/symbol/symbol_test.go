package symbol

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		raw     string
		wantEx  Exchange
		wantErr bool
	}{
		{"600519.SH", ExchangeSH, false},
		{"688981.SH", ExchangeSH, false},
		{"300750.SZ", ExchangeSZ, false},
		{"000001.SZ", ExchangeSZ, false},
		{"600519.SZ", "", true}, // wrong suffix for prefix
		{"900001.SH", "", true}, // unrecognized prefix
		{"60051.SH", "", true},  // short code
		{"600519", "", true},    // missing suffix
	}
	for _, c := range cases {
		got, err := Parse(c.raw)
		if c.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): expected error, got %+v", c.raw, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Parse(%q): unexpected error: %v", c.raw, err)
		}
		if got.Exchange != c.wantEx {
			t.Errorf("Parse(%q): exchange = %s, want %s", c.raw, got.Exchange, c.wantEx)
		}
	}
}

func TestLimitRatio(t *testing.T) {
	cases := []struct {
		code string
		st   bool
		want float64
	}{
		{"600519", false, 0.10},
		{"300750", false, 0.20},
		{"688981", false, 0.20},
		{"600519", true, 0.05},
		{"000001", false, 0.10},
	}
	for _, c := range cases {
		if got := LimitRatio(c.code, c.st); got != c.want {
			t.Errorf("LimitRatio(%q, %v) = %v, want %v", c.code, c.st, got, c.want)
		}
	}
}

func TestLimitPrice(t *testing.T) {
	up, down := LimitPrice(1800.00, 0.10)
	if up != 1980.00 {
		t.Errorf("up = %v, want 1980.00", up)
	}
	if down != 1620.00 {
		t.Errorf("down = %v, want 1620.00", down)
	}

	up, down = LimitPrice(300.00, 0.20)
	if up != 360.00 || down != 240.00 {
		t.Errorf("got up=%v down=%v, want up=360.00 down=240.00", up, down)
	}
}

func TestCeilTick(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{1.07 * 1800, 1926.00},
		{1.015 * 3000, 3045.00},
		{1.01 * 100, 101.00},
	}
	for _, c := range cases {
		if got := CeilTick(c.in); got != c.want {
			t.Errorf("CeilTick(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestToSymbol(t *testing.T) {
	got, err := ToSymbol("600519")
	if err != nil || got != "600519.SH" {
		t.Errorf("ToSymbol(600519) = %q, %v", got, err)
	}
	if _, err := ToSymbol("900001"); err == nil {
		t.Error("expected error for unrecognized prefix")
	}
}

func TestIsSTName(t *testing.T) {
	if !IsSTName("ST瑞德") {
		t.Error("expected ST marker to be detected")
	}
	if !IsSTName("*ST中安") {
		t.Error("expected *ST marker to be detected")
	}
	if IsSTName("贵州茅台") {
		t.Error("did not expect ST marker")
	}
}
