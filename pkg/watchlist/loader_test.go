package watchlist

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleCSV = `SHORTNAME,SYMBOL,TRADINGDATE,avail_vol,total_vol,close,FB_FLAG,ZB_FLAG,SECOND_FLAG,extra_col
贵州茅台,600519.SH,2026-08-06,700,700,1800.00,1,0,0,ignored
宁德时代,300750.SZ,2026-08-06,500,500,200.00,0,1,0,ignored
`

func writeCSV(t *testing.T, contents string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "watchlist.csv")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestLoadParsesRowsAndUnknownColumnsIgnored(t *testing.T) {
	path := writeCSV(t, sampleCSV)
	list, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(list.Symbols()) != 2 {
		t.Fatalf("expected 2 symbols, got %d", len(list.Symbols()))
	}

	s, ok := list.Get("600519.SH")
	if !ok {
		t.Fatal("expected 600519.SH to be loaded")
	}
	if !s.Params.FBFlag || s.Params.ZBFlag {
		t.Errorf("unexpected flags for 600519.SH: %+v", s.Params)
	}
	if s.Params.Condition() != "fb" {
		t.Errorf("Condition() = %q, want fb", s.Params.Condition())
	}
	if s.Runtime.ZTPrice != 1980.00 {
		t.Errorf("ZTPrice = %v, want 1980.00", s.Runtime.ZTPrice)
	}
}

func TestLoadDerivesChiNextLimitRatio(t *testing.T) {
	path := writeCSV(t, sampleCSV)
	list, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s, _ := list.Get("300750.SZ")
	if s.Params.LimitRatio != 0.20 {
		t.Errorf("LimitRatio = %v, want 0.20", s.Params.LimitRatio)
	}
	if s.Params.Condition() != "zb" {
		t.Errorf("Condition() = %q, want zb", s.Params.Condition())
	}
}

func TestLoadRejectsMissingColumn(t *testing.T) {
	path := writeCSV(t, "SHORTNAME,SYMBOL,TRADINGDATE\nfoo,600519.SH,2026-08-06\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing required columns")
	}
}

func TestLoadRejectsDuplicateSymbol(t *testing.T) {
	dup := sampleCSV + "贵州茅台,600519.SH,2026-08-06,700,700,1800.00,1,0,0,again\n"
	path := writeCSV(t, dup)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for duplicate symbol")
	}
}

func TestLoadRejectsInvalidSymbol(t *testing.T) {
	bad := "SHORTNAME,SYMBOL,TRADINGDATE,avail_vol,total_vol,close,FB_FLAG,ZB_FLAG,SECOND_FLAG\nfoo,900001.SH,2026-08-06,100,100,10.00,0,0,0\n"
	path := writeCSV(t, bad)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unrecognized exchange prefix")
	}
}

func TestLatchAvailAfterAuctionOnlyAppliesOnce(t *testing.T) {
	var r Runtime
	r.LatchAvailAfterAuction(500)
	r.LatchAvailAfterAuction(900)
	if r.AvailAfterAuction != 500 {
		t.Errorf("AvailAfterAuction = %d, want 500 (first latch wins)", r.AvailAfterAuction)
	}
}
