package fact

import (
	"testing"
)

func TestNewStampsSchema(t *testing.T) {
	f, err := New(TypeQueryPaid, 7, QueryPaid{
		ID: 7, Payer: "dat1payer", AmountPaid: 100, FeePaid: 2, CreatorShare: 98,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if f.SchemaVersion != SchemaVersion {
		t.Errorf("schemaVersion = %d, want %d", f.SchemaVersion, SchemaVersion)
	}
	if f.Type != TypeQueryPaid {
		t.Errorf("type = %s, want %s", f.Type, TypeQueryPaid)
	}
	if f.AssetID != 7 {
		t.Errorf("assetId = %d, want 7", f.AssetID)
	}
	if f.Timestamp.IsZero() {
		t.Error("timestamp not stamped")
	}
	if f.Seq != 0 {
		t.Errorf("seq = %d before journal append, want 0", f.Seq)
	}
}

func TestDecodeQueryPaid(t *testing.T) {
	f, err := New(TypeQueryPaid, 3, QueryPaid{
		ID: 3, Payer: "dat1payer", AmountPaid: 100, FeePaid: 2, CreatorShare: 98,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	p, err := DecodeQueryPaid(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.FeePaid+p.CreatorShare != p.AmountPaid {
		t.Errorf("split %d+%d != %d", p.FeePaid, p.CreatorShare, p.AmountPaid)
	}
	if p.Payer != "dat1payer" {
		t.Errorf("payer = %q", p.Payer)
	}
}

func TestDecodeRejectsWrongType(t *testing.T) {
	f, err := New(TypePriceUpdated, 3, PriceUpdated{ID: 3, NewPrice: 150})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := DecodeQueryPaid(f); err == nil {
		t.Fatal("expected type mismatch error")
	}
}

func TestDecodeRejectsUnknownSchemaVersion(t *testing.T) {
	f, err := New(TypePriceUpdated, 3, PriceUpdated{ID: 3, NewPrice: 150})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	f.SchemaVersion = 99
	if _, err := DecodePriceUpdated(f); err == nil {
		t.Fatal("expected schema version error")
	}
}

func TestField(t *testing.T) {
	f, err := New(TypeAssetCreated, 11, AssetCreated{
		ID: 11, Creator: "dat1alice", ContentRef: "Qm123", QueryPrice: 500,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := f.Field("creator").String(); got != "dat1alice" {
		t.Errorf("creator field = %q, want dat1alice", got)
	}
	if got := f.Field("queryPrice").Uint(); got != 500 {
		t.Errorf("queryPrice field = %d, want 500", got)
	}
	if f.Field("nope").Exists() {
		t.Error("unexpected field present")
	}
}
