package pgbulk_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

func TestTableName_Quoted(t *testing.T) {
	tn, err := pgbulk.ParseTableName("sales.Orders")
	if err != nil {
		t.Fatal(err)
	}
	if got := tn.Quoted(); got != `"sales"."Orders"` {
		t.Errorf("Quoted() = %s", got)
	}
	if got := (pgbulk.TableName{Name: `we"ird`}).Quoted(); got != `"we""ird"` {
		t.Errorf("Quoted() = %s", got)
	}
	if tn.String() != "sales.Orders" {
		t.Errorf("String() = %s", tn.String())
	}
}

func TestTableName_WithSuffix(t *testing.T) {
	suffix := pgbulk.StagingSuffix("0a1b2c3d-4e5f-6a7b-8c9d-0e1f2a3b4c5d")
	if len(suffix) != pgbulk.StagingSuffixLength || strings.Contains(suffix, "-") {
		t.Fatalf("suffix %q", suffix)
	}

	short := pgbulk.TableName{Schema: "s", Name: "orders"}.WithSuffix(suffix)
	if short.Schema != "s" || short.Name != "orders"+suffix {
		t.Errorf("got %+v", short)
	}

	long := pgbulk.TableName{Name: strings.Repeat("t", 60)}.WithSuffix(suffix)
	if len(long.Name) != pgbulk.MaxIdentifierLength || !strings.HasSuffix(long.Name, suffix) {
		t.Errorf("long name %q (%d bytes)", long.Name, len(long.Name))
	}

	multibyte := pgbulk.TableName{Name: strings.Repeat("é", 20)}.WithSuffix(suffix)
	if len(multibyte.Name) > pgbulk.MaxIdentifierLength || !utf8.ValidString(multibyte.Name) {
		t.Errorf("multibyte name %q (%d bytes)", multibyte.Name, len(multibyte.Name))
	}
}

func TestTruncateIdentifier(t *testing.T) {
	if got := pgbulk.TruncateIdentifier("abc", 5); got != "abc" {
		t.Errorf("got %q", got)
	}
	if got := pgbulk.TruncateIdentifier("abcdef", 3); got != "abc" {
		t.Errorf("got %q", got)
	}
	if got := pgbulk.TruncateIdentifier("aéb", 2); got != "a" {
		t.Errorf("got %q", got)
	}
	if got := pgbulk.TruncateIdentifier("abc", 0); got != "" {
		t.Errorf("got %q", got)
	}
}
