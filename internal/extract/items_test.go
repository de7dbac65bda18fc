package extract

import "testing"

func TestFindLineItems(t *testing.T) {
	text := "№ Наименование Кол-во Цена НДС Сумма\n" +
		"1 Цемент М500 шт 10 450,00 0 4500,00\n" +
		"2 Песок речной т 5 800 0 4000\n" +
		"Итого: 8 500,00\n"

	items := findLineItems(text)
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2: %+v", len(items), items)
	}

	want := []LineItem{
		{Name: ptr("Цемент М500"), Unit: ptr("шт"), Quantity: ptr("10"), UnitPrice: ptr("450,00"), Tax: ptr("0"), Amount: ptr("4500,00")},
		{Name: ptr("Песок речной"), Unit: ptr("т"), Quantity: ptr("5"), UnitPrice: ptr("800"), Tax: ptr("0"), Amount: ptr("4000")},
	}
	for i, w := range want {
		got := items[i]
		for _, c := range []struct {
			field     string
			got, want *string
		}{
			{"name", got.Name, w.Name},
			{"unit", got.Unit, w.Unit},
			{"quantity", got.Quantity, w.Quantity},
			{"unitPrice", got.UnitPrice, w.UnitPrice},
			{"tax", got.Tax, w.Tax},
			{"amount", got.Amount, w.Amount},
		} {
			if str(c.got) != str(c.want) {
				t.Errorf("item %d %s = %q, want %q", i, c.field, str(c.got), str(c.want))
			}
		}
	}
}

func TestFindLineItemsWithoutDescription(t *testing.T) {
	items := findLineItems("3 120 0 360")
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].Name != nil || items[0].Unit != nil {
		t.Errorf("name %q unit %q, want both nil", str(items[0].Name), str(items[0].Unit))
	}
}

func TestFindLineItemsNone(t *testing.T) {
	items := findLineItems("Итого: 15 000,50\nНДС: 2 500")
	if items == nil || len(items) != 0 {
		t.Errorf("items = %#v, want empty non-nil", items)
	}
}
