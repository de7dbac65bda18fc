package convert

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func workbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	rows := [][]any{
		{"Счет на оплату № 12 от 05.03.2024"},
		{},
		{"Поставщик:", "ООО Ромашка, ИНН 7701234567"},
		{"№", "Товар", "Кол-во", "Цена", "НДС", "Сумма"},
		{1, "Цемент М500", 10, "450,00", 0, "4500,00"},
		{"Итого:", "", "", "", "", "4 500,00"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.NewSheet("Notes"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellValue("Notes", "A1", "Оплатить до 15.03.2024"); err != nil {
		t.Fatal(err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestWorkbookText(t *testing.T) {
	text, err := WorkbookText(workbook(t))
	if err != nil {
		t.Fatalf("WorkbookText: %v", err)
	}
	for _, line := range []string{
		"Счет на оплату № 12 от 05.03.2024\n",
		"Поставщик:\tООО Ромашка, ИНН 7701234567\n",
		"1\tЦемент М500\t10\t450,00\t0\t4500,00\n",
		"\n\nОплатить до 15.03.2024",
	} {
		if !strings.Contains(text, line) {
			t.Errorf("text missing %q:\n%s", line, text)
		}
	}
	if strings.Contains(text, "\n\n\n") {
		t.Errorf("empty rows kept:\n%q", text)
	}
}

type stubExtractor struct {
	called bool
}

func (s *stubExtractor) ExtractText(context.Context, string, []byte) (OfficeText, error) {
	s.called = true
	return OfficeText{Text: "from script"}, nil
}

func TestXLSXExtractorRouting(t *testing.T) {
	script := &stubExtractor{}
	x := NewXLSXExtractor(script, zap.NewNop())

	got, err := x.ExtractText(context.Background(), "xlsx", workbook(t))
	if err != nil || script.called || got.Text == "from script" {
		t.Fatalf("xlsx not read natively: %+v, %v, script called %v", got, err, script.called)
	}

	got, err = x.ExtractText(context.Background(), "docx", []byte("doc"))
	if err != nil || got.Text != "from script" {
		t.Errorf("docx: %+v, %v", got, err)
	}

	script.called = false
	got, err = x.ExtractText(context.Background(), "xlsx", []byte("not a zip"))
	if err != nil || !script.called {
		t.Errorf("broken xlsx not passed to script: %+v, %v", got, err)
	}

	if _, err := NewXLSXExtractor(nil, zap.NewNop()).ExtractText(context.Background(), "doc", nil); !errors.Is(err, ErrConversion) {
		t.Errorf("err = %v, want ErrConversion", err)
	}
}
