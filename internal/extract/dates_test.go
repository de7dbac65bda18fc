package extract

import (
	"fmt"
	"testing"
)

func TestIssueDateMonthNames(t *testing.T) {
	months := []string{
		"января", "февраля", "марта", "апреля", "мая", "июня",
		"июля", "августа", "сентября", "октября", "ноября", "декабря",
	}
	for i, m := range months {
		want := fmt.Sprintf("2024-%02d-05", i+1)
		if got := str(findIssueDate("от 5 " + m + " 2024")); got != want {
			t.Errorf("от 5 %s 2024: got %q, want %q", m, got, want)
		}
	}
}

func TestIssueDateNominativeAndUnknownMonth(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"от 5 март 2024", "2024-03-05"},
		{"от 17 Декабрь 2023", "2023-12-17"},
		{"от 5 мартобря 2024", "2024-01-05"},
		{"от 9 ЯНВАРЯ 2025", "2025-01-09"},
	}
	for _, tt := range tests {
		if got := str(findIssueDate(tt.text)); got != tt.want {
			t.Errorf("%q: got %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestIssueDateNumeric(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Счет № 12 от 05.03.2024", "2024-03-05"},
		{"Дата: 5/3/24", "2024-03-05"},
		{"Дата счета: 28-02-2024", "2024-02-28"},
		{"Date: 01.12.2023", "2023-12-01"},
		{"Счет № 12\nот 1.2.2024", "2024-02-01"},
		// "от" inside a word is not a label.
		{"Работы 05.03.2024", "<nil>"},
	}
	for _, tt := range tests {
		if got := str(findIssueDate(tt.text)); got != tt.want {
			t.Errorf("%q: got %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestDueDate(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Оплатить до 15.03.2024", "2024-03-15"},
		{"Срок оплаты: 1 апреля 2024", "2024-04-01"},
		{"Счет действителен до 20.04.2024", "2024-04-20"},
		{"Счет № 1 от 01.03.2024", "<nil>"},
	}
	for _, tt := range tests {
		if got := str(findDueDate(tt.text)); got != tt.want {
			t.Errorf("%q: got %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"05.03.2024", "2024-03-05", true},
		{" 5 марта 2024 г.", "2024-03-05", true},
		{"31/12/23", "2023-12-31", true},
		{"вчера", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseDate(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseDate(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestMonthNumber(t *testing.T) {
	if got := MonthNumber("Сентября"); got != "09" {
		t.Errorf("MonthNumber(Сентября) = %q", got)
	}
	if got := MonthNumber("???"); got != "01" {
		t.Errorf("MonthNumber(???) = %q, want 01", got)
	}
}
