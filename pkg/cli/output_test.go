package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

type slotTable [][]string

func (t slotTable) Header() []string { return []string{"SLOT", "CAPACITY", "BOOKED"} }
func (t slotTable) Rows() [][]string { return t }

var testTable = slotTable{
	{"cap-7/2026-11-02/09:00", "12", "3"},
	{"cap-7/2026-11-02/14:30", "8", "8"},
}

func TestTextFormatter(t *testing.T) {
	formatter := &TextFormatter{}

	output, err := formatter.Format("test message")
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if string(output) != "test message\n" {
		t.Errorf("Format() = %q, want %q", string(output), "test message\n")
	}
}

func TestTextFormatterTable(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := (&TextFormatter{}).FormatTo(buf, testTable); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}

	want := "SLOT                    CAPACITY  BOOKED\n" +
		"cap-7/2026-11-02/09:00  12        3\n" +
		"cap-7/2026-11-02/14:30  8         8\n"
	if buf.String() != want {
		t.Errorf("FormatTo() =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestJSONFormatter(t *testing.T) {
	tests := []struct {
		name   string
		data   any
		indent bool
	}{
		{
			name:   "simple string",
			data:   "test",
			indent: false,
		},
		{
			name:   "map with indent",
			data:   map[string]string{"key": "value"},
			indent: true,
		},
		{
			name: "struct",
			data: struct {
				Name  string `json:"name"`
				Value int    `json:"value"`
			}{
				Name:  "test",
				Value: 42,
			},
			indent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatter := &JSONFormatter{Indent: tt.indent}
			output, err := formatter.Format(tt.data)
			if err != nil {
				t.Fatalf("Format() error = %v", err)
			}

			var result any
			if err := json.Unmarshal(output, &result); err != nil {
				t.Errorf("Format() produced invalid JSON: %v", err)
			}
		})
	}
}

func TestCSVFormatter(t *testing.T) {
	formatter := &CSVFormatter{}

	output, err := formatter.Format(testTable)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	want := "SLOT,CAPACITY,BOOKED\ncap-7/2026-11-02/09:00,12,3\ncap-7/2026-11-02/14:30,8,8\n"
	if string(output) != want {
		t.Errorf("Format() = %q, want %q", string(output), want)
	}

	if _, err := formatter.Format(map[string]int{"a": 1}); err == nil {
		t.Error("Format() should reject values that are not Tabular")
	}
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format  string
		want    string
		wantErr bool
	}{
		{format: "text", want: "*cli.TextFormatter"},
		{format: "", want: "*cli.TextFormatter"},
		{format: "json", want: "*cli.JSONFormatter"},
		{format: "JSON", want: "*cli.JSONFormatter"},
		{format: "csv", want: "*cli.CSVFormatter"},
		{format: "yaml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			formatter, err := NewFormatter(tt.format)
			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), tt.format) {
					t.Errorf("NewFormatter(%q) error = %v, want unknown format", tt.format, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewFormatter(%q) error = %v", tt.format, err)
			}
			if got := fmt.Sprintf("%T", formatter); got != tt.want {
				t.Errorf("NewFormatter(%q) type = %v, want %v", tt.format, got, tt.want)
			}
		})
	}
}
