package service

import (
	"errors"
	"reflect"
	"testing"
)

const sampleResponse = `{
	"references": "Pepe the Frog",
	"template": "Pepe",
	"caption": "feels good man",
	"description": "A smug green frog.",
	"meaning": "Expresses satisfaction.",
	"tags": ["pepe", "frog"]
}`

// TestParseResponseFenceEquivalence checks that a reply wrapped in a
// markdown code fence parses identically to the bare JSON.
func TestParseResponseFenceEquivalence(t *testing.T) {
	variants := map[string]string{
		"bare":            sampleResponse,
		"fenced":          "```\n" + sampleResponse + "\n```",
		"fenced json":     "```json\n" + sampleResponse + "\n```",
		"padded":          "\n\n  " + sampleResponse + "  \n",
		"fenced padded":   "  ```json\n" + sampleResponse + "\n```  ",
	}

	want, err := parseResponse(sampleResponse)
	if err != nil {
		t.Fatalf("parseResponse(bare): %v", err)
	}

	for name, raw := range variants {
		t.Run(name, func(t *testing.T) {
			got, err := parseResponse(raw)
			if err != nil {
				t.Fatalf("parseResponse: %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("parse differs from bare JSON:\ngot  %+v\nwant %+v", got, want)
			}
		})
	}

	if want.Fields.Template == nil || *want.Fields.Template != "Pepe" {
		t.Errorf("template not parsed: %+v", want.Fields)
	}
	if !reflect.DeepEqual(want.Tags, []string{"pepe", "frog"}) {
		t.Errorf("tags = %v", want.Tags)
	}
}

func TestParseResponseRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "   ", "```\n```", "not json at all", "[1,2,3]"} {
		if _, err := parseResponse(raw); !errors.Is(err, ErrParse) {
			t.Errorf("parseResponse(%q): got %v, want ErrParse", raw, err)
		}
	}
}

// TestParseResponseFieldShapes covers the model returning lists, nulls and
// non-string values where strings were requested.
func TestParseResponseFieldShapes(t *testing.T) {
	raw := `{
		"references": ["Pepe", "Wojak"],
		"template": null,
		"caption": 42,
		"description": "ok"
	}`

	got, err := parseResponse(raw)
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}

	if got.Fields.References == nil || *got.Fields.References != "Pepe\nWojak" {
		t.Errorf("references = %v, want joined list", got.Fields.References)
	}
	if got.Fields.Template != nil {
		t.Errorf("template = %q, want unset", *got.Fields.Template)
	}
	if got.Fields.Caption == nil || *got.Fields.Caption != "42" {
		t.Errorf("caption = %v, want raw JSON text", got.Fields.Caption)
	}
	if got.Fields.Meaning != nil {
		t.Errorf("meaning = %q, want unset for absent field", *got.Fields.Meaning)
	}
	if got.Tags != nil {
		t.Errorf("tags = %v, want none", got.Tags)
	}
}

func TestParseTags(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{
			name: "comma separated string",
			raw:  `"pepe, Wojak , unknown_tag"`,
			want: []string{"pepe", "Wojak", "unknown_tag"},
		},
		{
			name: "newline separated string",
			raw:  "\"pepe\\nwojak\"",
			want: []string{"pepe", "wojak"},
		},
		{
			name: "list",
			raw:  `["pepe", "wojak"]`,
			want: []string{"pepe", "wojak"},
		},
		{
			name: "case-insensitive dedupe keeps first",
			raw:  `["Pepe", "pepe", "PEPE", "wojak"]`,
			want: []string{"Pepe", "wojak"},
		},
		{
			name: "blank entries dropped",
			raw:  `" , pepe,, "`,
			want: []string{"pepe"},
		},
		{
			name: "null",
			raw:  `null`,
			want: nil,
		},
		{
			name: "unusable shape",
			raw:  `{"pepe": true}`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTags([]byte(tt.raw))
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseTags(%s) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestStripFencesKeepsInlineBraces(t *testing.T) {
	// A fence marker followed directly by JSON on the same line.
	raw := "```{\"description\": \"x\"}```"
	if got := stripFences(raw); got != `{"description": "x"}` {
		t.Errorf("stripFences = %q", got)
	}
}
