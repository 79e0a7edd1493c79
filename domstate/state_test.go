package domstate

import (
	"encoding/json"
	"testing"
)

func TestMerge_SourceWinsPerKey(t *testing.T) {
	a := ElementState{
		Attributes: map[string]string{"k": "a", "only-a": "1"},
		Properties: map[string]any{"value": "a"},
		Scroll:     &Scroll{Top: 1},
	}
	b := ElementState{
		Attributes: map[string]string{"k": "b"},
		Dataset:    map[string]string{"open": "true"},
	}

	got := Merge(a, b)
	if got.Attributes["k"] != "b" {
		t.Errorf("attributes[k]: got %q, want b", got.Attributes["k"])
	}
	if got.Attributes["only-a"] != "1" {
		t.Errorf("attributes[only-a]: got %q, want 1", got.Attributes["only-a"])
	}
	if got.Properties["value"] != "a" {
		t.Errorf("properties kept from target: got %v", got.Properties["value"])
	}
	if got.Dataset["open"] != "true" {
		t.Errorf("dataset from source: got %v", got.Dataset)
	}
	if got.Scroll == nil || got.Scroll.Top != 1 {
		t.Errorf("scroll falls back to target: got %+v", got.Scroll)
	}

	b.Scroll = &Scroll{Top: 40}
	b.Focused = boolPtr(true)
	got = Merge(a, b)
	if got.Scroll.Top != 40 {
		t.Errorf("scroll from source: got %+v", got.Scroll)
	}
	if got.Focused == nil || !*got.Focused {
		t.Errorf("focused from source: got %v", got.Focused)
	}
}

func TestMerge_DoesNotWriteThrough(t *testing.T) {
	a := ElementState{Attributes: map[string]string{"x": "1"}}
	b := ElementState{Attributes: map[string]string{"y": "2"}}

	got := Merge(a, b)
	got.Attributes["z"] = "3"

	if len(a.Attributes) != 1 || len(b.Attributes) != 1 {
		t.Fatalf("inputs modified: a=%v b=%v", a.Attributes, b.Attributes)
	}
}

func TestMerge_AbsentStaysAbsent(t *testing.T) {
	got := Merge(ElementState{Properties: map[string]any{"value": "x"}}, ElementState{})
	if got.Attributes != nil || got.Dataset != nil {
		t.Fatalf("empty categories should stay nil: %+v", got)
	}
	data, err := json.Marshal(got)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"properties":{"value":"x"}}` {
		t.Errorf("json: got %s", data)
	}
}

func TestElementState_IsEmpty(t *testing.T) {
	if !(ElementState{}).IsEmpty() {
		t.Error("zero state should be empty")
	}
	if (ElementState{Focused: boolPtr(true)}).IsEmpty() {
		t.Error("focused state should not be empty")
	}
	if !(ElementState{Attributes: map[string]string{}}).IsEmpty() {
		t.Error("empty map counts as absent")
	}
}

func TestPage_JSONKeepsOrder(t *testing.T) {
	p := NewPage(
		Entry{Selector: "#z", State: ElementState{Properties: map[string]any{"value": "1"}}},
		Entry{Selector: "#a", State: ElementState{Scroll: &Scroll{Top: 40}}},
		Entry{Selector: "#m", State: ElementState{Focused: boolPtr(true)}},
	)

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"#z":{"properties":{"value":"1"}},"#a":{"scroll":{"top":40,"left":0}},"#m":{"focused":true}}`
	if string(data) != want {
		t.Fatalf("marshal:\n got %s\nwant %s", data, want)
	}

	var got Page
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	sels := got.Selectors()
	if len(sels) != 3 || sels[0] != "#z" || sels[1] != "#a" || sels[2] != "#m" {
		t.Fatalf("order: got %v", sels)
	}
	st, _ := got.Get("#a")
	if st.Scroll == nil || st.Scroll.Top != 40 {
		t.Errorf("scroll: got %+v", st.Scroll)
	}
}

func TestPage_UnmarshalNumbersAsFloat(t *testing.T) {
	var p Page
	if err := json.Unmarshal([]byte(`{"select":{"properties":{"selectedIndex":2}}}`), &p); err != nil {
		t.Fatal(err)
	}
	st, _ := p.Get("select")
	if v, ok := st.Properties["selectedIndex"].(float64); !ok || v != 2 {
		t.Fatalf("selectedIndex: got %T %v", st.Properties["selectedIndex"], st.Properties["selectedIndex"])
	}
}

func TestPage_UnmarshalRejectsNonObject(t *testing.T) {
	var p Page
	if err := json.Unmarshal([]byte(`["#a"]`), &p); err == nil {
		t.Fatal("expected error for array input")
	}
}

func TestTruthy(t *testing.T) {
	cases := []struct {
		v    any
		want bool
	}{
		{nil, false}, {"", false}, {"x", true}, {false, false}, {true, true},
		{0.0, false}, {1.5, true}, {0, false}, {3, true},
	}
	for _, c := range cases {
		if got := truthy(c.v); got != c.want {
			t.Errorf("truthy(%#v): got %v, want %v", c.v, got, c.want)
		}
	}
}
