package sheetbars

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func testPatterns(t *testing.T) *patterns {
	t.Helper()
	rx, err := DefaultSettings().compile()
	require.NoError(t, err)
	return rx
}

func TestDetect_EndMarkerInLaterCell(t *testing.T) {
	g := newSheetGrid("S", [][]string{
		{"Name", "Email", "Extra"},
		{"{{#each people}}{{name}}", "{{email}}{{/each}}", "{{after}}"},
	})
	rp, ok := g.detect(testPatterns(t), 2, 1)
	require.True(t, ok)

	assert.Equal(t, "people", rp.path)
	assert.Equal(t, 2, rp.row)
	assert.Equal(t, 1, rp.startCol)
	assert.Equal(t, 2, rp.endCol)
	assert.Equal(t, []string{"{{#each people}}{{name}}", "{{email}}{{/each}}"}, rp.templates)
	assert.True(t, rp.hasOuter, "C2 лежит вне захваченного диапазона")

	// вся строка от начала блока до правого края занята, включая C2
	for c := 1; c <= 3; c++ {
		assert.True(t, g.isIgnored(2, c), "col %d", c)
	}
	assert.False(t, g.isIgnored(1, 1))
}

func TestDetect_EndMarkerInSameCell(t *testing.T) {
	g := newSheetGrid("S", [][]string{
		{"Items:", "{{#each  items }}{{this}}{{/each}}", "", "x"},
	})
	rp, ok := g.detect(testPatterns(t), 1, 2)
	require.True(t, ok)
	assert.Equal(t, "items", rp.path)
	assert.Equal(t, 2, rp.startCol)
	assert.Equal(t, 2, rp.endCol)
	assert.Len(t, rp.templates, 1)
	assert.True(t, rp.hasOuter)
	assert.True(t, g.isIgnored(1, 4))
}

func TestDetect_NoEndMarkerUsesSheetExtent(t *testing.T) {
	g := newSheetGrid("S", [][]string{
		{"a", "b", "c", "d"},
		{"{{#each}}{{x}}", "{{y}}"},
	})
	rp, ok := g.detect(testPatterns(t), 2, 1)
	require.True(t, ok)
	assert.Equal(t, "", rp.path)
	assert.Equal(t, 4, rp.endCol)
	assert.Equal(t, []string{"{{#each}}{{x}}", "{{y}}", "", ""}, rp.templates)
	assert.False(t, rp.hasOuter)
}

func TestDetect_NotARepeater(t *testing.T) {
	g := newSheetGrid("S", [][]string{{"{{name}}"}})
	_, ok := g.detect(testPatterns(t), 1, 1)
	assert.False(t, ok)
	assert.Empty(t, g.ignored)
}

func TestSortRepeaters_BottomFirst(t *testing.T) {
	rps := []*repeater{
		{sheet: "A", row: 2, startCol: 1},
		{sheet: "A", row: 9, startCol: 1},
		{sheet: "B", row: 1, startCol: 1},
		{sheet: "A", row: 5, startCol: 1},
	}
	sortRepeaters(rps)
	var got []int
	for _, rp := range rps {
		if rp.sheet == "A" {
			got = append(got, rp.row)
		}
	}
	assert.Equal(t, []int{9, 5, 2}, got)
}

func TestShiftFormulaRow(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"B3*2", "B5*2"},
		{"SUM(B3:D3)", "SUM(B5:D5)"},
		{"$B$3+B$3+$B3", "$B$3+B$3+$B5"},
		{"B2+B3+B4", "B2+B5+B4"},
		{`IF(B3>0,"B3",C3)`, `IF(B5>0,"B3",C5)`},
		{"'Other'!B3+Other!B3+B3", "'Other'!B3+Other!B3+B5"},
		{"LOG10(B3)", "LOG10(B5)"},
		{"ABCD3", "ABCD3"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, shiftFormulaRow(c.in, 3, 5), c.in)
	}
	assert.Equal(t, "B3*2", shiftFormulaRow("B3*2", 3, 3))
}

func TestCaptureFixed(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "{{#each xs}}{{x}}"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", 5))
	require.NoError(t, f.SetCellValue("Sheet1", "C1", "итого"))
	require.NoError(t, f.SetCellFormula("Sheet1", "D1", "B1*2"))
	require.NoError(t, f.SetCellValue("Sheet1", "E1", "{{/each}}"))
	tmpl := &Template{f: f}

	rp := &repeater{sheet: "Sheet1", row: 1, startCol: 1, endCol: 5,
		templates: []string{"{{#each xs}}{{x}}", "5", "итого", "", "{{/each}}"}}
	require.NoError(t, tmpl.captureFixed(testPatterns(t), rp))
	assert.Equal(t, map[int]interface{}{1: 5.0, 2: "итого"}, rp.literals)
	assert.Equal(t, map[int]string{3: "B1*2"}, rp.formulas)
}
