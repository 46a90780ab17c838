package sheetbars

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// -----------------------------
// Повторители {{#each path}} ... {{/each}}
// -----------------------------

// cellRef — адрес ячейки (1-based)
type cellRef struct {
	row int
	col int
}

// repeater — однострочный блок, найденный при сканировании листа.
// Создаётся и расходуется в пределах одного Apply.
type repeater struct {
	sheet    string
	path     string
	row      int
	startCol int
	endCol   int
	// templates[i] — исходный текст колонки startCol+i
	templates []string
	// на строке есть содержимое вне [startCol, endCol]
	hasOuter bool
	// колонки без плейсхолдеров: типизированное значение либо формула
	literals map[int]interface{}
	formulas map[int]string
}

func (rp *repeater) cell() string {
	addr, _ := excelize.CoordinatesToCellName(rp.startCol, rp.row)
	return addr
}

// sheetGrid — снимок исходных текстов листа и множество занятых повторителями ячеек
type sheetGrid struct {
	name    string
	rows    [][]string
	maxCol  int
	ignored map[cellRef]struct{}
}

func newSheetGrid(name string, rows [][]string) *sheetGrid {
	g := &sheetGrid{name: name, rows: rows, ignored: map[cellRef]struct{}{}}
	for _, row := range rows {
		if len(row) > g.maxCol {
			g.maxCol = len(row)
		}
	}
	return g
}

func (g *sheetGrid) text(row, col int) string {
	if row < 1 || row > len(g.rows) {
		return ""
	}
	r := g.rows[row-1]
	if col < 1 || col > len(r) {
		return ""
	}
	return r[col-1]
}

func (g *sheetGrid) isIgnored(row, col int) bool {
	_, ok := g.ignored[cellRef{row: row, col: col}]
	return ok
}

// detect проверяет ячейку на открывающий маркер и, если он есть, захватывает диапазон
// до первого закрывающего маркера на той же строке (или до правого края листа).
// Все ячейки строки от startCol до правого края помечаются занятыми.
func (g *sheetGrid) detect(rx *patterns, row, col int) (*repeater, bool) {
	m := rx.start.FindStringSubmatchIndex(g.text(row, col))
	if m == nil {
		return nil, false
	}
	text := g.text(row, col)
	var path string
	if len(m) >= 4 && m[2] >= 0 {
		path = strings.TrimSpace(text[m[2]:m[3]])
	}

	usedEnd := g.maxCol
	if usedEnd < col {
		usedEnd = col
	}
	endCol := usedEnd
	for c := col; c <= usedEnd; c++ {
		if rx.end.MatchString(g.text(row, c)) {
			endCol = c
			break
		}
	}
	for c := col; c <= usedEnd; c++ {
		g.ignored[cellRef{row: row, col: c}] = struct{}{}
	}

	rp := &repeater{sheet: g.name, path: path, row: row, startCol: col, endCol: endCol}
	for c := col; c <= endCol; c++ {
		rp.templates = append(rp.templates, g.text(row, c))
	}
	for c := 1; c <= len(g.rows[row-1]); c++ {
		if (c < col || c > endCol) && g.text(row, c) != "" {
			rp.hasOuter = true
			break
		}
	}
	return rp, true
}

// sortRepeaters упорядочивает повторители снизу вверх (а на одной строке — справа налево):
// вставка строк для нижнего блока не сдвигает координаты верхних.
func sortRepeaters(rps []*repeater) {
	sort.SliceStable(rps, func(i, j int) bool {
		if rps[i].sheet != rps[j].sheet {
			return rps[i].sheet < rps[j].sheet
		}
		if rps[i].row != rps[j].row {
			return rps[i].row > rps[j].row
		}
		return rps[i].startCol > rps[j].startCol
	})
}

// expand разворачивает повторитель на листе: строка шаблона заменяется len(seq) строками,
// каждая рендерится относительно своего элемента последовательности.
func (t *Template) expand(rw *rewriter, rp *repeater, data interface{}) error {
	src, found := Lookup(data, rp.path)
	if !found {
		rw.misses++
		src = nil
	}
	seq, ok := asSequence(src)
	if !ok {
		if !t.settings.RepeaterSilentOnError {
			return &RepeaterSourceError{Sheet: rp.sheet, Cell: rp.cell(), Path: rp.path, Value: src, Missing: !found}
		}
		t.logger.Warn("источник повторителя не массив, блок будет пустым",
			zap.String("sheet", rp.sheet),
			zap.String("cell", rp.cell()),
			zap.String("path", rp.path),
			zap.Bool("missing", !found),
		)
		seq = nil
	}

	if len(seq) == 0 {
		return t.collapse(rp)
	}

	if err := t.captureFixed(rw.rx, rp); err != nil {
		return err
	}
	look, err := t.captureRowLook(rp)
	if err != nil {
		return err
	}
	if len(seq) > 1 {
		if err := t.f.InsertRows(rp.sheet, rp.row+1, len(seq)-1); err != nil {
			return fmt.Errorf("лист %s: вставка строк: %w", rp.sheet, err)
		}
		for i := 1; i < len(seq); i++ {
			if err := t.applyRowLook(rp, look, rp.row+i); err != nil {
				return err
			}
		}
	}

	// Сначала считаем весь блок, затем пишем построчно через SetSheetRow
	out := make([][]interface{}, len(seq))
	for i, item := range seq {
		vals := make([]interface{}, len(rp.templates))
		for c, tpl := range rp.templates {
			if _, ok := rp.formulas[c]; ok {
				continue
			}
			if v, ok := rp.literals[c]; ok {
				vals[c] = v
				continue
			}
			text := rw.stripMarkers(tpl)
			if text == "" {
				vals[c] = nil
				continue
			}
			v, _ := rw.rewrite(text, item)
			vals[c] = v
		}
		out[i] = vals
	}
	for i, vals := range out {
		addr, _ := excelize.CoordinatesToCellName(rp.startCol, rp.row+i)
		if err := t.f.SetSheetRow(rp.sheet, addr, &vals); err != nil {
			return fmt.Errorf("лист %s, ячейка %s: %w", rp.sheet, addr, err)
		}
		for c, formula := range rp.formulas {
			addr, _ := excelize.CoordinatesToCellName(rp.startCol+c, rp.row+i)
			if err := t.f.SetCellFormula(rp.sheet, addr, shiftFormulaRow(formula, rp.row, rp.row+i)); err != nil {
				return fmt.Errorf("лист %s, ячейка %s: формула: %w", rp.sheet, addr, err)
			}
		}
	}

	t.logger.Debug("повторитель развёрнут",
		zap.String("sheet", rp.sheet),
		zap.String("cell", rp.cell()),
		zap.String("path", rp.path),
		zap.Int("rows", len(seq)),
		zap.Int("cols", len(rp.templates)),
	)
	return nil
}

// captureFixed запоминает колонки блока, которые не нужно рендерить:
// формулы и литералы без маркеров и плейсхолдеров (с исходным типом ячейки).
// Читается непосредственно перед разворотом, т.к. вставка строк нижних блоков правит формулы.
func (t *Template) captureFixed(rx *patterns, rp *repeater) error {
	rp.literals = map[int]interface{}{}
	rp.formulas = map[int]string{}
	for c, tpl := range rp.templates {
		col := rp.startCol + c
		addr, _ := excelize.CoordinatesToCellName(col, rp.row)
		formula, err := t.f.GetCellFormula(rp.sheet, addr)
		if err != nil {
			return fmt.Errorf("лист %s, ячейка %s: формула: %w", rp.sheet, addr, err)
		}
		if formula != "" {
			rp.formulas[c] = formula
			continue
		}
		if tpl == "" || rx.expr.MatchString(tpl) || rx.start.MatchString(tpl) || rx.end.MatchString(tpl) {
			continue
		}
		rp.literals[c] = t.typedCell(rp.sheet, col, rp.row, tpl)
	}
	return nil
}

// refRx — ссылка на ячейку в формуле: $A$1, A1, AB12
var refRx = regexp.MustCompile(`\$?([A-Za-z]{1,3})(\$?)(\d+)`)

// shiftFormulaRow переносит относительные ссылки на строку from в строку to.
// Строковые литералы и имена листов в кавычках не трогаются, ссылки на другие листы тоже.
func shiftFormulaRow(formula string, from, to int) string {
	if from == to {
		return formula
	}
	var sb strings.Builder
	seg := 0
	var quote byte
	for i := 0; i < len(formula); i++ {
		ch := formula[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
				sb.WriteString(formula[seg : i+1])
				seg = i + 1
			}
		case ch == '"' || ch == '\'':
			sb.WriteString(shiftRefs(formula[seg:i], from, to))
			seg = i
			quote = ch
		}
	}
	if quote != 0 {
		sb.WriteString(formula[seg:])
	} else {
		sb.WriteString(shiftRefs(formula[seg:], from, to))
	}
	return sb.String()
}

func shiftRefs(s string, from, to int) string {
	var sb strings.Builder
	last := 0
	for _, m := range refRx.FindAllStringSubmatchIndex(s, -1) {
		if m[0] > 0 && isRefChar(s[m[0]-1]) {
			continue
		}
		if m[1] < len(s) && (isRefChar(s[m[1]]) || s[m[1]] == '(') {
			continue
		}
		// $ перед номером — абсолютная строка
		if m[5] > m[4] {
			continue
		}
		if row, err := strconv.Atoi(s[m[6]:m[7]]); err != nil || row != from {
			continue
		}
		sb.WriteString(s[last:m[6]])
		sb.WriteString(strconv.Itoa(to))
		last = m[1]
	}
	sb.WriteString(s[last:])
	return sb.String()
}

func isRefChar(ch byte) bool {
	return ch == '_' || ch == '.' || ch == '!' ||
		(ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}

// collapse — пустая последовательность: блок исчезает.
// Строка удаляется целиком, если на ней нет ничего, кроме блока.
func (t *Template) collapse(rp *repeater) error {
	if !rp.hasOuter {
		if err := t.f.RemoveRow(rp.sheet, rp.row); err != nil {
			return fmt.Errorf("лист %s: удаление строки %d: %w", rp.sheet, rp.row, err)
		}
		return nil
	}
	for c := rp.startCol; c <= rp.endCol; c++ {
		addr, _ := excelize.CoordinatesToCellName(c, rp.row)
		if err := t.f.SetCellValue(rp.sheet, addr, nil); err != nil {
			return fmt.Errorf("лист %s, ячейка %s: %w", rp.sheet, addr, err)
		}
	}
	return nil
}

// rowLook описывает оформление шаблонной строки: стили, высоту и горизонтальные слияния
type rowLook struct {
	styles map[int]int
	height float64
	merges []struct {
		startCol int
		endCol   int
	}
}

func (t *Template) captureRowLook(rp *repeater) (rowLook, error) {
	look := rowLook{styles: make(map[int]int)}
	for col := rp.startCol; col <= rp.endCol; col++ {
		addr, _ := excelize.CoordinatesToCellName(col, rp.row)
		if sid, err := t.f.GetCellStyle(rp.sheet, addr); err == nil && sid != 0 {
			look.styles[col] = sid
		}
	}
	if h, err := t.f.GetRowHeight(rp.sheet, rp.row); err == nil {
		look.height = h
	}
	merges, err := t.f.GetMergeCells(rp.sheet)
	if err != nil {
		return look, fmt.Errorf("лист %s: чтение слияний: %w", rp.sheet, err)
	}
	for _, m := range merges {
		sc, sr, err1 := excelize.CellNameToCoordinates(m.GetStartAxis())
		ec, er, err2 := excelize.CellNameToCoordinates(m.GetEndAxis())
		if err1 != nil || err2 != nil {
			continue
		}
		if sr == rp.row && er == rp.row && sc >= rp.startCol && ec <= rp.endCol {
			look.merges = append(look.merges, struct{ startCol, endCol int }{startCol: sc, endCol: ec})
		}
	}
	return look, nil
}

func (t *Template) applyRowLook(rp *repeater, look rowLook, dstRow int) error {
	for col, sid := range look.styles {
		addr, _ := excelize.CoordinatesToCellName(col, dstRow)
		if err := t.f.SetCellStyle(rp.sheet, addr, addr, sid); err != nil {
			return fmt.Errorf("лист %s, ячейка %s: стиль: %w", rp.sheet, addr, err)
		}
	}
	if look.height > 0 {
		if err := t.f.SetRowHeight(rp.sheet, dstRow, look.height); err != nil {
			return fmt.Errorf("лист %s: высота строки %d: %w", rp.sheet, dstRow, err)
		}
	}
	for _, mg := range look.merges {
		c1, _ := excelize.CoordinatesToCellName(mg.startCol, dstRow)
		c2, _ := excelize.CoordinatesToCellName(mg.endCol, dstRow)
		if err := t.f.MergeCell(rp.sheet, c1, c2); err != nil {
			return fmt.Errorf("лист %s: слияние %s:%s: %w", rp.sheet, c1, c2, err)
		}
	}
	return nil
}
