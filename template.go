package sheetbars

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Движок подстановки данных в книги Excel.
// Поддержка:
// - {{path.to.value}} — скалярная подстановка (в том числе несколько в одной ячейке)
// - {{#each path}} ... {{/each}} в пределах одной строки — строка повторяется для каждого элемента массива
// Пути: a.b.0.c, a.b[0].c, a["x.y"]; пустой путь, "." и "this" — текущий корень.

// Template — загруженная книга, настройки и привязанные данные.
// Не безопасен для конкурентного использования: один Apply за раз.
type Template struct {
	f        *excelize.File
	settings Settings
	data     interface{}
	logger   *zap.Logger
}

// Option настраивает Template
type Option func(*Template)

// WithSettings задаёт настройки движка
func WithSettings(s Settings) Option {
	return func(t *Template) { t.settings = s }
}

// WithLogger задаёт логгер (по умолчанию zap.NewNop)
func WithLogger(l *zap.Logger) Option {
	return func(t *Template) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithData задаёт данные для подстановки
func WithData(data interface{}) Option {
	return func(t *Template) { t.data = data }
}

// New создаёт движок без книги; загрузите её через ReadTemplate/ReadTemplateFrom
func New(opts ...Option) *Template {
	t := &Template{settings: DefaultSettings(), logger: zap.NewNop()}
	for _, o := range opts {
		o(t)
	}
	return t
}

// LoadTemplate открывает книгу-шаблон с диска
func LoadTemplate(path string, opts ...Option) (*Template, error) {
	t := New(opts...)
	if err := t.ReadTemplate(path); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadTemplateReader читает книгу-шаблон из потока
func LoadTemplateReader(r io.Reader, opts ...Option) (*Template, error) {
	t := New(opts...)
	if err := t.ReadTemplateFrom(r); err != nil {
		return nil, err
	}
	return t, nil
}

// ReadTemplate загружает книгу с диска, заменяя ранее загруженную
func (t *Template) ReadTemplate(path string) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("открытие шаблона %s: %w", path, err)
	}
	t.replaceFile(f)
	t.logger.Debug("шаблон загружен", zap.String("path", path), zap.Strings("sheets", f.GetSheetList()))
	return nil
}

// ReadTemplateFrom загружает книгу из потока (например, bytes.Buffer)
func (t *Template) ReadTemplateFrom(r io.Reader) error {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return fmt.Errorf("чтение шаблона: %w", err)
	}
	t.replaceFile(f)
	t.logger.Debug("шаблон загружен из потока", zap.Strings("sheets", f.GetSheetList()))
	return nil
}

func (t *Template) replaceFile(f *excelize.File) {
	if t.f != nil {
		_ = t.f.Close()
	}
	t.f = f
}

// File возвращает книгу excelize (nil, если не загружена)
func (t *Template) File() *excelize.File { return t.f }

// Settings возвращает текущие настройки
func (t *Template) Settings() Settings { return t.settings }

// SetData заменяет данные для подстановки
func (t *Template) SetData(data interface{}) *Template {
	t.data = data
	return t
}

// Data возвращает текущие данные
func (t *Template) Data() interface{} { return t.data }

// -----------------------------
// Применение данных
// -----------------------------

// Apply подставляет данные во все листы книги.
// Ненулевой data полностью заменяет ранее заданные данные.
//
// Порядок: один проход по ячейкам всех листов (повторители регистрируются, их ячейки
// исключаются из скалярной подстановки, остальные ячейки подставляются сразу),
// затем повторители разворачиваются снизу вверх.
// При ошибке книга может остаться частично изменённой — её следует выбросить.
func (t *Template) Apply(data interface{}) error {
	if data != nil {
		t.data = data
	}
	if t.f == nil {
		return ErrNoWorkbookLoaded
	}
	rx, err := t.settings.compile()
	if err != nil {
		return err
	}
	rw := &rewriter{rx: rx, def: t.settings.DefaultValue, logger: t.logger}

	var (
		repeaters []*repeater
		cells     int
	)
	for _, sheet := range t.f.GetSheetList() {
		rows, err := t.f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return fmt.Errorf("лист %s: %w", sheet, err)
		}
		g := newSheetGrid(sheet, rows)
		for r, row := range rows {
			rowNum := r + 1
			for c, text := range row {
				colNum := c + 1
				if text == "" || g.isIgnored(rowNum, colNum) {
					continue
				}
				if rp, ok := g.detect(rx, rowNum, colNum); ok {
					repeaters = append(repeaters, rp)
					continue
				}
				v, ok := rw.rewrite(text, t.data)
				if !ok {
					continue
				}
				addr, _ := excelize.CoordinatesToCellName(colNum, rowNum)
				if err := t.f.SetCellValue(sheet, addr, v); err != nil {
					return fmt.Errorf("лист %s, ячейка %s: %w", sheet, addr, err)
				}
				cells++
			}
		}
	}

	sortRepeaters(repeaters)
	for _, rp := range repeaters {
		if err := t.expand(rw, rp, t.data); err != nil {
			return err
		}
	}

	t.logger.Info("данные подставлены",
		zap.Int("sheets", len(t.f.GetSheetList())),
		zap.Int("cells", cells),
		zap.Int("repeaters", len(repeaters)),
		zap.Int("misses", rw.misses),
	)
	return nil
}

// -----------------------------
// Вывод
// -----------------------------

// Save сохраняет книгу
func (t *Template) Save(destPath string) error {
	if t.f == nil {
		return ErrNoWorkbookLoaded
	}
	return t.f.SaveAs(destPath)
}

// Write пишет книгу в поток
func (t *Template) Write(w io.Writer) error {
	if t.f == nil {
		return ErrNoWorkbookLoaded
	}
	return t.f.Write(w)
}

// Bytes сериализует книгу в память
func (t *Template) Bytes() ([]byte, error) {
	if t.f == nil {
		return nil, ErrNoWorkbookLoaded
	}
	var buf bytes.Buffer
	if err := t.f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// JSON возвращает содержимое книги: имя листа → строки → значения ячеек.
// Числа — float64, логические — bool, остальное — строки. Хвостовые пустые ячейки
// и хвостовые пустые строки отбрасываются.
func (t *Template) JSON() (map[string][][]interface{}, error) {
	if t.f == nil {
		return nil, ErrNoWorkbookLoaded
	}
	out := make(map[string][][]interface{})
	for _, sheet := range t.f.GetSheetList() {
		rows, err := t.f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("лист %s: %w", sheet, err)
		}
		sheetRows := make([][]interface{}, 0, len(rows))
		for r, row := range rows {
			end := len(row)
			for end > 0 && row[end-1] == "" {
				end--
			}
			vals := make([]interface{}, end)
			for c := 0; c < end; c++ {
				vals[c] = t.typedCell(sheet, c+1, r+1, row[c])
			}
			sheetRows = append(sheetRows, vals)
		}
		for len(sheetRows) > 0 && len(sheetRows[len(sheetRows)-1]) == 0 {
			sheetRows = sheetRows[:len(sheetRows)-1]
		}
		out[sheet] = sheetRows
	}
	return out, nil
}

func (t *Template) typedCell(sheet string, col, row int, raw string) interface{} {
	if raw == "" {
		return ""
	}
	addr, _ := excelize.CoordinatesToCellName(col, row)
	typ, err := t.f.GetCellType(sheet, addr)
	if err != nil {
		return raw
	}
	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula, excelize.CellTypeError:
		return raw
	case excelize.CellTypeBool:
		return raw == "1" || raw == "TRUE" || raw == "true"
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// Close освобождает ресурсы книги
func (t *Template) Close() error {
	if t.f == nil {
		return nil
	}
	err := t.f.Close()
	t.f = nil
	return err
}
