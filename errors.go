package sheetbars

import (
	"errors"
	"fmt"
)

// ErrNoWorkbookLoaded возвращается любой операцией над книгой до успешной загрузки шаблона
var ErrNoWorkbookLoaded = errors.New("книга не загружена, сначала вызовите ReadTemplate")

// RepeaterSourceError — источник данных повторителя не является массивом
// (и RepeaterSilentOnError выключен).
type RepeaterSourceError struct {
	Sheet string
	Cell  string
	Path  string
	Value interface{}
	// Missing — путь не найден в данных
	Missing bool
}

func (e *RepeaterSourceError) Error() string {
	path := e.Path
	if path == "" {
		path = "<корень данных>"
	}
	if e.Missing {
		return fmt.Sprintf("лист %s, ячейка %s: источник повторителя %q не найден в данных", e.Sheet, e.Cell, path)
	}
	return fmt.Sprintf("лист %s, ячейка %s: источник повторителя %q не массив (%T)", e.Sheet, e.Cell, path, e.Value)
}
