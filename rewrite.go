package sheetbars

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// rewriter выполняет подстановку плейсхолдеров в тексте одной ячейки.
// Живёт ровно один проход Apply.
type rewriter struct {
	rx     *patterns
	def    string
	logger *zap.Logger
	misses int
}

// rewrite заменяет все плейсхолдеры в text значениями из data.
// Если весь текст — ровно один плейсхолдер, возвращается типизированное значение
// (число, дата, bool), иначе строка. ok=false, если плейсхолдеров нет.
func (r *rewriter) rewrite(text string, data interface{}) (interface{}, bool) {
	ms := r.rx.expr.FindAllStringSubmatchIndex(text, -1)
	if len(ms) == 0 {
		return text, false
	}
	// Вся ячейка — один плейсхолдер: сохраняем тип значения
	if len(ms) == 1 && ms[0][0] == 0 && ms[0][1] == len(text) {
		v := r.resolve(data, groupText(text, ms[0]))
		return typedValue(v, r.def), true
	}
	var sb strings.Builder
	last := 0
	for _, m := range ms {
		sb.WriteString(text[last:m[0]])
		v := r.resolve(data, groupText(text, m))
		if v == nil {
			sb.WriteString(r.def)
		} else {
			sb.WriteString(toString(v))
		}
		last = m[1]
	}
	sb.WriteString(text[last:])
	return sb.String(), true
}

func (r *rewriter) resolve(data interface{}, path string) interface{} {
	v, ok := Lookup(data, path)
	if !ok {
		r.misses++
		r.logger.Debug("путь не найден, используется значение по умолчанию",
			zap.String("path", path),
			zap.String("default", r.def),
		)
		return r.def
	}
	return v
}

// stripMarkers вырезает маркеры повторителя из шаблонной строки
func (r *rewriter) stripMarkers(text string) string {
	text = r.rx.start.ReplaceAllString(text, "")
	return r.rx.end.ReplaceAllString(text, "")
}

// groupText возвращает первую группу совпадения (или всё совпадение, если групп нет)
func groupText(s string, m []int) string {
	if len(m) >= 4 && m[2] >= 0 {
		return strings.TrimSpace(s[m[2]:m[3]])
	}
	return strings.TrimSpace(s[m[0]:m[1]])
}

// typedValue нормализует значение для записи в ячейку целиком.
// Скаляры пишутся как есть, коллекции — строкой.
func typedValue(v interface{}, def string) interface{} {
	switch vv := v.(type) {
	case nil:
		return def
	case string, bool, time.Time,
		float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return vv
	case json.Number:
		if f, err := vv.Float64(); err == nil {
			return f
		}
		return vv.String()
	default:
		return toString(vv)
	}
}

// toString — строковое представление значения внутри смешанного текста
func toString(v interface{}) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return vv
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(vv), 'f', -1, 32)
	case bool:
		if vv {
			return "true"
		}
		return "false"
	case time.Time:
		if vv.Hour() == 0 && vv.Minute() == 0 && vv.Second() == 0 && vv.Nanosecond() == 0 {
			return vv.Format("2006-01-02")
		}
		return vv.Format("2006-01-02 15:04:05")
	case fmt.Stringer:
		return vv.String()
	case []interface{}:
		allStr := true
		strs := make([]string, len(vv))
		for i, it := range vv {
			if s, ok := it.(string); ok {
				strs[i] = s
			} else {
				allStr = false
				break
			}
		}
		if allStr {
			return strings.Join(strs, ", ")
		}
		return marshalOrPrint(vv)
	case []string:
		return strings.Join(vv, ", ")
	case map[string]interface{}:
		return marshalOrPrint(vv)
	default:
		return fmt.Sprintf("%v", vv)
	}
}

// marshalOrPrint — JSON коллекции; если не сериализуется (chan, func), то %v
func marshalOrPrint(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
