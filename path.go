package sheetbars

import (
	"reflect"
	"strconv"
	"strings"
)

// -----------------------------
// Резолвер путей
// -----------------------------

// Resolve возвращает значение по пути path внутри data либо def,
// если какой-то из сегментов отсутствует. Никогда не паникует и не возвращает ошибку.
func Resolve(data interface{}, path string, def interface{}) interface{} {
	if v, ok := Lookup(data, path); ok {
		return v
	}
	return def
}

// Lookup разбирает путь вида a.b.0.c, a.b[0].c или a["x.y"] и спускается по data.
// Пустой путь, "." и "this" указывают на сам data.
func Lookup(data interface{}, path string) (interface{}, bool) {
	path = strings.TrimSpace(path)
	if path == "" || path == "." || path == "this" {
		return data, true
	}
	path = strings.TrimPrefix(path, "this.")
	return drill(data, path)
}

func drill(v interface{}, path string) (interface{}, bool) {
	cur := v
	rest := path
	for rest != "" {
		seg, tail := nextSeg(rest)
		if seg == "" {
			// пустой сегмент: "a..b" или хвостовая точка
			rest = tail
			continue
		}
		if strings.HasPrefix(seg, "[") {
			seg = strings.TrimSpace(strings.Trim(seg, "[]"))
			if unq, ok := unquoteKey(seg); ok {
				nv, ok := field(cur, unq)
				if !ok {
					return nil, false
				}
				cur = nv
				rest = tail
				continue
			}
		}
		nv, ok := step(cur, seg)
		if !ok {
			return nil, false
		}
		cur = nv
		rest = tail
	}
	return cur, true
}

// step — один сегмент: числовой сегмент индексирует массив, иначе ключ/поле
func step(cur interface{}, seg string) (interface{}, bool) {
	if i, err := strconv.Atoi(seg); err == nil {
		if v, ok := index(cur, i); ok {
			return v, true
		}
	}
	return field(cur, seg)
}

func index(cur interface{}, i int) (interface{}, bool) {
	if arr, ok := cur.([]interface{}); ok {
		if i < 0 || i >= len(arr) {
			return nil, false
		}
		return arr[i], true
	}
	rv := indirect(reflect.ValueOf(cur))
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	if i < 0 || i >= rv.Len() {
		return nil, false
	}
	return rv.Index(i).Interface(), true
}

func field(cur interface{}, key string) (interface{}, bool) {
	if m, ok := cur.(map[string]interface{}); ok {
		nv, ok := m[key]
		return nv, ok
	}
	rv := indirect(reflect.ValueOf(cur))
	if !rv.IsValid() {
		return nil, false
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		mv := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !mv.IsValid() {
			return nil, false
		}
		return mv.Interface(), true
	case reflect.Struct:
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			sf := rt.Field(i)
			if !sf.IsExported() {
				continue
			}
			name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
			if sf.Name == key || (name != "" && name != "-" && name == key) {
				return rv.Field(i).Interface(), true
			}
		}
	}
	return nil, false
}

func indirect(rv reflect.Value) reflect.Value {
	for rv.IsValid() && (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			return reflect.Value{}
		}
		rv = rv.Elem()
	}
	return rv
}

func unquoteKey(s string) (string, bool) {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1], true
	}
	return "", false
}

func nextSeg(path string) (seg string, tail string) {
	if path == "" {
		return "", ""
	}
	if path[0] == '[' {
		if i := strings.Index(path, "]"); i >= 0 {
			seg = path[:i+1]
			if i+1 < len(path) && path[i+1] == '.' {
				tail = path[i+2:]
			} else {
				tail = path[i+1:]
			}
			return
		}
	}
	i := 0
	for i < len(path) && path[i] != '.' && path[i] != '[' {
		i++
	}
	seg = path[:i]
	if i < len(path) && path[i] == '.' {
		tail = path[i+1:]
	} else {
		tail = path[i:]
	}
	return
}

// asSequence приводит значение к упорядоченной последовательности
func asSequence(v interface{}) ([]interface{}, bool) {
	switch vv := v.(type) {
	case nil, string, []byte:
		return nil, false
	case []interface{}:
		return vv, true
	case []map[string]interface{}:
		out := make([]interface{}, len(vv))
		for i := range vv {
			out[i] = vv[i]
		}
		return out, true
	}
	rv := indirect(reflect.ValueOf(v))
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
