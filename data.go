package sheetbars

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// sanitizeJSONBlock извлекает JSON, обёрнутый в тройные кавычки ``` ... ```.
// Если таких кавычек нет, либо структура неверная, возвращает исходную строку.
var fenceRx = regexp.MustCompile("(?s)```[a-zA-Z]*\\n(.*?)```")

func sanitizeJSONBlock(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	m := fenceRx.FindStringSubmatch(s)
	if len(m) >= 2 {
		return strings.TrimSpace(m[1])
	}
	return s
}

// DecodeData разбирает JSON-документы и сливает корни-объекты слева направо
// (поверхностно: ключ верхнего уровня из правого документа заменяет левый).
// Пустые документы пропускаются. Если корень — не объект, он заменяет всё слитое ранее.
func DecodeData(outputs ...string) (interface{}, error) {
	var merged interface{}
	for i, s := range outputs {
		s = strings.TrimSpace(sanitizeJSONBlock(s))
		if s == "" {
			continue
		}
		var v interface{}
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("документ %d: %w", i+1, err)
		}
		merged = mergeTop(merged, v)
	}
	return merged, nil
}

func mergeTop(dst, src interface{}) interface{} {
	dm, ok1 := dst.(map[string]interface{})
	sm, ok2 := src.(map[string]interface{})
	if !ok1 || !ok2 {
		return src
	}
	for k, v := range sm {
		dm[k] = v
	}
	return dm
}

// RenderJSON разбирает JSON-документы (см. DecodeData) и применяет их к книге
func (t *Template) RenderJSON(outputs ...string) error {
	data, err := DecodeData(outputs...)
	if err != nil {
		return err
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	return t.Apply(data)
}

// WriteResultsWithTemplate загружает шаблон, подставляет JSON-документы и сохраняет результат
func WriteResultsWithTemplate(templatePath, destPath string, outputs []string, opts ...Option) error {
	t := New(opts...)
	log := t.logger.With(zap.String("template", templatePath), zap.String("dest", destPath))
	log.Info("запись результатов в Excel", zap.Int("documents", len(outputs)))
	startTime := time.Now()

	if err := t.ReadTemplate(templatePath); err != nil {
		log.Error("ошибка загрузки шаблона", zap.Error(err))
		return err
	}
	defer func() { _ = t.Close() }()

	if err := t.RenderJSON(outputs...); err != nil {
		log.Error("ошибка рендеринга", zap.Error(err))
		return err
	}
	if err := t.Save(destPath); err != nil {
		log.Error("ошибка сохранения", zap.Error(err))
		return err
	}

	log.Info("excel файл создан", zap.Duration("duration", time.Since(startTime)))
	return nil
}
