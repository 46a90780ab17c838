package sheetbars

import (
	"fmt"
	"regexp"

	"github.com/caarlos0/env/v10"
)

// Шаблоны по умолчанию
const (
	DefaultExpression  = `\{\{(.+?)\}\}`
	DefaultRepeatStart = `\{\{#each\s*(.*?)\}\}`
	DefaultRepeatEnd   = `\{\{/each\}\}`
)

// Settings — настройки движка подстановки.
type Settings struct {
	// Expression — скалярный плейсхолдер, первая группа содержит путь
	Expression string `env:"SHEETBARS_EXPRESSION"`
	// RepeatStart — открывающий маркер повторителя, первая (необязательная) группа содержит путь к массиву
	RepeatStart string `env:"SHEETBARS_REPEAT_START"`
	// RepeatEnd — закрывающий маркер повторителя
	RepeatEnd string `env:"SHEETBARS_REPEAT_END"`
	// RepeaterSilentOnError: источник повторителя не массив → пустой массив вместо ошибки
	RepeaterSilentOnError bool `env:"SHEETBARS_REPEATER_SILENT_ON_ERROR"`
	// DefaultValue подставляется вместо отсутствующих путей
	DefaultValue string `env:"SHEETBARS_DEFAULT_VALUE"`
}

// DefaultSettings возвращает настройки по умолчанию
func DefaultSettings() Settings {
	return Settings{
		Expression:  DefaultExpression,
		RepeatStart: DefaultRepeatStart,
		RepeatEnd:   DefaultRepeatEnd,
	}
}

// patterns — скомпилированные регулярки одного прохода Apply
type patterns struct {
	expr  *regexp.Regexp
	start *regexp.Regexp
	end   *regexp.Regexp
}

func (s Settings) compile() (*patterns, error) {
	p := &patterns{}
	var err error
	if p.expr, err = compilePattern("expression", s.Expression, DefaultExpression); err != nil {
		return nil, err
	}
	if p.start, err = compilePattern("repeat start", s.RepeatStart, DefaultRepeatStart); err != nil {
		return nil, err
	}
	if p.end, err = compilePattern("repeat end", s.RepeatEnd, DefaultRepeatEnd); err != nil {
		return nil, err
	}
	return p, nil
}

func compilePattern(name, src, def string) (*regexp.Regexp, error) {
	if src == "" {
		src = def
	}
	rx, err := regexp.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("некорректный шаблон %s %q: %w", name, src, err)
	}
	return rx, nil
}

// Config — настройки, читаемые из окружения (движок + уровень логирования)
type Config struct {
	Settings
	LogLevel string `env:"SHEETBARS_LOG_LEVEL" envDefault:"info"`
}

// LoadConfig читает конфигурацию из переменных окружения.
// Незаданные переменные оставляют значения DefaultSettings.
func LoadConfig() (*Config, error) {
	cfg := &Config{Settings: DefaultSettings()}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("чтение конфигурации: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("некорректная конфигурация: %w", err)
	}
	return cfg, nil
}

// Validate проверяет шаблоны и уровень логирования
func (c *Config) Validate() error {
	if _, err := c.Settings.compile(); err != nil {
		return err
	}
	if !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("SHEETBARS_LOG_LEVEL должен быть одним из: debug, info, warn, error")
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
