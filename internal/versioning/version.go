// Package versioning выбирает представление API по версии контракта Open Finance.
// Набор версий закрыт: неизвестная версия в конфигурации останавливает запуск.
package versioning

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnsupportedAPIVersion — версия не входит в список поддерживаемых или отключена.
var ErrUnsupportedAPIVersion = errors.New("unsupported api version")

// APIVersion — версия контракта API.
type APIVersion string

const (
	V4 APIVersion = "4.0.0"
	V5 APIVersion = "5.0.0"
)

// AllVersions возвращает все поддерживаемые версии по возрастанию.
func AllVersions() []APIVersion {
	return []APIVersion{V4, V5}
}

// Valid проверяет, что версия поддерживается.
func (v APIVersion) Valid() bool {
	return v == V4 || v == V5
}

// Major возвращает мажорную часть, например "v4".
func (v APIVersion) Major() string {
	major, _, _ := strings.Cut(string(v), ".")
	return "v" + major
}

// ParseAPIVersion принимает "5.0.0", "5", "v5" и "5_0_0".
func ParseAPIVersion(raw string) (APIVersion, error) {
	value := strings.TrimSpace(strings.ToLower(raw))
	value = strings.TrimPrefix(value, "v")
	value = strings.ReplaceAll(value, "_", ".")
	for _, v := range AllVersions() {
		if value == string(v) || value+".0.0" == string(v) {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedAPIVersion, raw, joinVersions(AllVersions()))
}

// ParseVersions разбирает список версий через запятую.
func ParseVersions(csv string) ([]APIVersion, error) {
	seen := make(map[APIVersion]struct{})
	var versions []APIVersion
	for _, part := range strings.Split(csv, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		v, err := ParseAPIVersion(part)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		versions = append(versions, v)
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: empty version list", ErrUnsupportedAPIVersion)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions, nil
}

// Registry хранит стратегии включённых версий.
type Registry struct {
	strategies map[APIVersion]*Strategy
	enabled    []APIVersion
	fallback   APIVersion
}

// NewRegistry собирает стратегии для enabled; def должна входить в enabled.
func NewRegistry(enabled []APIVersion, def APIVersion) (*Registry, error) {
	if len(enabled) == 0 {
		enabled = AllVersions()
	}
	r := &Registry{strategies: make(map[APIVersion]*Strategy, len(enabled))}
	for _, v := range enabled {
		strategy, ok := strategyFor(v)
		if !ok {
			return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedAPIVersion, v, joinVersions(AllVersions()))
		}
		if _, dup := r.strategies[v]; dup {
			continue
		}
		r.strategies[v] = strategy
		r.enabled = append(r.enabled, v)
	}
	if def == "" {
		def = r.enabled[len(r.enabled)-1]
	}
	if _, ok := r.strategies[def]; !ok {
		return nil, fmt.Errorf("%w: default %q is not enabled (enabled: %s)", ErrUnsupportedAPIVersion, def, joinVersions(r.enabled))
	}
	r.fallback = def
	return r, nil
}

// Enabled возвращает включённые версии.
func (r *Registry) Enabled() []APIVersion {
	out := make([]APIVersion, len(r.enabled))
	copy(out, r.enabled)
	return out
}

// Default возвращает версию для запросов без заголовка.
func (r *Registry) Default() APIVersion {
	return r.fallback
}

// Resolve выбирает стратегию по значению x-api-version; пустое значение — версия по умолчанию.
func (r *Registry) Resolve(raw string) (*Strategy, error) {
	if strings.TrimSpace(raw) == "" {
		return r.strategies[r.fallback], nil
	}
	v, err := ParseAPIVersion(raw)
	if err != nil {
		return nil, err
	}
	strategy, ok := r.strategies[v]
	if !ok {
		return nil, fmt.Errorf("%w: %s is disabled (enabled: %s)", ErrUnsupportedAPIVersion, v, joinVersions(r.enabled))
	}
	return strategy, nil
}

func joinVersions(versions []APIVersion) string {
	parts := make([]string, len(versions))
	for i, v := range versions {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
