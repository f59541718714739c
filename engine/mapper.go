package engine

import (
	"fmt"
	"reflect"
	"sort"

	iface "WasteDetServer/interface"
)

// CategoryMapper maps model class ids to category labels. The table is fixed
// at construction; ids it does not cover map to UnknownCategory.
type CategoryMapper struct {
	labels map[int]string
	order  []int
}

// NewCategoryMapper builds a mapper from a names configuration. Data may be a
// []string (index is the class id), a map[int]string, or, when IsFile is set,
// the path of a file holding one label per line.
func NewCategoryMapper(names iface.NamesConf) (*CategoryMapper, error) {
	if names.IsFile {
		path, ok := names.Data.(string)
		if !ok {
			return nil, Validationf("names file must be a path, got %T", names.Data)
		}
		lines, err := ReadLinesReadFile(path)
		if err != nil {
			return nil, Validationf("read names file %s: %v", path, err)
		}
		return newFromList(lines)
	}
	switch v := names.Data.(type) {
	case []string:
		return newFromList(v)
	case map[int]string:
		m := &CategoryMapper{labels: make(map[int]string, len(v))}
		for id, label := range v {
			if id < 0 {
				return nil, Validationf("class id %d is negative", id)
			}
			if label == "" {
				return nil, Validationf("class id %d has an empty label", id)
			}
			m.labels[id] = label
			m.order = append(m.order, id)
		}
		sort.Ints(m.order)
		if len(m.order) == 0 {
			return nil, Validationf("category table is empty")
		}
		return m, nil
	}
	rv := reflect.ValueOf(names.Data)
	if rv.Kind() != reflect.Slice {
		return nil, Validationf("names must be a slice, a map or a file path, got %T", names.Data)
	}
	list := make([]string, rv.Len())
	for i := range list {
		list[i] = fmt.Sprint(rv.Index(i).Interface())
	}
	return newFromList(list)
}

func newFromList(list []string) (*CategoryMapper, error) {
	if len(list) == 0 {
		return nil, Validationf("category table is empty")
	}
	m := &CategoryMapper{labels: make(map[int]string, len(list))}
	for i, label := range list {
		if label == "" {
			return nil, Validationf("class id %d has an empty label", i)
		}
		m.labels[i] = label
		m.order = append(m.order, i)
	}
	return m, nil
}

// Map returns the label for classID, or UnknownCategory.
func (m *CategoryMapper) Map(classID int) string {
	if label, ok := m.labels[classID]; ok {
		return label
	}
	return UnknownCategory
}

// Labels returns the table's labels ordered by class id.
func (m *CategoryMapper) Labels() []string {
	out := make([]string, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.labels[id])
	}
	return out
}

func (m *CategoryMapper) Len() int { return len(m.order) }
