package engine

import (
	"os"
	"path/filepath"
	"testing"

	iface "WasteDetServer/interface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryMapper(t *testing.T) {
	t.Run("Test list table", func(t *testing.T) {
		m, err := NewCategoryMapper(iface.NamesConf{Data: wasteLabels()})
		require.NoError(t, err)
		assert.Equal(t, "plastic", m.Map(0))
		assert.Equal(t, "other", m.Map(6))
		assert.Equal(t, UnknownCategory, m.Map(7))
		assert.Equal(t, UnknownCategory, m.Map(-1))
		assert.Equal(t, 7, m.Len())
		assert.Equal(t, wasteLabels(), m.Labels())
	})

	t.Run("Test map table", func(t *testing.T) {
		m, err := NewCategoryMapper(iface.NamesConf{Data: map[int]string{
			39: "bottle",
			0:  "person",
			41: "cup",
		}})
		require.NoError(t, err)
		assert.Equal(t, "bottle", m.Map(39))
		assert.Equal(t, UnknownCategory, m.Map(1))
		assert.Equal(t, []string{"person", "bottle", "cup"}, m.Labels())
	})

	t.Run("Test file table", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "labels.txt")
		require.NoError(t, os.WriteFile(path, []byte("plastic\r\npaper\r\n\r\nglass\n"), 0o644))
		m, err := NewCategoryMapper(iface.NamesConf{IsFile: true, Data: path})
		require.NoError(t, err)
		assert.Equal(t, []string{"plastic", "paper", "glass"}, m.Labels())
		assert.Equal(t, "glass", m.Map(2))
	})

	t.Run("Test generic slice", func(t *testing.T) {
		m, err := NewCategoryMapper(iface.NamesConf{Data: []any{"a", "b"}})
		require.NoError(t, err)
		assert.Equal(t, "b", m.Map(1))
	})

	t.Run("Test invalid tables", func(t *testing.T) {
		cases := []iface.NamesConf{
			{Data: []string{}},
			{Data: []string{"plastic", ""}},
			{Data: map[int]string{}},
			{Data: map[int]string{-1: "x"}},
			{Data: 42},
			{IsFile: true, Data: 42},
			{IsFile: true, Data: filepath.Join(t.TempDir(), "missing.txt")},
		}
		for _, names := range cases {
			_, err := NewCategoryMapper(names)
			require.Error(t, err, "%+v", names)
			assert.Equal(t, ErrValidation, KindOf(err))
		}
	})
}
