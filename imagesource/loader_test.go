package imagesource

import (
	"bytes"
	"encoding/base64"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"WasteDetServer/engine"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeTestImage(t *testing.T, format imaging.Format) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := imaging.New(8, 6, color.NRGBA{R: 200, G: 120, B: 40, A: 255})
	require.NoError(t, imaging.Encode(&buf, img, format))
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	img, err := Decode("bin.png", encodeTestImage(t, imaging.PNG))
	require.NoError(t, err)
	assert.Equal(t, "bin.png", img.ID)
	assert.Equal(t, "png", img.Format)
	assert.Equal(t, 8, img.Width)
	assert.Equal(t, 6, img.Height)
	assert.NotNil(t, img.Image)

	_, err = Decode("empty", nil)
	require.Error(t, err)
	assert.Equal(t, engine.ErrResource, engine.KindOf(err))

	_, err = Decode("junk", []byte("not an image"))
	require.Error(t, err)
	assert.Equal(t, engine.ErrResource, engine.KindOf(err))
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "bottle.jpg")
	require.NoError(t, os.WriteFile(good, encodeTestImage(t, imaging.JPEG), 0o644))
	bad := filepath.Join(dir, "broken.jpg")
	require.NoError(t, os.WriteFile(bad, []byte("garbage"), 0o644))

	img, err := FileLoader{}.Load(good)
	require.NoError(t, err)
	assert.Equal(t, "bottle.jpg", img.ID)
	assert.Equal(t, "jpeg", img.Format)
	assert.NotEmpty(t, img.Raw)

	missing := filepath.Join(dir, "missing.jpg")
	_, err = FileLoader{}.Load(missing)
	require.Error(t, err)
	assert.Equal(t, "Image file not found: "+missing, err.Error())

	_, err = FileLoader{}.Load(dir)
	assert.Error(t, err)

	_, err = FileLoader{}.Load(bad)
	require.Error(t, err)
	assert.Equal(t, "Could not load image: "+bad, err.Error())
	assert.Equal(t, engine.ErrResource, engine.KindOf(err))
}

func TestMemoryLoader(t *testing.T) {
	m := NewMemoryLoader()
	raw := encodeTestImage(t, imaging.PNG)
	a := m.Add("can.png", raw)
	b := m.Add("can.png", raw)
	c := m.Add("", []byte("garbage"))
	assert.Equal(t, "can.png", a)
	assert.Equal(t, "can.png#1", b)
	assert.Equal(t, "image", c)
	assert.Equal(t, []string{"can.png", "can.png#1", "image"}, m.IDs())

	img, err := m.Load(b)
	require.NoError(t, err)
	assert.Equal(t, "can.png#1", img.ID)

	_, err = m.Load(c)
	require.Error(t, err)
	assert.Equal(t, "Could not load image: image", err.Error())

	_, err = m.Load("nope")
	require.Error(t, err)
	assert.Equal(t, "Image not found: nope", err.Error())
}

func TestDecodeBase64(t *testing.T) {
	raw := []byte("hello image")
	enc := base64.StdEncoding.EncodeToString(raw)

	got, err := DecodeBase64(enc)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = DecodeBase64("data:image/jpeg;base64," + enc)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = DecodeBase64("%%%")
	require.Error(t, err)
	assert.Equal(t, engine.ErrResource, engine.KindOf(err))
}
