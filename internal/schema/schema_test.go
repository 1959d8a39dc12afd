package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeSchema(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFile_SingleDocument(t *testing.T) {
	path := writeSchema(t, `
id: 2
name: accel
fmt:
  - name: x
    unit: m/s²
    offset: 0
    size: 4
    type: f32
  - name: y
    unit: m/s²
    offset: 4
    size: 4
    type: f32
`)

	descs, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, descs, 1)
	require.Equal(t, uint32(2), descs[0].DataID)
	require.Equal(t, "accel", descs[0].Name)
	require.Len(t, descs[0].Fmt, 2)
}

func TestLoadFile_MultiDocument(t *testing.T) {
	path := writeSchema(t, `
id: 2
name: accel
fmt:
  - name: x
    unit: m/s²
    offset: 0
    size: 4
    type: f32
---
id: 3
name: gyro
fmt:
  - name: x
    unit: rad/s
    offset: 0
    size: 4
    type: f32
`)

	descs, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, descs, 2)
}

func TestLoadFile_DuplicateDataIDRejected(t *testing.T) {
	path := writeSchema(t, `
id: 2
name: accel
fmt: []
---
id: 2
name: gyro
fmt: []
`)

	_, err := LoadFile(path)
	require.ErrorIs(t, err, ErrDuplicateDataID)
}

func TestLoadFile_InvalidUnitRejected(t *testing.T) {
	path := writeSchema(t, `
id: 2
name: accel
fmt:
  - name: x
    unit: furlongs
    offset: 0
    size: 4
    type: f32
`)

	_, err := LoadFile(path)
	require.ErrorIs(t, err, ErrInvalidUnit)
}

func TestLoadFile_InvalidTypeRejected(t *testing.T) {
	path := writeSchema(t, `
id: 2
name: accel
fmt:
  - name: x
    unit: none
    offset: 0
    size: 4
    type: vec3
`)

	_, err := LoadFile(path)
	require.ErrorIs(t, err, ErrInvalidType)
}

func TestLoadAll_CrossFileDuplicateRejected(t *testing.T) {
	a := writeSchema(t, "id: 2\nname: accel\nfmt: []\n")
	b := writeSchema(t, "id: 2\nname: other\nfmt: []\n")

	_, err := LoadAll([]string{a, b})
	require.ErrorIs(t, err, ErrDuplicateDataID)
}

func TestSerializeRoundTrip(t *testing.T) {
	d := Desc{
		DataID: 4,
		Name:   "gps",
		Fmt: []FieldFmt{
			{Name: "lat", Unit: UnitDegree, Offset: 0, Size: 8, Type: TypeF64},
			{Name: "lon", Unit: UnitDegree, Offset: 8, Size: 8, Type: TypeF64},
			{Name: "raw", Unit: UnitNone, Offset: 16, Size: 0, Type: TypeBytes},
		},
	}

	buf, err := Serialize(d)
	require.NoError(t, err)

	var roundTripped Desc
	require.NoError(t, yaml.Unmarshal(buf, &roundTripped))
	require.Equal(t, d, roundTripped)

	buf2, err := Serialize(roundTripped)
	require.NoError(t, err)
	require.Equal(t, buf, buf2)
}
