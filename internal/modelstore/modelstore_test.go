package modelstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/transvm/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// family builds a small writable model with a cross-reference and a list.
func family(t *testing.T) *Model {
	t.Helper()
	m := NewModel("families", "Families", true)

	f, err := m.NewElement("Family")
	require.NoError(t, err)
	father, err := m.NewElement("Member")
	require.NoError(t, err)
	daughter, err := m.NewElement("Member")
	require.NoError(t, err)

	require.NoError(t, f.Set("lastName", "March"))
	require.NoError(t, f.Set("father", father))
	require.NoError(t, f.Set("daughters", []any{daughter}))
	require.NoError(t, f.Set("tags", []any{}))
	require.NoError(t, father.Set("firstName", "Jim"))
	require.NoError(t, father.Set("age", 52))
	require.NoError(t, daughter.Set("firstName", "Brenda"))
	require.NoError(t, daughter.Set("height", 1.62))
	require.NoError(t, daughter.Set("student", true))
	require.NoError(t, daughter.Set("nickname", nil))
	return m
}

func assertFamily(t *testing.T, m core.Model) {
	t.Helper()
	assert.Equal(t, "Families", m.ReferenceModel())

	families, err := m.ElementsOf("Family")
	require.NoError(t, err)
	require.Len(t, families, 1)
	members, err := m.ElementsOf("Member")
	require.NoError(t, err)
	require.Len(t, members, 2)

	f := families[0]
	v, err := f.Get("lastName")
	require.NoError(t, err)
	assert.Equal(t, "March", v)

	v, err = f.Get("father")
	require.NoError(t, err)
	assert.Equal(t, members[0], v)

	v, err = f.Get("daughters")
	require.NoError(t, err)
	assert.Equal(t, []any{members[1]}, v)

	v, err = f.Get("tags")
	require.NoError(t, err)
	assert.Equal(t, []any{}, v)

	v, err = members[0].Get("age")
	require.NoError(t, err)
	assert.Equal(t, int64(52), v)

	v, err = members[1].Get("height")
	require.NoError(t, err)
	assert.InDelta(t, 1.62, v, 1e-9)

	v, err = members[1].Get("student")
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestModel_Basics(t *testing.T) {
	m := family(t)
	assertFamily(t, m)

	elems := m.Elements()
	require.Len(t, elems, 3)
	assert.Equal(t, []string{"e1", "e2", "e3"}, []string{elems[0].ID(), elems[1].ID(), elems[2].ID()})
	assert.Equal(t, []string{"lastName", "father", "daughters", "tags"}, elems[0].Features())
	assert.Equal(t, "Family#e1", elems[0].String())

	got, ok := m.Element("e2")
	require.True(t, ok)
	assert.Same(t, elems[1], got)

	unset, err := elems[0].Get("missing")
	require.NoError(t, err)
	assert.Nil(t, unset)
}

func TestModel_ReadOnly(t *testing.T) {
	m := family(t)
	m.SetTarget(false)

	_, err := m.NewElement("Member")
	require.ErrorIs(t, err, ErrReadOnly)

	err = m.Elements()[0].Set("lastName", "Sailor")
	require.ErrorIs(t, err, ErrReadOnly)
}

func TestModel_Get_CopiesLists(t *testing.T) {
	m := family(t)
	f := m.Elements()[0]

	v, err := f.Get("daughters")
	require.NoError(t, err)
	list := v.([]any)
	list[0] = "overwritten"

	again, err := f.Get("daughters")
	require.NoError(t, err)
	assert.NotEqual(t, "overwritten", again.([]any)[0])
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    any
		wantErr bool
	}{
		{name: "int", in: 3, want: int64(3)},
		{name: "int32", in: int32(3), want: int64(3)},
		{name: "float32", in: float32(0.5), want: float64(0.5)},
		{name: "strings", in: []string{"a", "b"}, want: []any{"a", "b"}},
		{name: "nested", in: []any{1, "x"}, want: []any{int64(1), "x"}},
		{name: "map", in: map[string]int{}, wantErr: true},
		{name: "nested bad", in: []any{struct{}{}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode(t *testing.T) {
	src := `
metamodel: Families
elements:
  - id: f1
    type: Family
    features:
      lastName: March
      father: {ref: m1}
      daughters: [{ref: m2}]
      tags: []
  - id: m1
    type: Member
    features: {firstName: Jim, age: 52}
  - id: m2
    type: Member
    features: {firstName: Brenda, height: 1.62, student: true, nickname: null}
`
	m, err := Decode(strings.NewReader(src), "families", "")
	require.NoError(t, err)
	assert.False(t, m.IsTarget())
	assertFamily(t, m)

	_, err = Decode(strings.NewReader(src), "families", "Persons")
	require.ErrorContains(t, err, "conforms to Families, not Persons")

	_, err = Decode(strings.NewReader("elements:\n  - {id: a, type: A, features: {x: {ref: zz}}}"), "m", "")
	require.ErrorContains(t, err, `unresolved reference "zz"`)

	_, err = Decode(strings.NewReader("elements:\n  - {id: a, type: A}\n  - {id: a, type: A}"), "m", "")
	require.ErrorContains(t, err, `duplicate element id "a"`)

	empty, err := Decode(strings.NewReader(""), "empty", "MM")
	require.NoError(t, err)
	assert.Empty(t, empty.Elements())
}

func TestFileFactory_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out", "families.yaml")
	f := &FileFactory{}

	require.NoError(t, f.SaveModel(ctx, family(t), "file:"+path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "metamodel: Families")
	assert.Contains(t, string(data), "ref: e2")

	m, err := f.OpenModel(ctx, "file:"+path, "Families", false)
	require.NoError(t, err)
	assert.Equal(t, "families", m.Name())
	assert.False(t, m.IsTarget())
	assertFamily(t, m)
}

func TestFileFactory_OpenMissing(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "absent.yaml")
	f := &FileFactory{}

	_, err := f.OpenModel(ctx, path, "MM", false)
	require.Error(t, err)

	m, err := f.OpenModel(ctx, path, "MM", true)
	require.NoError(t, err)
	assert.True(t, m.IsTarget())
	assert.Equal(t, "absent", m.Name())
}

func TestSQLiteFactory_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := filepath.Join(t.TempDir(), "models.db")
	f := &SQLiteFactory{}
	loc := "sqlite:" + db + "#families"

	require.NoError(t, f.SaveModel(ctx, family(t), loc))
	// Saving twice replaces the stored copy.
	require.NoError(t, f.SaveModel(ctx, family(t), loc))

	m, err := f.OpenModel(ctx, loc, "Families", false)
	require.NoError(t, err)
	assert.Equal(t, "families", m.Name())
	assertFamily(t, m)

	_, err = f.OpenModel(ctx, "sqlite:"+db+"#absent", "MM", false)
	require.Error(t, err)

	target, err := f.OpenModel(ctx, "sqlite:"+db+"#absent", "MM", true)
	require.NoError(t, err)
	assert.True(t, target.IsTarget())
}

func TestSQLiteFactory_CrossModelReference(t *testing.T) {
	ctx := context.Background()
	src := family(t)
	out := NewModel("out", "Persons", true)
	p, err := out.NewElement("Person")
	require.NoError(t, err)
	require.NoError(t, p.Set("source", src.Elements()[0]))

	err = (&SQLiteFactory{}).SaveModel(ctx, out, "sqlite:"+filepath.Join(t.TempDir(), "x.db"))
	require.ErrorContains(t, err, "cannot store reference into model families")
}

func TestParseSQLiteLocation(t *testing.T) {
	path, model := ParseSQLiteLocation("sqlite:/tmp/a.db#OUT")
	assert.Equal(t, "/tmp/a.db", path)
	assert.Equal(t, "OUT", model)

	path, model = ParseSQLiteLocation("sqlite:/tmp/persons.db")
	assert.Equal(t, "/tmp/persons.db", path)
	assert.Equal(t, "persons", model)
}

func TestFactory_Dispatch(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	mem.Put("mem:IN", family(t))
	f := NewFactory(mem)

	assert.Equal(t, []string{"file", "mem", "sqlite"}, f.Schemes())

	in, err := f.OpenModel(ctx, "mem:IN", "Families", false)
	require.NoError(t, err)
	assertFamily(t, in)

	_, err = f.OpenModel(ctx, "mem:IN", "Persons", false)
	require.ErrorContains(t, err, "conforms to Families")

	out, err := f.OpenModel(ctx, "mem:OUT", "Persons", true)
	require.NoError(t, err)
	assert.True(t, out.IsTarget())
	_, stored := mem.Get("OUT")
	assert.False(t, stored, "targets are stored on save")

	_, err = f.OpenModel(ctx, "mem:nothing", "", false)
	require.Error(t, err)

	_, err = f.OpenModel(ctx, "ftp:somewhere", "", false)
	var unknown *UnknownSchemeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ftp", unknown.Scheme)

	path := filepath.Join(t.TempDir(), "copy.yaml")
	require.NoError(t, f.SaveModel(ctx, in, path))
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestSplitLocation(t *testing.T) {
	tests := []struct {
		in, scheme, rest string
	}{
		{"mem:IN", "mem", "IN"},
		{"sqlite:/a.db#m", "sqlite", "/a.db#m"},
		{"models/in.yaml", "file", "models/in.yaml"},
		{`C:\models\in.yaml`, "file", `C:\models\in.yaml`},
	}
	for _, tt := range tests {
		scheme, rest := SplitLocation(tt.in)
		assert.Equal(t, tt.scheme, scheme, tt.in)
		assert.Equal(t, tt.rest, rest, tt.in)
	}
}

func TestModel_Clone(t *testing.T) {
	m := family(t)
	c := m.Clone(false)

	assertFamily(t, c)
	assert.False(t, c.IsTarget())
	assert.True(t, m.IsTarget())

	fam := c.Elements()[0]
	father, err := fam.Get("father")
	require.NoError(t, err)
	assert.Same(t, c.Elements()[1], father, "references point into the copy")
	daughters, err := fam.Get("daughters")
	require.NoError(t, err)
	assert.Same(t, c.Elements()[2], daughters.([]any)[0])

	require.NoError(t, m.Elements()[0].Set("lastName", "Sailor"))
	v, err := fam.Get("lastName")
	require.NoError(t, err)
	assert.Equal(t, "March", v)
}

func TestMemoryStore_OpenersAreIsolated(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	mem.Put("mem:x", family(t))

	target, err := mem.OpenModel(ctx, "mem:x", "Families", true)
	require.NoError(t, err)
	source, err := mem.OpenModel(ctx, "mem:x", "Families", false)
	require.NoError(t, err)

	assert.True(t, target.IsTarget())
	assert.False(t, source.IsTarget())
	_, err = target.NewElement("Member")
	require.NoError(t, err, "opening as a source leaves the target writable")
	_, err = source.NewElement("Member")
	require.ErrorIs(t, err, ErrReadOnly)

	members, err := source.ElementsOf("Member")
	require.NoError(t, err)
	assert.Len(t, members, 2, "the target's new element is not visible to other openers")

	stored, _ := mem.Get("x")
	assert.True(t, stored.IsTarget(), "the stored model keeps its own writability")
}

func TestFactory_NewModelIgnoresStoredContent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f := NewFactory(nil)

	for _, loc := range []string{
		"mem:families",
		"file:" + filepath.Join(dir, "families.yaml"),
		"sqlite:" + filepath.Join(dir, "models.db") + "#families",
	} {
		t.Run(loc, func(t *testing.T) {
			require.NoError(t, f.SaveModel(ctx, family(t), loc))

			m, err := f.NewModel(ctx, loc, "Families")
			require.NoError(t, err)
			assert.Equal(t, "families", m.Name())
			assert.True(t, m.IsTarget())
			members, err := m.ElementsOf("Member")
			require.NoError(t, err)
			assert.Empty(t, members)

			e, err := m.NewElement("Member")
			require.NoError(t, err)
			require.NoError(t, e.Set("firstName", "Meg"))
			require.NoError(t, f.SaveModel(ctx, m, loc))

			saved, err := f.OpenModel(ctx, loc, "Families", false)
			require.NoError(t, err)
			members, err = saved.ElementsOf("Member")
			require.NoError(t, err)
			require.Len(t, members, 1)
			v, err := members[0].Get("firstName")
			require.NoError(t, err)
			assert.Equal(t, "Meg", v)
		})
	}
}
