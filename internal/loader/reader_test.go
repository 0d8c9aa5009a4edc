package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragkit/internal/schema"
	ragerrors "ragkit/pkg/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestReaderLoadData(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.txt"), "What I Worked On")
	writeFile(t, filepath.Join(dir, "a.md"), "# Essays")
	writeFile(t, filepath.Join(dir, "nested", "c.txt"), "Nested essay")
	writeFile(t, filepath.Join(dir, "image.png"), "binary")
	writeFile(t, filepath.Join(dir, ".git", "d.txt"), "hidden")

	r := NewReader(ReaderOptions{Extensions: []string{"txt", ".MD"}, Recursive: true})
	docs, err := r.LoadData(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, "# Essays", docs[0].Text)
	assert.Equal(t, "What I Worked On", docs[1].Text)
	assert.Equal(t, "Nested essay", docs[2].Text)

	first := docs[0]
	assert.Equal(t, "a.md", first.Metadata[schema.MetaFileName])
	assert.Equal(t, filepath.Join(dir, "a.md"), first.Metadata[schema.MetaFilePath])
	assert.Equal(t, "text/markdown", first.Metadata[schema.MetaFileType])
	assert.Equal(t, int64(8), first.Metadata[schema.MetaFileSize])
	assert.Equal(t, DocumentID(filepath.Join(dir, "a.md")), first.ID)
}

func TestReaderLoadDataNonRecursive(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "top.txt"), "top")
	writeFile(t, filepath.Join(dir, "nested", "deep.txt"), "deep")

	docs, err := NewReader(ReaderOptions{Recursive: false}).LoadData(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "top", docs[0].Text)
}

func TestReaderLoadDataErrors(t *testing.T) {
	r := NewReader(ReaderOptions{Recursive: true})

	_, err := r.LoadData(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	_, err = r.LoadData(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ragerrors.ErrValidation)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bad.txt"), string([]byte{0xff, 0xfe, 0xfd}))
	_, err = r.LoadData(context.Background(), dir)
	assert.ErrorIs(t, err, ragerrors.ErrValidation)
}

func TestDocumentIDIsStable(t *testing.T) {
	assert.Equal(t, DocumentID("/data/a.txt"), DocumentID("/data/a.txt"))
	assert.NotEqual(t, DocumentID("/data/a.txt"), DocumentID("/data/b.txt"))
}
