package file_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/zkiotchain/zkiot/io/file"
	"github.com/zkiotchain/zkiot/testing/assert"
	"github.com/zkiotchain/zkiot/testing/require"
)

func TestPathExpansion(t *testing.T) {
	require.NoError(t, os.Setenv("ZKIOT_TEST_DIR", "/tmp"))
	tests := map[string]string{
		"/home/someuser/tmp":  "/home/someuser/tmp",
		"$ZKIOT_TEST_DIR/a/b": "/tmp/a/b",
		"/a/b/":               "/a/b",
	}
	for input, expected := range tests {
		expanded, err := file.ExpandPath(input)
		require.NoError(t, err)
		assert.Equal(t, expected, expanded)
	}
}

func TestMkdirAll_AlreadyExists_WrongPermissions(t *testing.T) {
	dirName := filepath.Join(t.TempDir(), "somedir")
	require.NoError(t, os.MkdirAll(dirName, os.ModePerm))
	err := file.MkdirAll(dirName)
	assert.ErrorContains(t, "already exists without proper 0700 permissions", err)
}

func TestMkdirAll_OK(t *testing.T) {
	dirName := filepath.Join(t.TempDir(), "somedir")
	require.NoError(t, file.MkdirAll(dirName))
	exists, err := file.HasDir(dirName)
	require.NoError(t, err)
	assert.Equal(t, true, exists)
	// A second call on the 0700 directory is a no-op.
	require.NoError(t, file.MkdirAll(dirName))
}

func TestWriteFile_AlreadyExists_WrongPermissions(t *testing.T) {
	someFileName := filepath.Join(t.TempDir(), "somefile.txt")
	require.NoError(t, ioutil.WriteFile(someFileName, []byte("hi"), os.ModePerm))
	err := file.WriteFile(someFileName, []byte("hi"))
	assert.ErrorContains(t, "already exists without proper 0600 permissions", err)
}

func TestWriteFile_OK(t *testing.T) {
	someFileName := filepath.Join(t.TempDir(), "somefile.txt")
	require.NoError(t, file.WriteFile(someFileName, []byte("hi")))
	assert.Equal(t, true, file.FileExists(someFileName))

	read, err := file.ReadFileAsBytes(someFileName)
	require.NoError(t, err)
	assert.DeepEqual(t, []byte("hi"), read)
}

func TestFileExists_Dir(t *testing.T) {
	assert.Equal(t, false, file.FileExists(t.TempDir()))
}
