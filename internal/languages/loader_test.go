package languages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	reg, err := Load("")
	require.NoError(t, err)

	ids := make([]string, 0)
	for _, p := range reg.List() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"c", "cpp", "java", "python"}, ids)

	java, err := reg.Get("java")
	require.NoError(t, err)
	assert.Equal(t, "Solution.java", java.SourceFile)
	assert.Equal(t, "Solution", java.ClassName())
	assert.Equal(t, []string{"javac", "/code/Solution.java"}, java.CompileCmd)
	assert.Equal(t, []string{"java", "-cp", "/code", "Solution"}, java.RunCmd)

	py, err := reg.Get("python")
	require.NoError(t, err)
	assert.False(t, py.Compiled())
	assert.Equal(t, []string{"python3", "/code/solution.py"}, py.RunCmd)

	for _, id := range []string{"c", "cpp", "java"} {
		p, err := reg.Get(id)
		require.NoError(t, err)
		assert.True(t, p.Compiled(), id)
	}
}

func TestGetUnknownLanguage(t *testing.T) {
	reg, err := Load("")
	require.NoError(t, err)

	_, err = reg.Get("cobol")
	assert.ErrorIs(t, err, ErrLanguageNotFound)
}

func TestImagesAreDistinct(t *testing.T) {
	reg, err := Load("")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"gcc:13", "eclipse-temurin:17-jdk", "python:3.11-slim"}, reg.Images())
}

func TestParseRejectsIncompleteProfile(t *testing.T) {
	_, err := Parse([]byte(`
[languages.go]
image = "golang:1.22"
`))
	assert.Error(t, err)

	_, err = Parse([]byte(``))
	assert.Error(t, err)
}

func TestParseQuotedCommand(t *testing.T) {
	reg, err := Parse([]byte(`
[languages.sh]
image = "alpine"
source_file = "main.sh"
run = "sh -c 'cat /code/main.sh | sh'"
`))
	require.NoError(t, err)
	p, err := reg.Get("sh")
	require.NoError(t, err)
	assert.Equal(t, []string{"sh", "-c", "cat /code/main.sh | sh"}, p.RunCmd)
	assert.Equal(t, "sh", p.Name)
}
